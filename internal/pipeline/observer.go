package pipeline

import (
	"context"
	"log/slog"

	"restaurantOrdering/models"
)

// EventType names what happened during a submission.
type EventType string

const (
	EventOrderSubmitted     EventType = "order_submitted"
	EventSubmissionFailed   EventType = "submission_failed"
	EventNumberCollision    EventType = "order_number_collision"
	EventSubtotalMismatch   EventType = "subtotal_mismatch"
	EventRenderingFailed    EventType = "confirmation_rendering_failed"
	EventDeliverySucceeded  EventType = "confirmation_delivered"
	EventDeliveryFailed     EventType = "confirmation_delivery_failed"
	EventFailureNotRecorded EventType = "confirmation_failure_not_recorded"
)

// Event is a structured observation emitted by the pipeline.
type Event struct {
	Type        EventType
	Stage       Stage
	OrderNumber string
	Attempt     int
	Kind        Kind
	Err         error
	Delivery    *models.DeliveryResult
}

// Observer receives pipeline events. Implementations must not block for long.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) { f(ctx, ev) }

// Observers fans an event out to several observers.
type Observers []Observer

func (obs Observers) Observe(ctx context.Context, ev Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, ev)
		}
	}
}

// LogObserver writes events to a structured logger.
type LogObserver struct {
	Log *slog.Logger
}

func (o LogObserver) Observe(ctx context.Context, ev Event) {
	attrs := []any{"stage", string(ev.Stage)}
	if ev.OrderNumber != "" {
		attrs = append(attrs, "order_number", ev.OrderNumber)
	}
	if ev.Attempt > 0 {
		attrs = append(attrs, "attempt", ev.Attempt)
	}
	if ev.Kind != "" {
		attrs = append(attrs, "kind", string(ev.Kind))
	}
	if ev.Delivery != nil {
		attrs = append(attrs, "transport", ev.Delivery.Transport)
		if ev.Delivery.MessageID != "" {
			attrs = append(attrs, "message_id", ev.Delivery.MessageID)
		}
	}
	if ev.Err != nil {
		attrs = append(attrs, "error", ev.Err.Error())
	}

	switch ev.Type {
	case EventSubmissionFailed, EventRenderingFailed, EventFailureNotRecorded:
		o.Log.ErrorContext(ctx, string(ev.Type), attrs...)
	case EventDeliveryFailed, EventNumberCollision, EventSubtotalMismatch:
		o.Log.WarnContext(ctx, string(ev.Type), attrs...)
	default:
		o.Log.InfoContext(ctx, string(ev.Type), attrs...)
	}
}
