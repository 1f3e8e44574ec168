package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurantOrdering/models"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ErrOrderNotFound is returned by Resend for unknown order numbers.
var ErrOrderNotFound = errors.New("order not found")

const recordTimeout = 5 * time.Second

// notify renders and delivers the confirmation for a committed order. Failures
// are attached to res and reported, never returned. The caller waits at most
// SyncGrace, and only in DeliverSync mode.
func (p *Pipeline) notify(ctx context.Context, order *models.Order, items []models.OrderItem, res *SubmissionResult) {
	// delivery must outlive the caller; the transport timeout bounds it
	bg := context.WithoutCancel(ctx)

	doc, err := p.render(ctx, order, items)
	if err != nil {
		res.Stage = StageCompleted
		res.Notification = fail(RenderingError, StageRendering, "confirmation could not be rendered", err)
		res.Delivery = &models.DeliveryResult{Error: err.Error(), Attempted: p.now().UTC()}
		p.deps.Observer.Observe(ctx, Event{Type: EventRenderingFailed, Stage: StageRendering, OrderNumber: order.Number, Kind: RenderingError, Err: err})
		p.recordFailure(bg, order, "renderer", err.Error())
		return
	}

	res.Stage = StageCompleted
	done := make(chan models.DeliveryResult, 1)
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		done <- p.deliver(bg, order, doc)
	}()
	if p.cfg.Mode == DeliverDetached {
		res.DeliveryPending = true
		return
	}

	grace := time.NewTimer(p.cfg.SyncGrace)
	defer grace.Stop()
	select {
	case dr := <-done:
		res.Delivery = &dr
		if !dr.Success {
			res.Notification = fail(DeliveryFailure, StageDelivering, "confirmation was not sent", errors.New(dr.Error))
		}
	case <-grace.C:
		res.DeliveryPending = true
	case <-ctx.Done():
		res.DeliveryPending = true
	}
}

func (p *Pipeline) render(ctx context.Context, order *models.Order, items []models.OrderItem) (models.ConfirmationDocument, error) {
	_, span := p.tracer.Start(ctx, "pipeline.Render")
	defer span.End()
	doc, err := p.deps.Renderer.Render(order, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render")
	}
	return doc, err
}

// deliver makes one attempt and dead-letters a failure.
func (p *Pipeline) deliver(ctx context.Context, order *models.Order, doc models.ConfirmationDocument) models.DeliveryResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.Deliver")
	defer span.End()

	dr := p.deps.Delivery.Deliver(ctx, doc, order.CustomerEmail)
	span.SetAttributes(attribute.Bool("delivery.success", dr.Success), attribute.String("delivery.transport", dr.Transport))
	if dr.Success {
		p.deps.Observer.Observe(ctx, Event{Type: EventDeliverySucceeded, Stage: StageDelivering, OrderNumber: order.Number, Delivery: &dr})
		return dr
	}
	span.SetStatus(codes.Error, dr.Error)
	p.deps.Observer.Observe(ctx, Event{
		Type:        EventDeliveryFailed,
		Stage:       StageDelivering,
		OrderNumber: order.Number,
		Kind:        DeliveryFailure,
		Err:         errors.New(dr.Error),
		Delivery:    &dr,
	})
	transport := dr.Transport
	if transport == "" {
		transport = "unknown"
	}
	p.recordFailure(ctx, order, transport, dr.Error)
	return dr
}

func (p *Pipeline) recordFailure(ctx context.Context, order *models.Order, transport, reason string) {
	if p.deps.Failures == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, recordTimeout)
	defer cancel()
	err := p.deps.Failures.Record(ctx, models.ConfirmationFailure{
		OrderNumber: order.Number,
		Recipient:   order.CustomerEmail,
		Transport:   transport,
		LastError:   reason,
	})
	if err != nil {
		p.deps.Observer.Observe(ctx, Event{Type: EventFailureNotRecorded, Stage: StageDelivering, OrderNumber: order.Number, Err: err})
	}
}

// Wait blocks until detached deliveries finish or ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resend re-renders a stored order's confirmation and makes one new delivery
// attempt. A successful attempt resolves the dead-letter row.
func (p *Pipeline) Resend(ctx context.Context, number string) (models.DeliveryResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Resend")
	defer span.End()
	span.SetAttributes(attribute.String("order.number", number))

	order, err := p.deps.Orders.GetByNumber(ctx, number)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("load order %s: %w", number, err)
	}
	if order == nil {
		return models.DeliveryResult{}, fmt.Errorf("%w: %s", ErrOrderNotFound, number)
	}
	items, err := p.deps.Orders.ListItems(ctx, order.ID)
	if err != nil {
		return models.DeliveryResult{}, fmt.Errorf("load items for %s: %w", number, err)
	}
	doc, err := p.render(ctx, order, items)
	if err != nil {
		p.recordFailure(ctx, order, "renderer", err.Error())
		return models.DeliveryResult{}, fail(RenderingError, StageRendering, "confirmation could not be rendered", err)
	}
	dr := p.deliver(ctx, order, doc)
	if dr.Success && p.deps.Failures != nil {
		if err := p.deps.Failures.MarkResolved(ctx, number); err != nil {
			p.deps.Log.WarnContext(ctx, "confirmation_failure_not_resolved", "order_number", number, "error", err)
		}
	}
	return dr, nil
}
