// Package pipeline orchestrates an order submission: validate, mint a number,
// persist order and items in one transaction, then render and deliver the
// confirmation. Only failures at or before commit fail the submission.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"restaurantOrdering/internal/ordernum"
	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	validatorv10 "github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultMaxNumberAttempts bounds order number regeneration after collisions.
	DefaultMaxNumberAttempts = 3
	// DefaultSyncGrace is how long DeliverSync waits for the transport before detaching.
	DefaultSyncGrace = 2 * time.Second
)

// DeliveryMode selects whether Submit waits for the confirmation send.
type DeliveryMode string

const (
	// DeliverSync waits up to SyncGrace for the transport, then detaches.
	DeliverSync DeliveryMode = "sync"
	// DeliverDetached returns once the order is committed; delivery finishes in the background.
	// It is the default.
	DeliverDetached DeliveryMode = "detached"
)

// Renderer builds the confirmation document.
type Renderer interface {
	Render(order *models.Order, items []models.OrderItem) (models.ConfirmationDocument, error)
}

// Deliverer performs one delivery attempt and never fails the caller.
type Deliverer interface {
	Deliver(ctx context.Context, doc models.ConfirmationDocument, recipient string) models.DeliveryResult
}

// Config tunes the pipeline.
type Config struct {
	MaxNumberAttempts int
	Mode              DeliveryMode
	SyncGrace         time.Duration
	PickupLeadTime    time.Duration
	DeliveryLeadTime  time.Duration
}

// Deps are the collaborators injected at construction.
type Deps struct {
	Numbers  ordernum.Generator
	Orders   repository.OrderStore
	Products repository.ProductReader
	Renderer Renderer
	Delivery Deliverer
	// Failures is optional; when nil failed confirmations are only reported.
	Failures repository.FailureStore
	Observer Observer
	Log      *slog.Logger
}

// SubmissionResult describes a committed order and the notification outcome.
type SubmissionResult struct {
	OrderID         int64                  `json:"order_id"`
	OrderNumber     string                 `json:"order_number"`
	Status          models.OrderStatus     `json:"status"`
	Stage           Stage                  `json:"stage"`
	Attempts        int                    `json:"-"`
	Delivery        *models.DeliveryResult `json:"delivery,omitempty"`
	DeliveryPending bool                   `json:"delivery_pending,omitempty"`
	// Notification is set when rendering or delivery failed after commit.
	Notification *SubmissionError `json:"-"`
}

// Pipeline submits orders. It is safe for concurrent use.
type Pipeline struct {
	deps     Deps
	cfg      Config
	validate *validatorv10.Validate
	tracer   trace.Tracer
	now      func() time.Time

	inflight sync.WaitGroup
}

// New validates the dependencies and returns a Pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Numbers == nil:
		return nil, errors.New("pipeline: order number generator is required")
	case deps.Orders == nil:
		return nil, errors.New("pipeline: order store is required")
	case deps.Products == nil:
		return nil, errors.New("pipeline: product reader is required")
	case deps.Renderer == nil:
		return nil, errors.New("pipeline: renderer is required")
	case deps.Delivery == nil:
		return nil, errors.New("pipeline: delivery is required")
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Observer == nil {
		deps.Observer = LogObserver{Log: deps.Log}
	}
	if cfg.MaxNumberAttempts <= 0 {
		cfg.MaxNumberAttempts = DefaultMaxNumberAttempts
	}
	switch cfg.Mode {
	case "":
		cfg.Mode = DeliverDetached
	case DeliverSync, DeliverDetached:
	default:
		return nil, fmt.Errorf("pipeline: unknown delivery mode %q", cfg.Mode)
	}
	if cfg.SyncGrace <= 0 {
		cfg.SyncGrace = DefaultSyncGrace
	}
	if cfg.PickupLeadTime <= 0 {
		cfg.PickupLeadTime = 20 * time.Minute
	}
	if cfg.DeliveryLeadTime <= 0 {
		cfg.DeliveryLeadTime = 45 * time.Minute
	}
	return &Pipeline{
		deps:     deps,
		cfg:      cfg,
		validate: newValidator(),
		tracer:   otel.Tracer("restaurantOrdering/pipeline"),
		now:      time.Now,
	}, nil
}

// Submit runs one submission. A non-nil error is always a *SubmissionError and
// means nothing was committed.
func (p *Pipeline) Submit(ctx context.Context, req OrderRequest) (SubmissionResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Submit")
	defer span.End()

	res, err := p.submit(ctx, req)
	if err != nil {
		var se *SubmissionError
		errors.As(err, &se)
		span.SetStatus(codes.Error, string(se.Kind))
		span.RecordError(err)
		p.deps.Observer.Observe(ctx, Event{Type: EventSubmissionFailed, Stage: se.Stage, Kind: se.Kind, Err: err})
		return SubmissionResult{Stage: StageFailed, Attempts: res.Attempts}, err
	}
	span.SetAttributes(attribute.String("order.number", res.OrderNumber), attribute.Int("order.number_attempts", res.Attempts))
	return res, nil
}

func (p *Pipeline) submit(ctx context.Context, req OrderRequest) (SubmissionResult, error) {
	// Validating
	if err := p.validate.Struct(req); err != nil {
		return SubmissionResult{}, fail(ValidationFailure, StageValidating, describe(err), err)
	}
	products, err := p.lookupProducts(ctx, req.Items)
	if err != nil {
		return SubmissionResult{}, err
	}

	order := p.buildOrder(req)
	if sum := models.ItemsTotal(buildItems(req.Items)); !sum.Equal(order.Subtotal) {
		p.deps.Observer.Observe(ctx, Event{
			Type:  EventSubtotalMismatch,
			Stage: StageValidating,
			Err:   fmt.Errorf("items total %s != subtotal %s", sum.StringFixed(2), order.Subtotal.StringFixed(2)),
		})
	}

	// NumberGeneration + Persisting, retried on collision
	var (
		items    []models.OrderItem
		attempts int
	)
	for attempts = 1; ; attempts++ {
		if attempts > p.cfg.MaxNumberAttempts {
			return SubmissionResult{Attempts: attempts - 1}, fail(DuplicateIdentifier, StageNumberGeneration,
				fmt.Sprintf("order number collided %d times", p.cfg.MaxNumberAttempts), repository.ErrDuplicateOrderNumber)
		}
		number, err := p.generate(ctx)
		if err != nil {
			return SubmissionResult{Attempts: attempts}, fail(TransientStorageError, StageNumberGeneration, "order number unavailable", err)
		}
		order.Number = number
		order.ID = 0
		items = buildItems(req.Items)

		id, _, err := p.persist(ctx, order, items)
		if err == nil {
			order.ID = id
			break
		}
		switch {
		case errors.Is(err, repository.ErrDuplicateOrderNumber):
			p.deps.Observer.Observe(ctx, Event{Type: EventNumberCollision, Stage: StagePersisting, OrderNumber: number, Attempt: attempts, Err: err})
			continue
		case errors.Is(err, repository.ErrInvalidRow):
			return SubmissionResult{Attempts: attempts}, fail(ValidationFailure, StagePersisting, "order rejected by storage", err)
		default:
			return SubmissionResult{Attempts: attempts}, fail(TransientStorageError, StagePersisting, "order could not be stored", err)
		}
	}

	for i := range items {
		items[i].ProductName = products[items[i].ProductID].Name
	}
	res := SubmissionResult{
		OrderID:     order.ID,
		OrderNumber: order.Number,
		Status:      order.Status,
		Stage:       StageRendering,
		Attempts:    attempts,
	}
	p.deps.Observer.Observe(ctx, Event{Type: EventOrderSubmitted, Stage: StagePersisting, OrderNumber: order.Number, Attempt: attempts})

	// Committed. Nothing below may fail the submission.
	p.notify(ctx, order, items, &res)
	return res, nil
}

func (p *Pipeline) generate(ctx context.Context) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.GenerateNumber")
	defer span.End()
	n, err := p.deps.Numbers.Generate(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate")
	}
	return n, err
}

func (p *Pipeline) persist(ctx context.Context, order *models.Order, items []models.OrderItem) (int64, string, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.Persist", trace.WithAttributes(attribute.String("order.number", order.Number)))
	defer span.End()
	id, number, err := p.deps.Orders.CreateWithItems(ctx, order, items)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
	}
	return id, number, err
}

// lookupProducts checks every referenced product exists and is active.
func (p *Pipeline) lookupProducts(ctx context.Context, reqItems []ItemRequest) (map[int64]models.Product, error) {
	ids := make([]int64, 0, len(reqItems))
	seen := make(map[int64]bool, len(reqItems))
	for _, it := range reqItems {
		if !seen[it.ProductID] {
			seen[it.ProductID] = true
			ids = append(ids, it.ProductID)
		}
	}
	products, err := p.deps.Products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fail(TransientStorageError, StageValidating, "products could not be loaded", err)
	}
	for i, it := range reqItems {
		prod, ok := products[it.ProductID]
		if !ok {
			return nil, fail(ValidationFailure, StageValidating, fmt.Sprintf("items[%d].product_id %d does not exist", i, it.ProductID), nil)
		}
		if !prod.Active {
			return nil, fail(ValidationFailure, StageValidating, fmt.Sprintf("items[%d].product_id %d is not available", i, it.ProductID), nil)
		}
	}
	return products, nil
}

func (p *Pipeline) buildOrder(req OrderRequest) *models.Order {
	now := p.now().UTC()
	eta := req.EstimatedTime
	if eta.IsZero() {
		lead := p.cfg.PickupLeadTime
		if req.OrderType == models.OrderTypeDelivery {
			lead = p.cfg.DeliveryLeadTime
		}
		eta = now.Add(lead)
	}
	o := &models.Order{
		CustomerName:        req.CustomerName,
		CustomerEmail:       req.CustomerEmail,
		CustomerPhone:       req.CustomerPhone,
		Type:                req.OrderType,
		SpecialInstructions: req.SpecialInstructions,
		Subtotal:            req.Subtotal,
		DeliveryFee:         req.DeliveryFee,
		TotalAmount:         req.Total,
		EstimatedTime:       eta,
		Status:              models.OrderStatusPending,
		CreatedAt:           now,
	}
	if req.OrderType == models.OrderTypeDelivery {
		o.DeliveryAddress = req.DeliveryAddress
		o.DeliveryInstructions = req.DeliveryInstructions
	}
	return o
}

func buildItems(reqItems []ItemRequest) []models.OrderItem {
	items := make([]models.OrderItem, len(reqItems))
	for i, it := range reqItems {
		items[i] = models.OrderItem{
			ProductID:           it.ProductID,
			Quantity:            it.Quantity,
			UnitPrice:           it.UnitPrice,
			SpecialInstructions: it.SpecialInstructions,
			Customizations:      it.Customizations,
		}
	}
	return items
}
