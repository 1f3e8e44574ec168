// Package httpapi exposes order submission and the admin confirmation surface over HTTP.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"restaurantOrdering/internal/auth"
	"restaurantOrdering/internal/logger"
	"restaurantOrdering/internal/pipeline"
	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Submitter is the slice of the pipeline the handlers use.
type Submitter interface {
	Submit(ctx context.Context, req pipeline.OrderRequest) (pipeline.SubmissionResult, error)
	Resend(ctx context.Context, number string) (models.DeliveryResult, error)
}

// Options wires the router's collaborators. Idempotency and Ping are optional.
type Options struct {
	Pipeline       Submitter
	Orders         repository.OrderStore
	Failures       repository.FailureStore
	Users          repository.UserReader
	Idempotency    IdempotencyStore
	IdempotencyTTL time.Duration
	JWTSecret      string
	Log            *slog.Logger
	Ping           func(ctx context.Context) error
}

// Handler serves the HTTP API.
type Handler struct {
	opts Options
	log  *slog.Logger
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = 24 * time.Hour
	}
	h := &Handler{opts: opts, log: opts.Log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.tracing)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Post("/orders", h.SubmitOrder)
	r.Get("/orders/{number}", h.GetOrder)

	r.Route("/admin", func(r chi.Router) {
		r.Use(auth.Middleware(opts.JWTSecret))
		r.Use(auth.RequireAdmin(opts.Users))
		r.Get("/orders/{number}", h.GetOrderDetail)
		r.Get("/confirmations/failed", h.ListFailedConfirmations)
		r.Post("/confirmations/{number}/resend", h.ResendConfirmation)
	})
	return r
}

// tracing starts a server span named after the matched route and carries the
// chi request id into the logger context.
func (h *Handler) tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("restaurantOrdering/httpapi")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = logger.WithRequestID(ctx, middleware.GetReqID(r.Context()))
		ctx, span := tracer.Start(ctx, r.Method, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		// the pattern is only known once chi has routed the request
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				span.SetName(r.Method + " " + pattern)
				span.SetAttributes(attribute.String("http.route", pattern))
			}
		}
		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.Int("http.response.status_code", ww.Status()),
		)
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.log.InfoContext(r.Context(), "http_request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
