package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"restaurantOrdering/internal/pipeline"
	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	"github.com/go-chi/chi/v5"
)

const (
	maxBodyBytes      = 1 << 20
	idempotencyHeader = "Idempotency-Key"
	reserveTTL        = time.Minute
)

// Health reports liveness and, when configured, storage reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// SubmitOrder handles POST /orders.
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	digest := requestDigest(raw)

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.opts.Idempotency != nil {
		if h.replay(w, r, key, digest) {
			return
		}
		ok, err := h.opts.Idempotency.Reserve(ctx, key, reserveTTL)
		if err != nil {
			// cache outage degrades to a plain submission
			h.log.WarnContext(ctx, "idempotency_unavailable", "error", err)
			key = ""
		} else if !ok {
			if h.replay(w, r, key, digest) {
				return
			}
			writeError(w, http.StatusConflict, "request_in_progress", "a request with this Idempotency-Key is still being processed")
			return
		}
	}

	var req pipeline.OrderRequest
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.release(ctx, key)
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}

	res, err := h.opts.Pipeline.Submit(ctx, req)
	if err != nil {
		h.release(ctx, key)
		var se *pipeline.SubmissionError
		if !errors.As(err, &se) {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeError(w, statusForKind(se.Kind), string(se.Kind), se.Reason)
		return
	}

	body := SubmitResponse{
		OrderID:         res.OrderID,
		OrderNumber:     res.OrderNumber,
		Status:          res.Status,
		Delivery:        res.Delivery,
		DeliveryPending: res.DeliveryPending,
	}
	if res.Notification != nil {
		body.NotificationError = string(res.Notification.Kind)
	}
	if key != "" && h.opts.Idempotency != nil {
		entry, _ := json.Marshal(cachedResponse{Status: http.StatusCreated, RequestDigest: digest, Body: body})
		if err := h.opts.Idempotency.Store(context.WithoutCancel(ctx), key, string(entry), h.opts.IdempotencyTTL); err != nil {
			h.log.WarnContext(ctx, "idempotency_store_failed", "order_number", res.OrderNumber, "error", err)
		}
	}
	writeJSON(w, http.StatusCreated, body)
}

func requestDigest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// replay answers from the cached entry for key and reports whether it wrote a
// response. A key reused with a different body is rejected.
func (h *Handler) replay(w http.ResponseWriter, r *http.Request, key, digest string) bool {
	raw, ok, err := h.opts.Idempotency.Get(r.Context(), key)
	if err != nil || !ok || raw == pendingMarker {
		return false
	}
	var cached cachedResponse
	if err := json.Unmarshal([]byte(raw), &cached); err != nil {
		h.log.WarnContext(r.Context(), "idempotency_entry_corrupt", "error", err)
		return false
	}
	if cached.RequestDigest != digest {
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused",
			"this Idempotency-Key was already used with a different request body")
		return true
	}
	w.Header().Set("Idempotent-Replayed", "true")
	writeJSON(w, cached.Status, cached.Body)
	return true
}

func (h *Handler) release(ctx context.Context, key string) {
	if key == "" || h.opts.Idempotency == nil {
		return
	}
	if err := h.opts.Idempotency.Release(context.WithoutCancel(ctx), key); err != nil {
		h.log.WarnContext(ctx, "idempotency_release_failed", "error", err)
	}
}

func statusForKind(k pipeline.Kind) int {
	switch k {
	case pipeline.ValidationFailure:
		return http.StatusBadRequest
	case pipeline.DuplicateIdentifier:
		return http.StatusConflict
	case pipeline.TransientStorageError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// GetOrder handles GET /orders/{number}. Anyone holding a number may read its
// status, so the response leaves out customer details.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, items, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newOrderStatusResponse(order, items))
}

// GetOrderDetail handles GET /admin/orders/{number}.
func (h *Handler) GetOrderDetail(w http.ResponseWriter, r *http.Request) {
	order, items, ok := h.loadOrder(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, OrderResponse{Order: order, Items: items})
}

func (h *Handler) loadOrder(w http.ResponseWriter, r *http.Request) (*models.Order, []models.OrderItem, bool) {
	number := chi.URLParam(r, "number")
	order, err := h.opts.Orders.GetByNumber(r.Context(), number)
	if err != nil {
		writeStorageError(w, err)
		return nil, nil, false
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order_not_found", number)
		return nil, nil, false
	}
	items, err := h.opts.Orders.ListItems(r.Context(), order.ID)
	if err != nil {
		writeStorageError(w, err)
		return nil, nil, false
	}
	return order, items, true
}

// ListFailedConfirmations handles GET /admin/confirmations/failed.
func (h *Handler) ListFailedConfirmations(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}
	failures, err := h.opts.Failures.ListUnresolved(r.Context(), limit)
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"failures": failures, "count": len(failures)})
}

// ResendConfirmation handles POST /admin/confirmations/{number}/resend.
func (h *Handler) ResendConfirmation(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	dr, err := h.opts.Pipeline.Resend(r.Context(), number)
	if err != nil {
		var se *pipeline.SubmissionError
		switch {
		case errors.Is(err, pipeline.ErrOrderNotFound):
			writeError(w, http.StatusNotFound, "order_not_found", number)
		case errors.As(err, &se):
			writeError(w, http.StatusUnprocessableEntity, string(se.Kind), se.Reason)
		default:
			writeStorageError(w, err)
		}
		return
	}
	status := http.StatusOK
	if !dr.Success {
		status = http.StatusBadGateway
	}
	h.log.InfoContext(r.Context(), "confirmation_resent", "order_number", number, "success", dr.Success)
	writeJSON(w, status, ResendResponse{OrderNumber: number, Delivery: dr})
}

func writeStorageError(w http.ResponseWriter, err error) {
	if errors.Is(err, repository.ErrTransientStorage) {
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}
