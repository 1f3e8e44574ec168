package httpapi

import (
	"time"

	"restaurantOrdering/models"

	"github.com/shopspring/decimal"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// SubmitResponse is returned by POST /orders.
type SubmitResponse struct {
	OrderID           int64                  `json:"order_id"`
	OrderNumber       string                 `json:"order_number"`
	Status            models.OrderStatus     `json:"status"`
	Delivery          *models.DeliveryResult `json:"delivery,omitempty"`
	DeliveryPending   bool                   `json:"delivery_pending,omitempty"`
	NotificationError string                 `json:"notification_error,omitempty"`
}

// OrderStatusResponse is the unauthenticated view returned by GET /orders/{number}.
// It carries no customer contact details.
type OrderStatusResponse struct {
	OrderNumber   string             `json:"order_number"`
	Status        models.OrderStatus `json:"status"`
	OrderType     models.OrderType   `json:"order_type"`
	Subtotal      decimal.Decimal    `json:"subtotal"`
	DeliveryFee   decimal.Decimal    `json:"delivery_fee"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	EstimatedTime time.Time          `json:"estimated_time"`
	CreatedAt     time.Time          `json:"created_at"`
	Items         []StatusItem       `json:"items"`
}

// StatusItem is one line of OrderStatusResponse.
type StatusItem struct {
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

func newOrderStatusResponse(o *models.Order, items []models.OrderItem) OrderStatusResponse {
	out := OrderStatusResponse{
		OrderNumber:   o.Number,
		Status:        o.Status,
		OrderType:     o.Type,
		Subtotal:      o.Subtotal,
		DeliveryFee:   o.DeliveryFee,
		TotalAmount:   o.TotalAmount,
		EstimatedTime: o.EstimatedTime,
		CreatedAt:     o.CreatedAt,
		Items:         make([]StatusItem, len(items)),
	}
	for i, it := range items {
		out.Items[i] = StatusItem{
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			TotalPrice:  it.TotalPrice,
		}
	}
	return out
}

// OrderResponse is the full order returned by GET /admin/orders/{number}.
type OrderResponse struct {
	*models.Order
	Items []models.OrderItem `json:"items"`
}

// ResendResponse is returned by the admin resend endpoint.
type ResendResponse struct {
	OrderNumber string                `json:"order_number"`
	Delivery    models.DeliveryResult `json:"delivery"`
}

// cachedResponse is what the idempotency store keeps per key.
type cachedResponse struct {
	Status        int            `json:"status"`
	RequestDigest string         `json:"request_digest"`
	Body          SubmitResponse `json:"body"`
}
