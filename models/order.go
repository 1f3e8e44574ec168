package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderType distinguishes customer pickup from courier delivery.
type OrderType string

const (
	OrderTypePickup   OrderType = "pickup"
	OrderTypeDelivery OrderType = "delivery"
)

// OrderStatus represents the current progress of an order.
// Only "pending" is assigned here; later transitions belong to the kitchen/admin flows.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Order is the persisted order header. Number is the customer-facing identity and
// never changes once assigned.
type Order struct {
	ID                   int64           `db:"id" json:"id"`
	Number               string          `db:"order_number" json:"order_number"`
	CustomerName         string          `db:"customer_name" json:"customer_name"`
	CustomerEmail        string          `db:"customer_email" json:"customer_email"`
	CustomerPhone        string          `db:"customer_phone" json:"customer_phone"`
	Type                 OrderType       `db:"order_type" json:"order_type"`
	DeliveryAddress      *string         `db:"delivery_address" json:"delivery_address,omitempty"`
	DeliveryInstructions *string         `db:"delivery_instructions" json:"delivery_instructions,omitempty"`
	SpecialInstructions  *string         `db:"special_instructions" json:"special_instructions,omitempty"`
	Subtotal             decimal.Decimal `db:"subtotal" json:"subtotal"`
	DeliveryFee          decimal.Decimal `db:"delivery_fee" json:"delivery_fee"`
	TotalAmount          decimal.Decimal `db:"total_amount" json:"total_amount"`
	EstimatedTime        time.Time       `db:"estimated_time" json:"estimated_time"`
	Status               OrderStatus     `db:"status" json:"status"`
	CreatedAt            time.Time       `db:"created_at" json:"created_at"`
}

// TotalsConsistent reports whether TotalAmount equals Subtotal + DeliveryFee.
func (o *Order) TotalsConsistent() bool {
	return o.Subtotal.Add(o.DeliveryFee).Equal(o.TotalAmount)
}

// Customization is a single modifier applied to an item, e.g. {"Size", "Large", 1.50}.
type Customization struct {
	Name   string          `json:"name"`
	Option string          `json:"option,omitempty"`
	Price  decimal.Decimal `json:"price"`
}

// OrderItem belongs to exactly one Order. ProductName is resolved from the
// products table for rendering and is not stored on the item row.
type OrderItem struct {
	ID                  int64           `db:"id" json:"id"`
	OrderID             int64           `db:"order_id" json:"order_id"`
	ProductID           int64           `db:"product_id" json:"product_id"`
	ProductName         string          `db:"-" json:"product_name,omitempty"`
	Quantity            int             `db:"quantity" json:"quantity"`
	UnitPrice           decimal.Decimal `db:"unit_price" json:"unit_price"`
	TotalPrice          decimal.Decimal `db:"total_price" json:"total_price"`
	SpecialInstructions *string         `db:"special_instructions" json:"special_instructions,omitempty"`
	Customizations      []Customization `db:"customizations" json:"customizations,omitempty"`
}

// LineTotal returns UnitPrice × Quantity.
func (it *OrderItem) LineTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ItemsTotal sums line totals. Used for the advisory subtotal reconciliation.
func ItemsTotal(items []OrderItem) decimal.Decimal {
	sum := decimal.Zero
	for i := range items {
		sum = sum.Add(items[i].LineTotal())
	}
	return sum
}
