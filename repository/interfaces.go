package repository

import (
	"context"

	"restaurantOrdering/models"
)

// OrderStore persists an order and its items as one unit of work.
// Implemented by OrderRepository (SQLite) and postgres.OrderStore.
type OrderStore interface {
	CreateWithItems(ctx context.Context, o *models.Order, items []models.OrderItem) (int64, string, error)
	GetByNumber(ctx context.Context, number string) (*models.Order, error)
	ListItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
}

// ProductReader resolves product references for validation and rendering.
type ProductReader interface {
	GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error)
}

// FailureStore records confirmations that could not be delivered.
type FailureStore interface {
	Record(ctx context.Context, f models.ConfirmationFailure) error
	ListUnresolved(ctx context.Context, limit int) ([]models.ConfirmationFailure, error)
	MarkResolved(ctx context.Context, orderNumber string) error
}

// UserReader looks up staff accounts for admin authorization.
type UserReader interface {
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

var (
	_ OrderStore    = (*OrderRepository)(nil)
	_ ProductReader = (*ProductRepository)(nil)
	_ FailureStore  = (*FailureRepository)(nil)
	_ UserReader    = (*UserRepository)(nil)
)
