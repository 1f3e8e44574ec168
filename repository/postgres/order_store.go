package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const orderNumberConstraint = "uq_orders_order_number"

// OrderStore persists orders with pgx.
type OrderStore struct {
	pool *pgxpool.Pool
}

var _ repository.OrderStore = (*OrderStore)(nil)

// NewOrderStore constructs a new OrderStore.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// CreateWithItems inserts the order header and its items in one transaction.
// Amounts are sent as fixed two-decimal text and cast to NUMERIC in SQL.
func (s *OrderStore) CreateWithItems(ctx context.Context, o *models.Order, items []models.OrderItem) (int64, string, error) {
	if o == nil {
		return 0, "", fmt.Errorf("%w: order is nil", repository.ErrInvalidRow)
	}
	if strings.TrimSpace(o.Number) == "" {
		return 0, "", fmt.Errorf("%w: order number is empty", repository.ErrInvalidRow)
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}

	var orderID int64
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (order_number, customer_name, customer_email, customer_phone, order_type,
			                    delivery_address, delivery_instructions, special_instructions,
			                    subtotal, delivery_fee, total_amount, estimated_time, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10::numeric, $11::numeric, $12, $13, $14)
			RETURNING id`,
			o.Number, o.CustomerName, o.CustomerEmail, o.CustomerPhone, string(o.Type),
			o.DeliveryAddress, o.DeliveryInstructions, o.SpecialInstructions,
			o.Subtotal.StringFixed(2), o.DeliveryFee.StringFixed(2), o.TotalAmount.StringFixed(2),
			o.EstimatedTime.UTC(), string(o.Status), o.CreatedAt.UTC(),
		).Scan(&orderID)
		if err != nil {
			return err
		}

		for i := range items {
			it := &items[i]
			custom := it.Customizations
			if custom == nil {
				custom = []models.Customization{}
			}
			raw, err := json.Marshal(custom)
			if err != nil {
				return fmt.Errorf("%w: item %d customizations: %v", repository.ErrInvalidRow, i+1, err)
			}
			total := it.LineTotal()
			if err := tx.QueryRow(ctx, `
				INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, special_instructions, customizations)
				VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7::jsonb)
				RETURNING id`,
				orderID, it.ProductID, it.Quantity, it.UnitPrice.StringFixed(2), total.StringFixed(2),
				it.SpecialInstructions, string(raw),
			).Scan(&it.ID); err != nil {
				return fmt.Errorf("item %d: %w", i+1, err)
			}
			it.OrderID = orderID
			it.TotalPrice = total
		}
		return nil
	})
	if err != nil {
		return 0, "", classify(err)
	}
	o.ID = orderID
	return orderID, o.Number, nil
}

// GetByNumber retrieves an order by its unique number. Returns (nil, nil) if not found.
func (s *OrderStore) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	var o models.Order
	var orderType, status, subtotal, fee, total string
	err := s.pool.QueryRow(ctx, `
		SELECT id, order_number, customer_name, customer_email, customer_phone, order_type,
		       delivery_address, delivery_instructions, special_instructions,
		       subtotal::text, delivery_fee::text, total_amount::text, estimated_time, status, created_at
		FROM orders
		WHERE order_number = $1`, number).Scan(
		&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &orderType,
		&o.DeliveryAddress, &o.DeliveryInstructions, &o.SpecialInstructions,
		&subtotal, &fee, &total, &o.EstimatedTime, &status, &o.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	o.Type = models.OrderType(orderType)
	o.Status = models.OrderStatus(status)
	if o.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, err
	}
	if o.DeliveryFee, err = decimal.NewFromString(fee); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	return &o, nil
}

// ListItems returns the items of an order with product names resolved.
func (s *OrderStore) ListItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity,
		       i.unit_price::text, i.total_price::text, i.special_instructions, i.customizations::text
		FROM order_items i
		LEFT JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, orderID)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		var unit, total, custom string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&unit, &total, &it.SpecialInstructions, &custom); err != nil {
			return nil, err
		}
		if it.UnitPrice, err = decimal.NewFromString(unit); err != nil {
			return nil, err
		}
		if it.TotalPrice, err = decimal.NewFromString(total); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(custom), &it.Customizations); err != nil {
			return nil, fmt.Errorf("decode customizations for item %d: %w", it.ID, err)
		}
		if len(it.Customizations) == 0 {
			it.Customizations = nil
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// classify maps pgx errors onto the repository sentinels.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrInvalidRow) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505" && pgErr.ConstraintName == orderNumberConstraint:
			return fmt.Errorf("%w: %w", repository.ErrDuplicateOrderNumber, err)
		case strings.HasPrefix(pgErr.Code, "23"), strings.HasPrefix(pgErr.Code, "22"):
			// integrity_constraint_violation, data_exception
			return fmt.Errorf("%w: %w", repository.ErrInvalidRow, err)
		case pgErr.Code == "40001", pgErr.Code == "40P01", strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			return fmt.Errorf("%w: %w", repository.ErrTransientStorage, err)
		}
		return err
	}
	if pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", repository.ErrTransientStorage, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", repository.ErrTransientStorage, err)
	}
	return err
}
