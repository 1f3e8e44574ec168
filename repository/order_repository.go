package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"restaurantOrdering/models"

	"github.com/shopspring/decimal"
)

// OrderRepository is the SQLite store for orders and their items.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateWithItems inserts the order header and every item inside one transaction.
// Each item's total_price is computed here as unit_price * quantity. If any
// statement fails the transaction is rolled back and nothing is visible to
// other readers. On success o and items carry their generated IDs.
func (r *OrderRepository) CreateWithItems(ctx context.Context, o *models.Order, items []models.OrderItem) (int64, string, error) {
	if o == nil {
		return 0, "", fmt.Errorf("%w: order is nil", ErrInvalidRow)
	}
	if strings.TrimSpace(o.Number) == "" {
		return 0, "", fmt.Errorf("%w: order number is empty", ErrInvalidRow)
	}
	if o.Status == "" {
		o.Status = models.OrderStatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", classifySQLite(err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO orders (order_number, customer_name, customer_email, customer_phone, order_type,
                    delivery_address, delivery_instructions, special_instructions,
                    subtotal, delivery_fee, total_amount, estimated_time, status, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.Number, o.CustomerName, o.CustomerEmail, o.CustomerPhone, string(o.Type),
		nullableString(o.DeliveryAddress), nullableString(o.DeliveryInstructions), nullableString(o.SpecialInstructions),
		o.Subtotal.StringFixed(2), o.DeliveryFee.StringFixed(2), o.TotalAmount.StringFixed(2),
		o.EstimatedTime.UTC(), string(o.Status), o.CreatedAt.UTC())
	if err != nil {
		return 0, "", classifySQLite(err)
	}
	orderID, err := res.LastInsertId()
	if err != nil {
		return 0, "", classifySQLite(err)
	}

	for i := range items {
		it := &items[i]
		custom, err := json.Marshal(customizationsOrEmpty(it.Customizations))
		if err != nil {
			return 0, "", fmt.Errorf("%w: item %d customizations: %v", ErrInvalidRow, i+1, err)
		}
		total := it.LineTotal()
		res, err := tx.ExecContext(ctx, `
INSERT INTO order_items (order_id, product_id, quantity, unit_price, total_price, special_instructions, customizations)
VALUES (?,?,?,?,?,?,?)`,
			orderID, it.ProductID, it.Quantity, it.UnitPrice.StringFixed(2), total.StringFixed(2),
			nullableString(it.SpecialInstructions), string(custom))
		if err != nil {
			return 0, "", fmt.Errorf("item %d: %w", i+1, classifySQLite(err))
		}
		itemID, err := res.LastInsertId()
		if err != nil {
			return 0, "", classifySQLite(err)
		}
		it.ID = itemID
		it.OrderID = orderID
		it.TotalPrice = total
	}

	if err := tx.Commit(); err != nil {
		return 0, "", classifySQLite(err)
	}
	o.ID = orderID
	return orderID, o.Number, nil
}

const orderColumns = `id, order_number, customer_name, customer_email, customer_phone, order_type,
       delivery_address, delivery_instructions, special_instructions,
       subtotal, delivery_fee, total_amount, estimated_time, status, created_at`

// GetByNumber fetches an order by its order number. Returns (nil, nil) if not found.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = ?`, number))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifySQLite(err)
	}
	return o, nil
}

// GetByID fetches an order by its ID. Returns (nil, nil) if not found.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	o, err := scanOrder(r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classifySQLite(err)
	}
	return o, nil
}

// ListItems returns the items of an order in insertion order, with product names resolved.
func (r *OrderRepository) ListItems(ctx context.Context, orderID int64) ([]models.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
SELECT i.id, i.order_id, i.product_id, COALESCE(p.name, ''), i.quantity, i.unit_price, i.total_price,
       i.special_instructions, i.customizations
FROM order_items i
LEFT JOIN products p ON p.id = i.product_id
WHERE i.order_id = ?
ORDER BY i.id`, orderID)
	if err != nil {
		return nil, classifySQLite(err)
	}
	defer rows.Close()

	var out []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		var instr sql.NullString
		var custom string
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &it.TotalPrice, &instr, &custom); err != nil {
			return nil, err
		}
		it.SpecialInstructions = stringPtr(instr)
		if custom != "" && custom != "[]" {
			if err := json.Unmarshal([]byte(custom), &it.Customizations); err != nil {
				return nil, fmt.Errorf("decode customizations for item %d: %w", it.ID, err)
			}
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// CountByNumber returns how many orders carry the given number (0 or 1).
func (r *OrderRepository) CountByNumber(ctx context.Context, number string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE order_number = ?`, number).Scan(&n)
	return n, err
}

func scanOrder(row *sql.Row) (*models.Order, error) {
	var o models.Order
	var orderType, status string
	var addr, deliveryInstr, specialInstr sql.NullString
	var subtotal, fee, total string
	err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &orderType,
		&addr, &deliveryInstr, &specialInstr, &subtotal, &fee, &total, &o.EstimatedTime, &status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	o.Type = models.OrderType(orderType)
	o.Status = models.OrderStatus(status)
	o.DeliveryAddress = stringPtr(addr)
	o.DeliveryInstructions = stringPtr(deliveryInstr)
	o.SpecialInstructions = stringPtr(specialInstr)
	if o.Subtotal, err = decimal.NewFromString(subtotal); err != nil {
		return nil, fmt.Errorf("parse subtotal: %w", err)
	}
	if o.DeliveryFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("parse delivery_fee: %w", err)
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	return &o, nil
}

func customizationsOrEmpty(c []models.Customization) []models.Customization {
	if c == nil {
		return []models.Customization{}
	}
	return c
}
