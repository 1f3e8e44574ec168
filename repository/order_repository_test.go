package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"restaurantOrdering/internal/db"
	"restaurantOrdering/models"

	"github.com/shopspring/decimal"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func newOrder(number string) *models.Order {
	return &models.Order{
		Number:        number,
		CustomerName:  "Test Customer",
		CustomerEmail: "test@example.com",
		CustomerPhone: "555-0100",
		Type:          models.OrderTypePickup,
		Subtotal:      decimal.RequireFromString("15.00"),
		DeliveryFee:   decimal.Zero,
		TotalAmount:   decimal.RequireFromString("15.00"),
		EstimatedTime: time.Date(2026, 10, 18, 18, 30, 0, 0, time.UTC),
		CreatedAt:     time.Date(2026, 10, 18, 18, 0, 0, 0, time.UTC),
	}
}

func TestCreateWithItems_PersistsOrderAndComputedTotals(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()

	note := "extra crispy"
	items := []models.OrderItem{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("7.50"), SpecialInstructions: &note,
			Customizations: []models.Customization{{Name: "Dip", Option: "Marinara", Price: decimal.Zero}}},
	}
	id, number, err := repo.CreateWithItems(ctx, newOrder("ORD-20261018-AAAAAA"), items)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 || number != "ORD-20261018-AAAAAA" {
		t.Fatalf("unexpected id/number: %d %q", id, number)
	}
	if items[0].OrderID != id || items[0].ID == 0 {
		t.Fatalf("item ids not populated: %+v", items[0])
	}

	got, err := repo.GetByNumber(ctx, number)
	if err != nil || got == nil {
		t.Fatalf("get by number: %v %+v", err, got)
	}
	if got.Status != models.OrderStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if !got.TotalAmount.Equal(decimal.RequireFromString("15.00")) || !got.TotalsConsistent() {
		t.Errorf("totals not persisted: %+v", got)
	}

	persisted, err := repo.ListItems(ctx, id)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(persisted) != 1 {
		t.Fatalf("expected 1 item, got %d", len(persisted))
	}
	it := persisted[0]
	if it.ProductID != 1 || it.Quantity != 2 || it.ProductName != "Garlic Knots" {
		t.Errorf("unexpected item: %+v", it)
	}
	if it.TotalPrice.StringFixed(2) != "15.00" {
		t.Errorf("total_price = %s, want 15.00", it.TotalPrice.StringFixed(2))
	}
	if it.SpecialInstructions == nil || *it.SpecialInstructions != note {
		t.Errorf("special instructions lost: %+v", it.SpecialInstructions)
	}
	if len(it.Customizations) != 1 || it.Customizations[0].Option != "Marinara" {
		t.Errorf("customizations lost: %+v", it.Customizations)
	}
}

func TestCreateWithItems_RollsBackWhenItemInsertFails(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()

	// The order row inserts fine; the second item violates CHECK (quantity > 0).
	items := []models.OrderItem{
		{ProductID: 1, Quantity: 1, UnitPrice: decimal.RequireFromString("7.50")},
		{ProductID: 2, Quantity: 0, UnitPrice: decimal.RequireFromString("14.00")},
	}
	_, _, err := repo.CreateWithItems(ctx, newOrder("ORD-20261018-ROLLBK"), items)
	if err == nil {
		t.Fatal("expected error for invalid item")
	}
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}

	n, err := repo.CountByNumber(ctx, "ORD-20261018-ROLLBK")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("order row survived rollback: count=%d", n)
	}
	var itemCount int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_items`).Scan(&itemCount); err != nil {
		t.Fatalf("count items: %v", err)
	}
	if itemCount != 0 {
		t.Fatalf("orphan items after rollback: %d", itemCount)
	}
}

func TestCreateWithItems_UnknownProductIsInvalidRow(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	items := []models.OrderItem{{ProductID: 999, Quantity: 1, UnitPrice: decimal.RequireFromString("1.00")}}
	_, _, err := repo.CreateWithItems(context.Background(), newOrder("ORD-20261018-NOPROD"), items)
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow for foreign key violation, got %v", err)
	}
}

func TestCreateWithItems_DuplicateNumber(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	ctx := context.Background()
	items := func() []models.OrderItem {
		return []models.OrderItem{{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("7.50")}}
	}

	if _, _, err := repo.CreateWithItems(ctx, newOrder("ORD-20261018-DUPDUP"), items()); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, _, err := repo.CreateWithItems(ctx, newOrder("ORD-20261018-DUPDUP"), items())
	if !errors.Is(err, ErrDuplicateOrderNumber) {
		t.Fatalf("expected ErrDuplicateOrderNumber, got %v", err)
	}
	n, _ := repo.CountByNumber(ctx, "ORD-20261018-DUPDUP")
	if n != 1 {
		t.Fatalf("expected exactly one order, got %d", n)
	}
}

func TestCreateWithItems_RejectsEmptyNumber(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	_, _, err := repo.CreateWithItems(context.Background(), newOrder("  "), nil)
	if !errors.Is(err, ErrInvalidRow) {
		t.Fatalf("expected ErrInvalidRow, got %v", err)
	}
}

func TestGetByNumber_NotFound(t *testing.T) {
	repo := NewOrderRepository(openTestDB(t))
	o, err := repo.GetByNumber(context.Background(), "missing")
	if err != nil || o != nil {
		t.Fatalf("expected (nil, nil), got %+v %v", o, err)
	}
}

func TestClassifySQLite_ContextErrorsAreTransient(t *testing.T) {
	err := classifySQLite(context.DeadlineExceeded)
	if !errors.Is(err, ErrTransientStorage) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected transient wrapping deadline, got %v", err)
	}
	if classifySQLite(nil) != nil {
		t.Fatal("nil should stay nil")
	}
}
