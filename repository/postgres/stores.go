package postgres

import (
	"context"
	"errors"
	"fmt"

	"restaurantOrdering/models"
	"restaurantOrdering/repository"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ProductStore reads the product reference table.
type ProductStore struct {
	pool *pgxpool.Pool
}

// FailureStore is the PostgreSQL dead-letter table for confirmations.
type FailureStore struct {
	pool *pgxpool.Pool
}

// UserStore reads staff accounts.
type UserStore struct {
	pool *pgxpool.Pool
}

var (
	_ repository.ProductReader = (*ProductStore)(nil)
	_ repository.FailureStore  = (*FailureStore)(nil)
	_ repository.UserReader    = (*UserStore)(nil)
)

func NewProductStore(pool *pgxpool.Pool) *ProductStore { return &ProductStore{pool: pool} }
func NewFailureStore(pool *pgxpool.Pool) *FailureStore { return &FailureStore{pool: pool} }
func NewUserStore(pool *pgxpool.Pool) *UserStore       { return &UserStore{pool: pool} }

// GetByIDs returns the products with the given IDs keyed by ID.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT id, name, price::text, active FROM products WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Product
		var price string
		if err := rows.Scan(&p.ID, &p.Name, &price, &p.Active); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, classify(rows.Err())
}

// Record upserts a failure row and marks it unresolved.
func (s *FailureStore) Record(ctx context.Context, f models.ConfirmationFailure) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO confirmation_failures (order_number, recipient, transport, last_error)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (order_number) DO UPDATE SET
		    recipient  = EXCLUDED.recipient,
		    transport  = EXCLUDED.transport,
		    last_error = EXCLUDED.last_error,
		    attempts   = confirmation_failures.attempts + 1,
		    resolved   = FALSE,
		    updated_at = now()`,
		f.OrderNumber, f.Recipient, f.Transport, f.LastError)
	return classify(err)
}

// ListUnresolved returns unresolved failures, oldest first.
func (s *FailureStore) ListUnresolved(ctx context.Context, limit int) ([]models.ConfirmationFailure, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, order_number, recipient, transport, last_error, attempts, resolved, created_at, updated_at
		FROM confirmation_failures
		WHERE NOT resolved
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, classify(err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[models.ConfirmationFailure])
	if err != nil {
		return nil, fmt.Errorf("collect confirmation failures: %w", err)
	}
	return out, nil
}

// MarkResolved flags the failure for orderNumber as resolved.
func (s *FailureStore) MarkResolved(ctx context.Context, orderNumber string) error {
	_, err := s.pool.Exec(ctx, `UPDATE confirmation_failures SET resolved = TRUE, updated_at = now() WHERE order_number = $1`, orderNumber)
	return classify(err)
}

// GetByUsername fetches a user by username. Returns (nil, nil) if not found.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `SELECT id, username, role FROM users WHERE username = $1`, username).
		Scan(&u.ID, &u.Username, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

// EnsureRole creates username with role, or updates the role if the user exists.
func (s *UserStore) EnsureRole(ctx context.Context, username, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, role) VALUES ($1, $2)
		ON CONFLICT (username) DO UPDATE SET role = EXCLUDED.role`, username, role)
	return classify(err)
}
