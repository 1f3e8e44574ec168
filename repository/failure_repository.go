package repository

import (
	"context"
	"database/sql"
	"time"

	"restaurantOrdering/models"
)

// FailureRepository stores confirmations that could not be delivered, one row per
// order. Repeated failures for the same order bump attempts and last_error.
type FailureRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewFailureRepository creates a new FailureRepository.
func NewFailureRepository(db *sql.DB) *FailureRepository {
	return &FailureRepository{db: db, now: time.Now}
}

// Record upserts a failure row and marks it unresolved.
func (r *FailureRepository) Record(ctx context.Context, f models.ConfirmationFailure) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	now := r.now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO confirmation_failures (order_number, recipient, transport, last_error, attempts, resolved, created_at, updated_at)
VALUES (?, ?, ?, ?, 1, 0, ?, ?)
ON CONFLICT(order_number) DO UPDATE SET
    recipient  = excluded.recipient,
    transport  = excluded.transport,
    last_error = excluded.last_error,
    attempts   = confirmation_failures.attempts + 1,
    resolved   = 0,
    updated_at = excluded.updated_at`,
		f.OrderNumber, f.Recipient, f.Transport, f.LastError, now, now)
	return classifySQLite(err)
}

// ListUnresolved returns unresolved failures, oldest first.
func (r *FailureRepository) ListUnresolved(ctx context.Context, limit int) ([]models.ConfirmationFailure, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `
SELECT id, order_number, recipient, transport, last_error, attempts, resolved, created_at, updated_at
FROM confirmation_failures
WHERE resolved = 0
ORDER BY created_at, id
LIMIT ?`, limit)
	if err != nil {
		return nil, classifySQLite(err)
	}
	defer rows.Close()
	var out []models.ConfirmationFailure
	for rows.Next() {
		var f models.ConfirmationFailure
		if err := rows.Scan(&f.ID, &f.OrderNumber, &f.Recipient, &f.Transport, &f.LastError,
			&f.Attempts, &f.Resolved, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// MarkResolved flags the failure for orderNumber as resolved. Missing rows are not an error.
func (r *FailureRepository) MarkResolved(ctx context.Context, orderNumber string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	_, err := r.db.ExecContext(ctx, `UPDATE confirmation_failures SET resolved = 1, updated_at = ? WHERE order_number = ?`,
		r.now().UTC(), orderNumber)
	return classifySQLite(err)
}
