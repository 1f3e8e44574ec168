package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"restaurantOrdering/models"
)

// ProductRepository reads the product reference table. Products are seeded by
// migrations; this service never writes them.
type ProductRepository struct {
	db *sql.DB
}

// NewProductRepository creates a new ProductRepository.
func NewProductRepository(db *sql.DB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID fetches a product by its ID. Returns (nil, nil) if not found.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	var p models.Product
	err := r.db.QueryRowContext(ctx, `SELECT id, name, price, active FROM products WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Price, &p.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classifySQLite(err)
	}
	return &p, nil
}

// GetByIDs returns the products with the given IDs keyed by ID. Unknown IDs are absent.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	out := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, price, active FROM products WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, classifySQLite(err)
	}
	defer rows.Close()
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// List returns active products ordered by ID.
func (r *ProductRepository) List(ctx context.Context, limit, offset int) ([]models.Product, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, price, active FROM products WHERE active = 1 ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, classifySQLite(err)
	}
	defer rows.Close()
	var out []models.Product
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.Active); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
