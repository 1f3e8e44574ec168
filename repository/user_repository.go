package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"restaurantOrdering/models"
)

// UserRepository manages staff accounts used by the admin endpoints.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a staff user. Role defaults to 'staff' when empty.
func (r *UserRepository) Create(ctx context.Context, username, role string) (*models.User, error) {
	if role == "" {
		role = "staff"
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `INSERT INTO users (username, role) VALUES (?, ?)`, username, role)
	if err != nil {
		return nil, classifySQLite(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Username: username, Role: role}, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var u models.User
	err := r.db.QueryRowContext(ctx, `SELECT id, username, role FROM users WHERE username = ?`, username).Scan(&u.ID, &u.Username, &u.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// UpdateRoleByUsername sets the role for the given username.
func (r *UserRepository) UpdateRoleByUsername(ctx context.Context, username, role string) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	res, err := r.db.ExecContext(ctx, `UPDATE users SET role = ? WHERE username = ?`, role, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// EnsureRole creates username with role, or updates the role if the user exists.
func (r *UserRepository) EnsureRole(ctx context.Context, username, role string) error {
	err := r.UpdateRoleByUsername(ctx, username, role)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = r.Create(ctx, username, role)
	}
	return err
}
