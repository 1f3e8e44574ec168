package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrDuplicateOrderNumber is returned when the order number collides with an existing order.
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	// ErrInvalidRow is returned for rows rejected by a CHECK, NOT NULL or FOREIGN KEY constraint.
	ErrInvalidRow = errors.New("invalid row")
	// ErrTransientStorage marks connection, lock and timeout failures. Callers may retry.
	ErrTransientStorage = errors.New("transient storage error")
)

// classifySQLite maps driver errors onto the sentinels above. The returned error
// wraps both the sentinel and the original cause.
func classifySQLite(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return fmt.Errorf("%w: %w", ErrTransientStorage, err)
	}
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code {
	case sqlite3.ErrConstraint:
		if se.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(se.Error(), "orders.order_number") {
			return fmt.Errorf("%w: %w", ErrDuplicateOrderNumber, err)
		}
		return fmt.Errorf("%w: %w", ErrInvalidRow, err)
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen, sqlite3.ErrFull, sqlite3.ErrProtocol:
		return fmt.Errorf("%w: %w", ErrTransientStorage, err)
	}
	return err
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
