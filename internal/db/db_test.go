package db

import (
	"path/filepath"
	"testing"
)

func TestOpen_AppliesMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.db")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 applied migrations, got %d", n)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// reopening must not re-run the seed
	d, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d.Close()
	if err := d.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 seeded products, got %d", n)
	}
}

func TestOpen_ForeignKeysEnabled(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "fk.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	var on int
	if err := d.QueryRow(`PRAGMA foreign_keys`).Scan(&on); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if on != 1 {
		t.Fatalf("foreign_keys = %d", on)
	}
}

func TestRollbackLast(t *testing.T) {
	d, err := Open(filepath.Join(t.TempDir(), "rb.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer d.Close()
	if err := RollbackLast(d); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	var n int
	if err := d.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		t.Fatalf("count products: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected seed rolled back, got %d products", n)
	}
	if err := d.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatalf("max version: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected version 1 to remain, got %d", n)
	}
}

func TestWithPragmas(t *testing.T) {
	cases := map[string]string{
		"orders.db":                       "file:orders.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
		"file:x?mode=memory&cache=shared": "file:x?mode=memory&cache=shared&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate",
	}
	for in, want := range cases {
		if got := withPragmas(in); got != want {
			t.Fatalf("withPragmas(%q) = %q, want %q", in, got, want)
		}
	}
}
