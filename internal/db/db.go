// Package db opens the SQLite order database and keeps its schema current.
package db

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens (or creates) the order database at path and applies any schema
// versions it has not seen yet. The pool is capped at one connection: SQLite
// has a single writer, and submissions queue on it instead of failing with
// SQLITE_BUSY.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = "orders.db"
	}
	d, err := sql.Open("sqlite3", withPragmas(path))
	if err != nil {
		return nil, fmt.Errorf("orders db: open %s: %w", path, err)
	}
	d.SetMaxOpenConns(1)
	if err := d.Ping(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("orders db: ping %s: %w", path, err)
	}
	// in-memory databases reject WAL; the default journal is fine there
	_, _ = d.Exec(`PRAGMA journal_mode=WAL`)
	if err := upgrade(d); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// withPragmas adds the go-sqlite3 connection parameters every pooled
// connection needs: enforced foreign keys, a busy timeout, and BEGIN IMMEDIATE
// so order transactions take the write lock up front.
func withPragmas(path string) string {
	params := "_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	if strings.Contains(path, "?") {
		return path + "&" + params
	}
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}
	return path + "?" + params
}

//go:embed migrations/*.sql
var schemaFS embed.FS

// schemaVersion is one numbered step, e.g. 0002_seed_products.{up,down}.sql.
type schemaVersion struct {
	number int
	label  string
	up     string
	down   string
}

var versionFileRe = regexp.MustCompile(`^(\d{4})_(.+)\.(up|down)\.sql$`)

// versions lists the embedded schema steps in ascending order.
func versions() ([]schemaVersion, error) {
	entries, err := fs.ReadDir(schemaFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("orders db: list schema files: %w", err)
	}
	byNumber := map[int]*schemaVersion{}
	for _, e := range entries {
		m := versionFileRe.FindStringSubmatch(e.Name())
		if e.IsDir() || m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		v := byNumber[n]
		if v == nil {
			v = &schemaVersion{number: n, label: m[2]}
			byNumber[n] = v
		}
		file := path.Join("migrations", e.Name())
		if m[3] == "up" {
			v.up = file
		} else {
			v.down = file
		}
	}
	out := make([]schemaVersion, 0, len(byNumber))
	for _, v := range byNumber {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].number < out[j].number })
	return out, nil
}

func ensureVersionTable(d *sql.DB) error {
	_, err := d.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version    INTEGER PRIMARY KEY,
        applied_at TEXT NOT NULL DEFAULT (CURRENT_TIMESTAMP)
    )`)
	return err
}

func currentVersions(d *sql.DB) (map[int]bool, error) {
	rows, err := d.Query(`SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	seen := map[int]bool{}
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		seen[n] = true
	}
	return seen, rows.Err()
}

// upgrade applies every embedded step not yet recorded in schema_migrations.
func upgrade(d *sql.DB) error {
	if err := ensureVersionTable(d); err != nil {
		return fmt.Errorf("orders db: %w", err)
	}
	all, err := versions()
	if err != nil {
		return err
	}
	seen, err := currentVersions(d)
	if err != nil {
		return fmt.Errorf("orders db: read schema version: %w", err)
	}
	for _, v := range all {
		if seen[v.number] {
			continue
		}
		if v.up == "" {
			return fmt.Errorf("orders db: schema %04d_%s has no up script", v.number, v.label)
		}
		if err := step(d, v.up, `INSERT INTO schema_migrations(version) VALUES(?)`, v.number); err != nil {
			return fmt.Errorf("orders db: schema %04d_%s: %w", v.number, v.label, err)
		}
	}
	return nil
}

// RollbackLast undoes the newest applied schema step using its down script.
func RollbackLast(d *sql.DB) error {
	if d == nil {
		return errors.New("orders db: nil handle")
	}
	if err := ensureVersionTable(d); err != nil {
		return fmt.Errorf("orders db: %w", err)
	}
	var latest int
	err := d.QueryRow(`SELECT version FROM schema_migrations ORDER BY version DESC LIMIT 1`).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("orders db: read schema version: %w", err)
	}
	all, err := versions()
	if err != nil {
		return err
	}
	for _, v := range all {
		if v.number != latest {
			continue
		}
		if v.down == "" {
			break
		}
		return step(d, v.down, `DELETE FROM schema_migrations WHERE version = ?`, latest)
	}
	return fmt.Errorf("orders db: schema %04d has no down script", latest)
}

// step runs one script together with its schema_migrations bookkeeping in a
// single transaction.
func step(d *sql.DB, file, bookkeeping string, number int) error {
	script, err := schemaFS.ReadFile(file)
	if err != nil {
		return err
	}
	tx, err := d.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.Exec(string(script)); err != nil {
		return err
	}
	if _, err := tx.Exec(bookkeeping, number); err != nil {
		return err
	}
	return tx.Commit()
}
