package models

// RoleAdmin is the role required for the admin confirmation endpoints.
const RoleAdmin = "admin"

// User represents a staff account.
// It maps to the `users` table in SQLite.
type User struct {
	ID       int64  `db:"id" json:"id"`
	Username string `db:"username" json:"username"`
	Role     string `db:"role" json:"role"`
}
