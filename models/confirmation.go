package models

import "time"

// ConfirmationDocument is the rendered customer confirmation. Never persisted.
type ConfirmationDocument struct {
	Subject string
	HTML    string
	Text    string
}

// DeliveryResult is the outcome of one delivery attempt.
// MessageID is set on success, Error on failure.
type DeliveryResult struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	Transport string    `json:"transport,omitempty"`
	Attempted time.Time `json:"attempted_at"`
}

// ConfirmationFailure is a dead-letter row for a confirmation that could not be sent.
type ConfirmationFailure struct {
	ID          int64     `db:"id" json:"id"`
	OrderNumber string    `db:"order_number" json:"order_number"`
	Recipient   string    `db:"recipient" json:"recipient"`
	Transport   string    `db:"transport" json:"transport"`
	LastError   string    `db:"last_error" json:"last_error"`
	Attempts    int       `db:"attempts" json:"attempts"`
	Resolved    bool      `db:"resolved" json:"resolved"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
