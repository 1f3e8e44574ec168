// Package notify delivers rendered confirmations over a pluggable transport.
// Delivery never returns an error: every failure is folded into a
// models.DeliveryResult so callers cannot mistake it for a persistence failure.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"restaurantOrdering/models"
)

// DefaultTimeout bounds a single Send when Delivery.Timeout is zero.
const DefaultTimeout = 10 * time.Second

// settleWindow is how long send still accepts a transport result after ctx is done.
const settleWindow = 25 * time.Millisecond

// ErrInvalidRecipient is reported for addresses that do not parse.
var ErrInvalidRecipient = errors.New("invalid recipient address")

// Message is what a Transport actually ships.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
	Text    string
}

// Transport sends one message and returns a transport-specific message id.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg Message) (string, error)
}

// Delivery wraps a Transport with a timeout, panic recovery and recipient checks.
type Delivery struct {
	Transport Transport
	From      string
	Timeout   time.Duration
	Log       *slog.Logger
	Now       func() time.Time
}

// NewDelivery constructs a Delivery.
func NewDelivery(t Transport, from string, timeout time.Duration, log *slog.Logger) *Delivery {
	return &Delivery{Transport: t, From: from, Timeout: timeout, Log: log, Now: time.Now}
}

// Deliver makes exactly one send attempt. It does not retry.
func (d *Delivery) Deliver(ctx context.Context, doc models.ConfirmationDocument, recipient string) (res models.DeliveryResult) {
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	res.Attempted = now().UTC()
	if d.Transport != nil {
		res.Transport = d.Transport.Name()
	}

	addr, err := parseRecipient(recipient)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	if d.Transport == nil {
		res.Error = "no transport configured"
		return res
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := d.send(sendCtx, Message{
		From:    d.From,
		To:      addr,
		Subject: doc.Subject,
		HTML:    doc.HTML,
		Text:    doc.Text,
	})
	if err != nil {
		res.Error = err.Error()
		if d.Log != nil {
			d.Log.WarnContext(ctx, "confirmation_send_failed",
				"transport", res.Transport, "recipient", addr, "error", err)
		}
		return res
	}
	res.Success = true
	res.MessageID = id
	return res
}

// send runs the transport call on its own goroutine so a transport that ignores
// ctx cannot hold the caller past the timeout. Panics become errors.
func (d *Delivery) send(ctx context.Context, msg Message) (string, error) {
	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		var o outcome
		defer func() {
			if r := recover(); r != nil {
				o.err = fmt.Errorf("transport %s panicked: %v", d.Transport.Name(), r)
			}
			done <- o
		}()
		o.id, o.err = d.Transport.Send(ctx, msg)
	}()
	select {
	case o := <-done:
		return o.id, o.err
	case <-ctx.Done():
		// a send that completed at the deadline was still sent
		select {
		case o := <-done:
			return o.id, o.err
		case <-time.After(settleWindow):
		}
		return "", fmt.Errorf("transport %s: %w", d.Transport.Name(), ctx.Err())
	}
}

func parseRecipient(recipient string) (string, error) {
	recipient = strings.TrimSpace(recipient)
	if recipient == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecipient)
	}
	a, err := mail.ParseAddress(recipient)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidRecipient, recipient, err)
	}
	return a.Address, nil
}
