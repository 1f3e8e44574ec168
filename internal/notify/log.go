package notify

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// LogTransport writes confirmations to the logger instead of sending them.
// Used in development and when no mail backend is configured.
type LogTransport struct {
	Log *slog.Logger
}

func (t *LogTransport) Name() string { return "log" }

func (t *LogTransport) Send(ctx context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	if t.Log != nil {
		t.Log.InfoContext(ctx, "confirmation_logged",
			"message_id", id, "to", msg.To, "subject", msg.Subject, "text", msg.Text)
	}
	return id, nil
}
