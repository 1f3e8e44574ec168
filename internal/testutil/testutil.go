package testutil

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"restaurantOrdering/internal/db"
	"restaurantOrdering/internal/notify"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The DB is closed via t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// shared cache so every connection in the pool sees the same database
	name = strings.NewReplacer("/", "_", " ", "_").Replace(name)
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// GenerateJWTHS256 returns a signed JWT with the subject and role claims the app reads.
func GenerateJWTHS256(t *testing.T, secret, subject, role string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// WithBearer sets the Authorization header on r.
func WithBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

// RecordingTransport is a notify.Transport that records messages and can be
// told to fail.
type RecordingTransport struct {
	mu   sync.Mutex
	Sent []notify.Message
	Err  error
}

var _ notify.Transport = (*RecordingTransport)(nil)

func (r *RecordingTransport) Name() string { return "recording" }

func (r *RecordingTransport) Send(_ context.Context, msg notify.Message) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return "", r.Err
	}
	r.Sent = append(r.Sent, msg)
	return "test-message-id", nil
}

// SetErr makes subsequent sends fail with err, or succeed when err is nil.
func (r *RecordingTransport) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}

// Messages returns a copy of the recorded messages.
func (r *RecordingTransport) Messages() []notify.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Message(nil), r.Sent...)
}

// ErrAuthFailed simulates a relay rejecting credentials.
var ErrAuthFailed = errors.New("535 authentication failed")
