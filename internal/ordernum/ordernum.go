// Package ordernum mints candidate order numbers. Uniqueness is enforced by the
// order store, not here; a collision surfaces as repository.ErrDuplicateOrderNumber.
package ordernum

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"
)

// Prefix starts every order number.
const Prefix = "ORD"

// alphabet omits 0/O and 1/I/L so numbers survive being read over the phone.
const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const suffixLen = 6

// ErrGeneration wraps any failure to produce a candidate.
var ErrGeneration = errors.New("order number generation failed")

// Generator produces candidate order numbers.
type Generator interface {
	Generate(ctx context.Context) (string, error)
}

// DateRandom produces ORD-YYYYMMDD-XXXXXX numbers.
type DateRandom struct {
	Now     func() time.Time
	Entropy io.Reader
	Loc     *time.Location
}

// NewDateRandom returns a DateRandom using the wall clock and crypto/rand.
func NewDateRandom(loc *time.Location) *DateRandom {
	return &DateRandom{Now: time.Now, Entropy: rand.Reader, Loc: loc}
}

// Generate returns a new candidate number.
func (g *DateRandom) Generate(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	buf := make([]byte, suffixLen)
	if _, err := io.ReadFull(g.entropy(), buf); err != nil {
		return "", fmt.Errorf("%w: read entropy: %w", ErrGeneration, err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return fmt.Sprintf("%s-%s-%s", Prefix, datePart(g.now(), g.Loc), buf), nil
}

func (g *DateRandom) now() time.Time {
	if g.Now == nil {
		return time.Now()
	}
	return g.Now()
}

func (g *DateRandom) entropy() io.Reader {
	if g.Entropy == nil {
		return rand.Reader
	}
	return g.Entropy
}

func datePart(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format("20060102")
}
