package ordernum

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	seqKeyPrefix = "orders:seq:"
	seqTTL       = 48 * time.Hour
)

// RedisSequence produces ORD-YYYYMMDD-NNNN numbers from a per-day counter.
// Counters expire after two days so old keys do not accumulate.
type RedisSequence struct {
	client *redis.Client
	Now    func() time.Time
	Loc    *time.Location
}

// NewRedisSequence constructs a RedisSequence backed by client.
func NewRedisSequence(client *redis.Client, loc *time.Location) *RedisSequence {
	return &RedisSequence{client: client, Now: time.Now, Loc: loc}
}

// Generate increments today's counter and formats it.
func (g *RedisSequence) Generate(ctx context.Context) (string, error) {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	day := datePart(now(), g.Loc)
	key := seqKeyPrefix + day

	pipe := g.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, seqTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: redis incr %s: %w", ErrGeneration, key, err)
	}
	return fmt.Sprintf("%s-%s-%04d", Prefix, day, incr.Val()), nil
}
