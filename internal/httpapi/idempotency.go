package httpapi

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// IdempotencyStore remembers responses to POST /orders keyed by the client's
// Idempotency-Key header.
type IdempotencyStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Store(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotency is an IdempotencyStore backed by Redis.
type RedisIdempotency struct {
	client *redis.Client
	prefix string
}

var _ IdempotencyStore = (*RedisIdempotency)(nil)

// NewRedisIdempotency namespaces keys as "<service>:idempotency:<key>".
func NewRedisIdempotency(client *redis.Client, serviceName string) *RedisIdempotency {
	return &RedisIdempotency{client: client, prefix: fmt.Sprintf("%s:idempotency:", serviceName)}
}

func (r *RedisIdempotency) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Reserve claims key with a pending marker. It reports false if the key exists.
func (r *RedisIdempotency) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, r.prefix+key, pendingMarker, ttl).Result()
}

func (r *RedisIdempotency) Store(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefix+key, value, ttl).Err()
}

func (r *RedisIdempotency) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefix+key).Err()
}
