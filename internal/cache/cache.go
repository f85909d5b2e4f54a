// Package cache implements the idempotency cache collaborator (§5,
// §6): the HTTP surface consults it before invoking the engine and
// writes to it after a successful execution, so a retried request with
// the same idempotency key returns the original response unchanged
// rather than re-executing (and, for a non-deterministic caller clock,
// potentially re-hashing a different trace).
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache stores a raw response body under an idempotency
// key, as the external collaborator the engine itself never touches.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisCache is the production IdempotencyCache, backed by Redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to addr (host:port) using go-redis/v9's
// standard client.
func NewRedisCache(addr string) *RedisCache {
	return &RedisCache{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, cacheKey(key), value, ttl).Err()
}

// Close releases the underlying connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func cacheKey(key string) string {
	return "reasonkernel:idempotency:" + key
}

// NoopCache is an IdempotencyCache that never stores anything: every
// Get misses, every Set succeeds without effect. It is the default
// when no REDIS_URL is configured, so the HTTP surface can consult a
// cache unconditionally without a nil check at every call site.
type NoopCache struct{}

func (NoopCache) Get(ctx context.Context, key string) ([]byte, bool, error) { return nil, false, nil }
func (NoopCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}

// EncodeResponse is a small convenience wrapper so callers cache a Go
// value rather than pre-serialized bytes.
func EncodeResponse(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
