package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by Redis so several gate replicas share
// entries.
type RedisCache struct {
	client redis.Cmdable
	prefix string
	policy Policy
}

// NewRedisCache wraps a go-redis client. Keys are stored as prefix + ":" +
// key when prefix is non-empty.
func NewRedisCache(client redis.Cmdable, prefix string, policy Policy) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, policy: policy}
}

func (c *RedisCache) fullKey(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

// Get retrieves a value. Connection errors read as a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// Set stores value with ttl clamped by the policy.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if c.policy.MaxTTL > 0 && ttl > c.policy.MaxTTL {
		ttl = c.policy.MaxTTL
	}
	if ttl <= 0 {
		return nil
	}
	if err := c.client.Set(ctx, c.fullKey(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes a value. Idempotent.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.fullKey(key)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("cache: redis delete: %w", err)
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
