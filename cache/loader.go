package cache

import (
	"context"
	"time"
)

// LoadFunc produces the value for a cache miss.
type LoadFunc func(ctx context.Context) ([]byte, error)

// GetOrLoad returns the cached value for key, or calls load and stores its
// result for ttl. Errors are not cached. A nil cache always loads. The
// boolean reports a cache hit.
func GetOrLoad(ctx context.Context, c Cache, key string, ttl time.Duration, load LoadFunc) ([]byte, bool, error) {
	if c == nil || ttl <= 0 {
		val, err := load(ctx)
		return val, false, err
	}
	if val, ok := c.Get(ctx, key); ok {
		return val, true, nil
	}

	val, err := load(ctx)
	if err != nil {
		return nil, false, err
	}
	// A failed write only costs the next caller a reload.
	_ = c.Set(ctx, key, val, ttl)
	return val, false, nil
}
