package health

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool and by RedisPinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker is Healthy when Ping succeeds and Unhealthy otherwise.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker for pinger.
func NewPingChecker(name string, pinger Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: pinger}
}

// Name returns the checker name.
func (c *PingChecker) Name() string { return c.name }

// Check pings the dependency.
func (c *PingChecker) Check(ctx context.Context) Result {
	if err := c.pinger.Ping(ctx); err != nil {
		return Unhealthy(c.name+" unreachable", err)
	}
	return Healthy(c.name + " reachable")
}

type redisPinger struct {
	client redis.Cmdable
}

// RedisPinger adapts a go-redis client to Pinger.
func RedisPinger(client redis.Cmdable) Pinger {
	return redisPinger{client: client}
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

var _ Checker = (*PingChecker)(nil)
