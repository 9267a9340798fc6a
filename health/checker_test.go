package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/realmgate/auth"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

type staticReporter auth.KeySetStatus

func (s staticReporter) Status() auth.KeySetStatus { return auth.KeySetStatus(s) }

func TestKeySetChecker(t *testing.T) {
	loadedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fail := errors.New("fetch key set: unexpected status 503")

	tests := []struct {
		name   string
		status auth.KeySetStatus
		want   Status
	}{
		{"never attempted", auth.KeySetStatus{}, StatusDegraded},
		{"loaded", auth.KeySetStatus{Loaded: true, KeyCount: 2, LoadedAt: loadedAt, LastAttempt: loadedAt}, StatusHealthy},
		{"loaded but refresh failing", auth.KeySetStatus{Loaded: true, KeyCount: 2, LoadedAt: loadedAt, LastError: fail}, StatusDegraded},
		{"never loaded", auth.KeySetStatus{LastAttempt: loadedAt, LastError: fail}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewKeySetChecker("keyset", staticReporter(tt.status))
			r := c.Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Status = %v, want %v (%s)", r.Status, tt.want, r.Message)
			}
			if r.Details["keys"] != tt.status.KeyCount {
				t.Errorf("Details[keys] = %v", r.Details["keys"])
			}
			if tt.status.LastError != nil && !errors.Is(r.Error, tt.status.LastError) {
				t.Errorf("Error = %v, want %v", r.Error, tt.status.LastError)
			}
		})
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	ok := NewPingChecker("postgres", pingFunc(func(context.Context) error { return nil }))
	if r := ok.Check(context.Background()); r.Status != StatusHealthy || ok.Name() != "postgres" {
		t.Errorf("healthy ping: %+v", r)
	}

	down := errors.New("connection refused")
	bad := NewPingChecker("postgres", pingFunc(func(context.Context) error { return down }))
	if r := bad.Check(context.Background()); r.Status != StatusUnhealthy || !errors.Is(r.Error, down) {
		t.Errorf("failing ping: %+v", r)
	}
}

func TestRedisPinger(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	c := NewPingChecker("redis", RedisPinger(client))
	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Fatalf("Status = %v, err = %v", r.Status, r.Error)
	}

	mr.Close()
	if r := c.Check(context.Background()); r.Status != StatusUnhealthy {
		t.Errorf("Status after close = %v, want unhealthy", r.Status)
	}
}
