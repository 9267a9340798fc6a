package cache

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryCache_GetSetDelete(t *testing.T) {
	c := NewMemoryCache(DefaultPolicy())
	ctx := context.Background()

	if val, ok := c.Get(ctx, "missing"); ok || val != nil {
		t.Fatalf("Get(missing) = %q, %v; want nil, false", val, ok)
	}

	value := []byte(`{"keys":[]}`)
	if err := c.Set(ctx, "doc", value, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, ok := c.Get(ctx, "doc")
	if !ok || !bytes.Equal(got, value) {
		t.Fatalf("Get(doc) = %q, %v; want %q, true", got, ok, value)
	}

	if err := c.Delete(ctx, "doc"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok := c.Get(ctx, "doc"); ok {
		t.Error("Get after Delete should miss")
	}
	if err := c.Delete(ctx, "doc"); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(DefaultPolicy(), WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "k", []byte("v"), 10*time.Second)

	clock.Advance(9 * time.Second)
	if _, ok := c.Get(ctx, "k"); !ok {
		t.Fatal("entry expired early")
	}

	clock.Advance(time.Second)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Fatal("entry should expire exactly at its TTL")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want expired entry removed", c.Len())
	}
}

func TestMemoryCache_TTLHandling(t *testing.T) {
	clock := &stepClock{now: time.Unix(1_700_000_000, 0)}
	c := NewMemoryCache(Policy{MaxTTL: time.Minute}, WithClock(clock.Now))
	ctx := context.Background()

	_ = c.Set(ctx, "zero", []byte("v"), 0)
	if _, ok := c.Get(ctx, "zero"); ok {
		t.Error("TTL=0 should not store")
	}

	_ = c.Set(ctx, "long", []byte("v"), time.Hour)
	clock.Advance(time.Minute)
	if _, ok := c.Get(ctx, "long"); ok {
		t.Error("TTL should be clamped to MaxTTL")
	}
}

func TestMemoryCache_SetCopiesValue(t *testing.T) {
	c := NewMemoryCache(DefaultPolicy())
	ctx := context.Background()

	value := []byte("abc")
	_ = c.Set(ctx, "k", value, time.Minute)
	value[0] = 'x'

	got, _ := c.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Get() = %q, want stored copy %q", got, "abc")
	}
}

func TestMemoryCache_RejectsInvalidKey(t *testing.T) {
	c := NewMemoryCache(DefaultPolicy())
	if err := c.Set(context.Background(), "", []byte("v"), time.Minute); err != ErrInvalidKey {
		t.Errorf("Set(\"\") error = %v, want ErrInvalidKey", err)
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c := NewMemoryCache(DefaultPolicy())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "shared", []byte("v"), time.Minute)
			_, _ = c.Get(ctx, "shared")
			_ = c.Delete(ctx, "shared")
		}()
	}
	wg.Wait()
}
