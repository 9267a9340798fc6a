package resilience

import (
	"testing"
	"time"
)

func TestRateLimiter_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 3, Now: clock.Now})

	for i := 0; i < 3; i++ {
		if !rl.Allow() {
			t.Fatalf("Allow() #%d = false, want true", i+1)
		}
	}
	if rl.Allow() {
		t.Fatal("Allow() after burst = true, want false")
	}

	clock.Advance(time.Second)
	if !rl.Allow() {
		t.Fatal("Allow() after refill = false, want true")
	}
	if rl.Allow() {
		t.Fatal("Allow() should only have refilled one token")
	}
}

func TestRateLimiter_RefillCapsAtBurst(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{Rate: 10, Burst: 2, Now: clock.Now})

	clock.Advance(time.Hour)
	if got := rl.Tokens(); got != 2 {
		t.Errorf("Tokens() = %v, want 2", got)
	}
}

func TestRateLimiter_AllowNAndReset(t *testing.T) {
	clock := newFakeClock()
	rl := NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 5, Now: clock.Now})

	if !rl.AllowN(5) {
		t.Fatal("AllowN(5) = false, want true")
	}
	if rl.AllowN(1) {
		t.Fatal("AllowN(1) on empty bucket = true, want false")
	}

	rl.Reset()
	if got := rl.Tokens(); got != 5 {
		t.Errorf("Tokens() after Reset = %v, want 5", got)
	}
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{})
	if rl.config.Rate != 1 || rl.config.Burst != 5 {
		t.Errorf("defaults = rate %v burst %d, want 1 and 5", rl.config.Rate, rl.config.Burst)
	}
}
