package cache

import (
	"testing"
	"time"
)

func TestPolicy_EffectiveTTL(t *testing.T) {
	tests := []struct {
		name     string
		policy   Policy
		override time.Duration
		want     time.Duration
	}{
		{"default used", Policy{DefaultTTL: time.Minute}, 0, time.Minute},
		{"negative override uses default", Policy{DefaultTTL: time.Minute}, -time.Second, time.Minute},
		{"override wins", Policy{DefaultTTL: time.Minute}, 10 * time.Second, 10 * time.Second},
		{"clamped", Policy{DefaultTTL: time.Minute, MaxTTL: 2 * time.Minute}, time.Hour, 2 * time.Minute},
		{"no cache", NoCachePolicy(), 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.EffectiveTTL(tt.override); got != tt.want {
				t.Errorf("EffectiveTTL(%v) = %v, want %v", tt.override, got, tt.want)
			}
		})
	}
}

func TestPolicy_ShouldCache(t *testing.T) {
	if !DefaultPolicy().ShouldCache() {
		t.Error("DefaultPolicy().ShouldCache() = false")
	}
	if NoCachePolicy().ShouldCache() {
		t.Error("NoCachePolicy().ShouldCache() = true")
	}
}
