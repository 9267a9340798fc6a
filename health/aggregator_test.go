package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixed(name string, r Result) Checker {
	return NewCheckerFunc(name, func(context.Context) Result { return r })
}

func TestNewAggregator_Defaults(t *testing.T) {
	if agg := NewAggregator(); agg.config.Timeout != 5*time.Second {
		t.Errorf("Timeout = %v, want 5s", agg.config.Timeout)
	}
	if agg := NewAggregator(AggregatorConfig{Timeout: time.Second}); agg.config.Timeout != time.Second {
		t.Errorf("Timeout = %v, want 1s", agg.config.Timeout)
	}
}

func TestAggregator_RegisterKeepsOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Register(fixed("keyset", Healthy("ok")))
	agg.Register(fixed("postgres", Healthy("ok")))
	agg.Register(fixed("keyset", Degraded("replaced", nil)))

	names := agg.CheckerNames()
	if len(names) != 2 || names[0] != "keyset" || names[1] != "postgres" {
		t.Errorf("CheckerNames() = %v", names)
	}

	r, err := agg.Check(context.Background(), "keyset")
	if err != nil || r.Status != StatusDegraded {
		t.Errorf("Check(keyset) = %+v, %v; want replaced checker", r, err)
	}
	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(missing) error = %v", err)
	}
}

func TestAggregator_CheckAll(t *testing.T) {
	agg := NewAggregator()
	agg.Register(fixed("keyset", Healthy("ok")))
	agg.Register(fixed("redis", Unhealthy("down", errors.New("refused"))))

	results := agg.CheckAll(context.Background())
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if results["redis"].Status != StatusUnhealthy || results["keyset"].Status != StatusHealthy {
		t.Errorf("results = %+v", results)
	}
	if results["keyset"].Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
}

func TestAggregator_Timeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 20 * time.Millisecond})
	release := make(chan struct{})
	defer close(release)
	agg.Register(NewCheckerFunc("slow", func(context.Context) Result {
		<-release
		return Healthy("late")
	}))

	r := agg.CheckAll(context.Background())["slow"]
	if r.Status != StatusUnhealthy || !errors.Is(r.Error, ErrCheckTimeout) {
		t.Errorf("slow check = %+v, want timeout", r)
	}
}

func TestOverallStatus(t *testing.T) {
	tests := []struct {
		name    string
		results map[string]Result
		want    Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]Result{"a": Healthy(""), "b": Healthy("")}, StatusHealthy},
		{"one degraded", map[string]Result{"a": Healthy(""), "b": Degraded("", nil)}, StatusDegraded},
		{"one unhealthy", map[string]Result{"a": Degraded("", nil), "b": Unhealthy("", nil)}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OverallStatus(tt.results); got != tt.want {
				t.Errorf("OverallStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}
