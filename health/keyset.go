package health

import (
	"context"
	"time"

	"github.com/jonwraymond/realmgate/auth"
)

// KeySetReporter exposes the key resolver's cache state.
type KeySetReporter interface {
	Status() auth.KeySetStatus
}

// KeySetChecker reports on the signing key set. It never fetches; the
// resolver loads lazily on the first token.
type KeySetChecker struct {
	name     string
	reporter KeySetReporter
}

// NewKeySetChecker creates a checker over reporter.
func NewKeySetChecker(name string, reporter KeySetReporter) *KeySetChecker {
	return &KeySetChecker{name: name, reporter: reporter}
}

// Name returns the checker name.
func (c *KeySetChecker) Name() string { return c.name }

// Check maps the resolver status:
//   - loaded, last refresh ok: Healthy
//   - loaded, last refresh failed: Degraded
//   - never loaded, last refresh failed: Unhealthy
//   - never attempted: Degraded
func (c *KeySetChecker) Check(_ context.Context) Result {
	st := c.reporter.Status()
	details := map[string]any{"keys": st.KeyCount}
	if !st.LoadedAt.IsZero() {
		details["loaded_at"] = st.LoadedAt.UTC().Format(time.RFC3339)
	}
	if !st.LastAttempt.IsZero() {
		details["last_attempt"] = st.LastAttempt.UTC().Format(time.RFC3339)
	}

	var r Result
	switch {
	case st.Loaded && st.LastError == nil:
		r = Healthy("key set loaded")
	case st.Loaded:
		r = Degraded("last key set refresh failed", st.LastError)
	case st.LastError != nil:
		r = Unhealthy("key set unavailable", st.LastError)
	default:
		r = Degraded("key set not loaded yet", nil)
	}
	return r.WithDetails(details)
}

var _ Checker = (*KeySetChecker)(nil)
