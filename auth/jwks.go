package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/realmgate/observe"
	"github.com/jonwraymond/realmgate/resilience"
)

// KeyResolverConfig configures the key resolver.
type KeyResolverConfig struct {
	// Source produces key sets. Required.
	Source KeySetSource

	// CacheTTL is how long a fetched set is trusted before it is
	// refetched wholesale.
	// Default: 1 hour
	CacheTTL time.Duration

	// FetchTimeout bounds one refresh, retries included.
	// Default: 5 seconds
	FetchTimeout time.Duration

	// Executor wraps every fetch (retry, circuit breaker). Optional.
	Executor *resilience.Executor

	// MissLimiter throttles refreshes triggered by unknown key IDs.
	// Nil means every miss may refresh.
	MissLimiter *resilience.RateLimiter

	// Now is the clock. Default: time.Now
	Now func() time.Time

	Logger observe.Logger
	Meter  metric.Meter
	Tracer trace.Tracer
}

// KeySetStatus describes the resolver's cache for health checks.
type KeySetStatus struct {
	Loaded      bool
	KeyCount    int
	LoadedAt    time.Time
	LastAttempt time.Time
	LastError   error
}

type loadedSet struct {
	set      *SigningKeySet
	loadedAt time.Time
}

// KeyResolver resolves key IDs to signing keys, caching the provider's key
// set. The cached set is swapped atomically, so readers see either the old
// or the new set. Concurrent refreshes collapse into a single fetch.
type KeyResolver struct {
	config    KeyResolverConfig
	current   atomic.Pointer[loadedSet]
	flight    singleflight.Group
	refreshes metric.Int64Counter

	mu     sync.Mutex
	status KeySetStatus
}

// NewKeyResolver creates a resolver. The first fetch happens lazily.
func NewKeyResolver(config KeyResolverConfig) (*KeyResolver, error) {
	if config.Source == nil {
		return nil, errors.New("auth: key resolver requires a source")
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 5 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Meter == nil {
		config.Meter = noop.NewMeterProvider().Meter("")
	}
	config.Logger = config.Logger.With(observe.F("component", "key_resolver"))

	refreshes, err := config.Meter.Int64Counter(
		"realmgate.keyset.refreshes",
		metric.WithDescription("Key set fetch attempts by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, err
	}

	return &KeyResolver{config: config, refreshes: refreshes}, nil
}

// GetKey resolves kid. ErrKeyNotFound means the key is absent from a
// current set; any other error means the key source could not be reached.
func (r *KeyResolver) GetKey(ctx context.Context, kid string) (SigningKey, error) {
	cur := r.current.Load()

	if r.fresh(cur) {
		if key, ok := cur.set.Lookup(kid); ok {
			return key, nil
		}
		// Unknown kid on a fresh set: the provider may have rotated keys.
		if r.config.MissLimiter != nil && !r.config.MissLimiter.Allow() {
			r.config.Logger.Debug(ctx, "miss refresh throttled", observe.F("kid", kid))
			return SigningKey{}, ErrKeyNotFound
		}
		if inv, ok := r.config.Source.(Invalidator); ok {
			if err := inv.Invalidate(ctx); err != nil {
				r.config.Logger.Warn(ctx, "shared key set invalidation failed", observe.F("error", err))
			}
		}
	}

	loaded, err := r.refresh(ctx, cur)
	if err != nil {
		return SigningKey{}, err
	}
	if key, ok := loaded.set.Lookup(kid); ok {
		return key, nil
	}
	return SigningKey{}, ErrKeyNotFound
}

// Refresh fetches a new set regardless of the current one's age.
func (r *KeyResolver) Refresh(ctx context.Context) error {
	_, err := r.refresh(ctx, r.current.Load())
	return err
}

// Snapshot returns the current set, or nil before the first fetch.
func (r *KeyResolver) Snapshot() *SigningKeySet {
	if cur := r.current.Load(); cur != nil {
		return cur.set
	}
	return nil
}

// Status reports the cache state.
func (r *KeyResolver) Status() KeySetStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *KeyResolver) fresh(l *loadedSet) bool {
	return l != nil && r.config.Now().Sub(l.loadedAt) < r.config.CacheTTL
}

// refresh replaces observed with a newly fetched set. Callers that arrive
// while a fetch is running share its result. A caller whose observed set
// was already replaced by a fresh one gets that set without a new fetch.
func (r *KeyResolver) refresh(ctx context.Context, observed *loadedSet) (*loadedSet, error) {
	ch := r.flight.DoChan("refresh", func() (any, error) {
		if cur := r.current.Load(); cur != observed && r.fresh(cur) {
			return cur, nil
		}
		// The fetch outlives any single caller; it is bounded by FetchTimeout.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.FetchTimeout)
		defer cancel()
		return r.fetch(fctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*loadedSet), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *KeyResolver) fetch(ctx context.Context) (*loadedSet, error) {
	start := r.config.Now()
	ctx, span := observe.StartSpan(ctx, r.config.Tracer, "keyset.refresh", trace.SpanKindClient)

	var fetched atomic.Pointer[SigningKeySet]
	op := func(ctx context.Context) error {
		set, err := r.config.Source.FetchKeySet(ctx)
		if err != nil {
			return err
		}
		fetched.Store(set)
		return nil
	}

	var err error
	if r.config.Executor != nil {
		err = r.config.Executor.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	observe.EndSpan(span, err)

	r.mu.Lock()
	r.status.LastAttempt = start
	r.status.LastError = err
	r.mu.Unlock()

	if err != nil {
		r.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "failure")))
		r.config.Logger.Error(ctx, "key set refresh failed", observe.F("error", err))
		return nil, err
	}

	loaded := &loadedSet{set: fetched.Load(), loadedAt: r.config.Now()}
	r.current.Store(loaded)

	r.mu.Lock()
	r.status.Loaded = true
	r.status.KeyCount = loaded.set.Len()
	r.status.LoadedAt = loaded.loadedAt
	r.mu.Unlock()

	r.refreshes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "success")))
	r.config.Logger.Info(ctx, "key set refreshed",
		observe.F("keys", loaded.set.Len()),
		observe.F("kids", loaded.set.KeyIDs()),
		observe.F("duration_ms", r.config.Now().Sub(start).Milliseconds()),
	)
	return loaded, nil
}

var _ KeyProvider = (*KeyResolver)(nil)
