package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/realmgate/analytics"
	"github.com/jonwraymond/realmgate/auth"
	"github.com/jonwraymond/realmgate/cache"
	"github.com/jonwraymond/realmgate/config"
	"github.com/jonwraymond/realmgate/health"
	"github.com/jonwraymond/realmgate/observe"
	"github.com/jonwraymond/realmgate/resilience"
	"github.com/jonwraymond/realmgate/server"
)

// app holds the process's long-lived collaborators.
type app struct {
	handler  http.Handler
	resolver *auth.KeyResolver
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// build wires everything the HTTP server needs. Optional stores are only
// connected when configured.
func build(ctx context.Context, cfg *config.Config, obs observe.Observer) (*app, error) {
	logger := obs.Logger()
	a := &app{}
	agg := health.NewAggregator(health.AggregatorConfig{Logger: logger})

	var shared cache.Cache
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.closers = append(a.closers, func() { _ = client.Close() })
		agg.Register(health.NewPingChecker("redis", health.RedisPinger(client)))
		shared = cache.NewRedisCache(client, config.ServiceName, cache.DefaultPolicy())
	}

	resolver, err := newKeyResolver(cfg, obs, shared)
	if err != nil {
		a.close()
		return nil, err
	}
	a.resolver = resolver
	agg.Register(health.NewKeySetChecker("keyset", resolver))

	verifier, err := auth.NewVerifier(auth.VerifierConfig{
		Issuer:    cfg.Issuer,
		Audience:  cfg.ClientID,
		Keys:      resolver,
		ClockSkew: cfg.ClockSkew,
		Meter:     obs.Meter(),
	})
	if err != nil {
		a.close()
		return nil, err
	}
	gate, err := auth.NewGate(auth.GateConfig{
		Verifier:       verifier,
		ProtectedPaths: cfg.ProtectedPaths,
		Authorizer:     gateAuthorizer(cfg),
		Logger:         logger,
		Meter:          obs.Meter(),
	})
	if err != nil {
		a.close()
		return nil, err
	}

	var topRegions http.Handler
	if cfg.DatabaseURL != "" {
		pool, err := analytics.NewPool(ctx, analytics.PoolConfig{DSN: cfg.DatabaseURL})
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		agg.Register(health.NewPingChecker("postgres", pool))

		topRegions, err = newAnalyticsHandler(cfg, obs, pool, shared)
		if err != nil {
			a.close()
			return nil, err
		}
	} else {
		logger.Info(ctx, "DATABASE_URL not set, analytics disabled")
	}

	a.handler, err = server.New(server.Config{
		Gate:      gate,
		Verifier:  verifier,
		Observer:  obs,
		Health:    agg,
		Analytics: topRegions,
	})
	if err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

// newKeyResolver fetches through the resilience pipeline and, when a shared
// cache is configured, through the cache so replicas share one fetch.
func newKeyResolver(cfg *config.Config, obs observe.Observer, shared cache.Cache) (*auth.KeyResolver, error) {
	origin, err := auth.NewHTTPKeySetSource(auth.HTTPSourceConfig{URL: cfg.KeySetURL})
	if err != nil {
		return nil, err
	}
	var source auth.KeySetSource = origin
	if shared != nil {
		ttl := cfg.KeySetTTL
		if ttl > cachedKeySetTTL {
			ttl = cachedKeySetTTL
		}
		source, err = auth.NewCachedKeySetSource(auth.CachedSourceConfig{
			Origin: origin,
			Cache:  shared,
			TTL:    ttl,
		})
		if err != nil {
			return nil, fmt.Errorf("shared key set cache: %w", err)
		}
	}

	logger := obs.Logger()
	return auth.NewKeyResolver(auth.KeyResolverConfig{
		Source:       source,
		CacheTTL:     cfg.KeySetTTL,
		FetchTimeout: cfg.KeySetFetchTimeout,
		Executor:     newFetchExecutor(cfg.KeySetFetchTimeout, logger),
		MissLimiter:  resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: cfg.KeySetMissRate, Burst: missBurst}),
		Logger:       logger,
		Meter:        obs.Meter(),
		Tracer:       obs.Tracer(),
	})
}

// newFetchExecutor splits fetchTimeout across fetchAttempts so one hung
// request still leaves time for a retry.
func newFetchExecutor(fetchTimeout time.Duration, logger observe.Logger) *resilience.Executor {
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		OnStateChange: func(from, to resilience.State) {
			logger.Warn(context.Background(), "key set circuit changed state",
				observe.F("from", from.String()),
				observe.F("to", to.String()),
			)
		},
	})
	return resilience.NewExecutor(
		resilience.WithRetry(resilience.NewRetry(resilience.RetryConfig{MaxAttempts: fetchAttempts, Jitter: true})),
		resilience.WithTimeout(fetchTimeout/fetchAttempts),
		resilience.WithCircuitBreaker(breaker),
	)
}

// gateAuthorizer requires the realm role and, when configured, a client
// role as well.
func gateAuthorizer(cfg *config.Config) auth.Authorizer {
	realm := auth.RequireRealmRole(cfg.RequiredRole)
	client, role, ok := cfg.ClientRoleRequirement()
	if !ok {
		return realm
	}
	return auth.AllOf(realm, auth.RequireClientRole(client, role))
}

func newAnalyticsHandler(cfg *config.Config, obs observe.Observer, pool *pgxpool.Pool, shared cache.Cache) (http.Handler, error) {
	results := shared
	if results == nil {
		results = cache.NewMemoryCache(cache.DefaultPolicy())
	}
	svc, err := analytics.NewService(analytics.ServiceConfig{
		Store:  analytics.NewPostgresStore(pool),
		Cache:  results,
		TTL:    cfg.AnalyticsCacheTTL,
		Tracer: obs.Tracer(),
	})
	if err != nil {
		return nil, err
	}
	return analytics.NewHandler(svc, cfg.AnalyticsTopN, obs.Logger()), nil
}
