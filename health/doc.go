// Package health reports whether the gate can serve.
//
// A Checker reports one dependency as Healthy, Degraded or Unhealthy. The
// gate registers three: the signing key set, Postgres and Redis. An
// Aggregator runs them together and the HTTP handlers expose the result:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewKeySetChecker("keyset", resolver))
//	agg.Register(health.NewPingChecker("postgres", pool))
//	agg.Register(health.NewPingChecker("redis", health.RedisPinger(client)))
//
//	r.Get("/healthz", health.LivenessHandler())
//	r.Get("/readyz", health.ReadinessHandler(agg))
//	r.Get("/health", health.DetailedHandler(agg))
//
// Degraded keeps a replica in rotation; only Unhealthy fails readiness.
package health
