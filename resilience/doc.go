// Package resilience provides the failure-handling primitives used around
// calls to the identity provider.
//
// The key-set fetch runs through an Executor that layers a circuit breaker,
// bounded retry with backoff and a per-attempt timeout. A token-bucket
// RateLimiter throttles key-set refreshes triggered by unknown key IDs.
package resilience
