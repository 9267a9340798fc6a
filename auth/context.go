package auth

import (
	"context"
)

// Context keys for auth-related values.
type contextKey int

const (
	claimsKey contextKey = iota
)

// WithClaims returns a new context carrying verified claims.
func WithClaims(ctx context.Context, claims *ClaimSet) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// ClaimsFromContext retrieves the claims attached by the gate.
// Returns nil if none are present.
func ClaimsFromContext(ctx context.Context) *ClaimSet {
	c, _ := ctx.Value(claimsKey).(*ClaimSet)
	return c
}

// SubjectFromContext returns the token subject, or "".
func SubjectFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}
