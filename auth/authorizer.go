package auth

import (
	"context"
	"fmt"
)

// Authorizer decides whether verified claims may proceed.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: a denial returns an error matching ErrForbidden, typically
//   *AuthzError whose Reason is safe to show the caller.
type Authorizer interface {
	Authorize(ctx context.Context, claims *ClaimSet) error

	// Name returns a unique identifier for this authorizer.
	Name() string
}

// AuthzError represents an authorization failure.
type AuthzError struct {
	// Subject is the token subject that was denied.
	Subject string

	// Requirement names the unmet requirement, e.g. "realm_role:admin".
	Requirement string

	// Reason is the caller-facing explanation, e.g. "admin role required".
	Reason string

	// Cause is the underlying error if any.
	Cause error
}

// Error returns the error message.
func (e *AuthzError) Error() string {
	return fmt.Sprintf("authorization denied: subject=%q requirement=%q reason=%q",
		e.Subject, e.Requirement, e.Reason)
}

// Unwrap returns the cause error for errors.Is/As support.
func (e *AuthzError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target.
func (e *AuthzError) Is(target error) bool {
	return target == ErrForbidden
}

// AuthorizerFunc is an adapter to allow use of ordinary functions as Authorizers.
type AuthorizerFunc func(ctx context.Context, claims *ClaimSet) error

// Authorize calls the function.
func (f AuthorizerFunc) Authorize(ctx context.Context, claims *ClaimSet) error {
	return f(ctx, claims)
}

// Name returns "func" for function-based authorizers.
func (f AuthorizerFunc) Name() string {
	return "func"
}

// AllOf requires every authorizer to pass, checking them in order.
func AllOf(authorizers ...Authorizer) Authorizer {
	return allOf(authorizers)
}

type allOf []Authorizer

func (a allOf) Authorize(ctx context.Context, claims *ClaimSet) error {
	for _, az := range a {
		if err := az.Authorize(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

func (a allOf) Name() string {
	return "all_of"
}
