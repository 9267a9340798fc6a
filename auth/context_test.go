package auth

import (
	"context"
	"testing"
)

func TestClaimsContext(t *testing.T) {
	ctx := context.Background()
	if ClaimsFromContext(ctx) != nil {
		t.Error("ClaimsFromContext() on empty context should be nil")
	}
	if SubjectFromContext(ctx) != "" {
		t.Error("SubjectFromContext() on empty context should be empty")
	}

	cs := &ClaimSet{Subject: "user-1"}
	ctx = WithClaims(ctx, cs)
	if ClaimsFromContext(ctx) != cs {
		t.Error("ClaimsFromContext() did not return the stored claims")
	}
	if got := SubjectFromContext(ctx); got != "user-1" {
		t.Errorf("SubjectFromContext() = %q, want user-1", got)
	}
}
