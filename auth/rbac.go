package auth

import (
	"context"
	"slices"
)

// HasRealmRole reports whether claims grant role at realm scope.
// Comparison is exact and case-sensitive; absent roles mean false.
func HasRealmRole(claims *ClaimSet, role string) bool {
	if role == "" {
		return false
	}
	return slices.Contains(claims.RealmRoles(), role)
}

// HasClientRole reports whether claims grant role for client under
// resource_access.
func HasClientRole(claims *ClaimSet, client, role string) bool {
	if client == "" || role == "" {
		return false
	}
	return slices.Contains(claims.ClientRoles(client), role)
}

// RoleAuthorizer requires a single role, at realm scope or for one client.
type RoleAuthorizer struct {
	client string
	role   string
}

// RequireRealmRole returns an authorizer requiring a realm role.
func RequireRealmRole(role string) *RoleAuthorizer {
	return &RoleAuthorizer{role: role}
}

// RequireClientRole returns an authorizer requiring a role granted for
// client.
func RequireClientRole(client, role string) *RoleAuthorizer {
	return &RoleAuthorizer{client: client, role: role}
}

// Name returns "realm_role:<role>" or "client_role:<client>:<role>".
func (a *RoleAuthorizer) Name() string {
	if a.client == "" {
		return "realm_role:" + a.role
	}
	return "client_role:" + a.client + ":" + a.role
}

// Authorize denies with "<role> role required" when the role is missing.
func (a *RoleAuthorizer) Authorize(_ context.Context, claims *ClaimSet) error {
	var granted bool
	if a.client == "" {
		granted = HasRealmRole(claims, a.role)
	} else {
		granted = HasClientRole(claims, a.client, a.role)
	}
	if granted {
		return nil
	}

	subject := ""
	if claims != nil {
		subject = claims.Subject
	}
	return &AuthzError{
		Subject:     subject,
		Requirement: a.Name(),
		Reason:      a.role + " role required",
	}
}

var _ Authorizer = (*RoleAuthorizer)(nil)
