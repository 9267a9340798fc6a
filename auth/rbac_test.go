package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func claimsWith(raw jwt.MapClaims) *ClaimSet {
	base := jwt.MapClaims{"sub": "user-1"}
	for k, v := range raw {
		base[k] = v
	}
	return newClaimSet(base)
}

func TestNewClaimSet_RolesFailClosed(t *testing.T) {
	tests := []struct {
		name  string
		realm any
		want  []string
	}{
		{"absent", nil, nil},
		{"roles list", map[string]any{"roles": []any{"admin", "user"}}, []string{"admin", "user"}},
		{"roles not a list", map[string]any{"roles": "admin"}, nil},
		{"not an object", []any{"admin"}, nil},
		{"non-string entries skipped", map[string]any{"roles": []any{"admin", 7, nil}}, []string{"admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := jwt.MapClaims{}
			if tt.realm != nil {
				raw["realm_access"] = tt.realm
			}
			got := claimsWith(raw).RealmRoles()
			if len(got) != len(tt.want) {
				t.Fatalf("RealmRoles() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("RealmRoles()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClaimSet_ClientRoles(t *testing.T) {
	cs := claimsWith(jwt.MapClaims{
		"resource_access": map[string]any{
			"my-client-id": map[string]any{"roles": []any{"reader"}},
			"broken":       "nope",
		},
	})
	if got := cs.ClientRoles("my-client-id"); len(got) != 1 || got[0] != "reader" {
		t.Errorf("ClientRoles(my-client-id) = %v", got)
	}
	if got := cs.ClientRoles("broken"); len(got) != 0 {
		t.Errorf("ClientRoles(broken) = %v, want none", got)
	}
	if got := cs.ClientRoles("missing"); len(got) != 0 {
		t.Errorf("ClientRoles(missing) = %v, want none", got)
	}
}

func TestClaimSet_NilSafe(t *testing.T) {
	var cs *ClaimSet
	if cs.RealmRoles() != nil || cs.ClientRoles("x") != nil || cs.Raw() != nil || cs.DisplayName() != "" {
		t.Error("nil ClaimSet accessors should return zero values")
	}
	if _, ok := cs.Get("sub"); ok {
		t.Error("nil ClaimSet Get() should miss")
	}
	if HasRealmRole(nil, "admin") {
		t.Error("HasRealmRole(nil) = true")
	}
}

func TestClaimSet_RawIsCopy(t *testing.T) {
	cs := claimsWith(jwt.MapClaims{"custom": "v"})
	raw := cs.Raw()
	raw["custom"] = "changed"
	if v, _ := cs.Get("custom"); v != "v" {
		t.Errorf("Get(custom) = %v after mutating Raw()", v)
	}
}

func TestHasRealmRole(t *testing.T) {
	cs := claimsWith(jwt.MapClaims{"realm_access": map[string]any{"roles": []any{"admin"}}})

	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"Admin", false},
		{"ADMIN", false},
		{"admin ", false},
		{"", false},
		{"user", false},
	}
	for _, tt := range tests {
		if got := HasRealmRole(cs, tt.role); got != tt.want {
			t.Errorf("HasRealmRole(%q) = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestHasClientRole_DoesNotCrossScopes(t *testing.T) {
	cs := claimsWith(jwt.MapClaims{
		"realm_access":    map[string]any{"roles": []any{"admin"}},
		"resource_access": map[string]any{"other": map[string]any{"roles": []any{"admin"}}},
	})
	if HasClientRole(cs, "my-client-id", "admin") {
		t.Error("realm or other-client role satisfied a client role")
	}
	if !HasClientRole(cs, "other", "admin") {
		t.Error("HasClientRole(other, admin) = false")
	}
	if HasClientRole(cs, "", "admin") {
		t.Error("empty client should never match")
	}
}

func TestRoleAuthorizer(t *testing.T) {
	admin := claimsWith(jwt.MapClaims{"realm_access": map[string]any{"roles": []any{"admin"}}})
	user := claimsWith(jwt.MapClaims{"realm_access": map[string]any{"roles": []any{"user"}}})

	az := RequireRealmRole("admin")
	if az.Name() != "realm_role:admin" {
		t.Errorf("Name() = %q", az.Name())
	}
	if err := az.Authorize(context.Background(), admin); err != nil {
		t.Errorf("Authorize(admin) error = %v", err)
	}

	err := az.Authorize(context.Background(), user)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("Authorize(user) error = %v, want ErrForbidden", err)
	}
	var authzErr *AuthzError
	if !errors.As(err, &authzErr) {
		t.Fatalf("error is %T, want *AuthzError", err)
	}
	if authzErr.Reason != "admin role required" || authzErr.Subject != "user-1" || authzErr.Requirement != "realm_role:admin" {
		t.Errorf("AuthzError = %+v", authzErr)
	}

	if err := az.Authorize(context.Background(), nil); !errors.Is(err, ErrForbidden) {
		t.Errorf("Authorize(nil) error = %v, want ErrForbidden", err)
	}

	client := RequireClientRole("my-client-id", "reader")
	if client.Name() != "client_role:my-client-id:reader" {
		t.Errorf("Name() = %q", client.Name())
	}
	if err := client.Authorize(context.Background(), admin); !errors.Is(err, ErrForbidden) {
		t.Errorf("client authorizer accepted a realm role: %v", err)
	}
}

func TestAllOf(t *testing.T) {
	cs := claimsWith(jwt.MapClaims{
		"realm_access":    map[string]any{"roles": []any{"admin"}},
		"resource_access": map[string]any{"app": map[string]any{"roles": []any{"writer"}}},
	})

	var calls []string
	record := func(name string, err error) Authorizer {
		return AuthorizerFunc(func(context.Context, *ClaimSet) error {
			calls = append(calls, name)
			return err
		})
	}

	az := AllOf(RequireRealmRole("admin"), RequireClientRole("app", "writer"))
	if err := az.Authorize(context.Background(), cs); err != nil {
		t.Errorf("AllOf() error = %v", err)
	}
	if az.Name() != "all_of" {
		t.Errorf("Name() = %q", az.Name())
	}

	deny := &AuthzError{Reason: "nope"}
	err := AllOf(record("first", nil), record("second", deny), record("third", nil)).Authorize(context.Background(), cs)
	if !errors.Is(err, deny) {
		t.Errorf("AllOf() error = %v, want %v", err, deny)
	}
	if len(calls) != 2 {
		t.Errorf("calls = %v, want evaluation to stop at the first denial", calls)
	}
}
