package auth

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Access holds the roles granted in one access scope.
type Access struct {
	Roles []string `json:"roles"`
}

// ClaimSet is the payload of a verified token. It is only ever built from
// a token that passed every signature and claim check.
type ClaimSet struct {
	Issuer            string
	Subject           string
	Audience          []string
	ExpiresAt         time.Time
	IssuedAt          time.Time
	PreferredUsername string
	Email             string

	// RealmAccess holds realm_access.roles. Empty when absent or malformed.
	RealmAccess Access

	// ResourceAccess holds resource_access.<client>.roles per client.
	ResourceAccess map[string]Access

	raw map[string]any
}

func newClaimSet(claims jwt.MapClaims) *ClaimSet {
	cs := &ClaimSet{
		ResourceAccess: make(map[string]Access),
		raw:            maps.Clone(map[string]any(claims)),
	}
	cs.Issuer, _ = claims.GetIssuer()
	cs.Subject, _ = claims.GetSubject()
	if aud, err := claims.GetAudience(); err == nil {
		cs.Audience = []string(aud)
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		cs.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		cs.IssuedAt = iat.Time
	}
	cs.PreferredUsername, _ = claims["preferred_username"].(string)
	cs.Email, _ = claims["email"].(string)

	cs.RealmAccess = accessFrom(claims["realm_access"])
	if clients, ok := claims["resource_access"].(map[string]any); ok {
		for client, v := range clients {
			if a := accessFrom(v); len(a.Roles) > 0 {
				cs.ResourceAccess[client] = a
			}
		}
	}
	return cs
}

// accessFrom reads {"roles": [...]} and fails closed: anything that is not
// an object holding a list yields no roles, and non-string entries are
// skipped.
func accessFrom(v any) Access {
	obj, ok := v.(map[string]any)
	if !ok {
		return Access{}
	}
	list, ok := obj["roles"].([]any)
	if !ok {
		return Access{}
	}
	roles := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			roles = append(roles, s)
		}
	}
	return Access{Roles: roles}
}

// Get returns the raw value of a claim.
func (c *ClaimSet) Get(name string) (any, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.raw[name]
	return v, ok
}

// Raw returns a shallow copy of the full decoded payload.
func (c *ClaimSet) Raw() map[string]any {
	if c == nil {
		return nil
	}
	return maps.Clone(c.raw)
}

// RealmRoles returns the realm roles.
func (c *ClaimSet) RealmRoles() []string {
	if c == nil {
		return nil
	}
	return c.RealmAccess.Roles
}

// ClientRoles returns the roles granted for client.
func (c *ClaimSet) ClientRoles(client string) []string {
	if c == nil {
		return nil
	}
	return c.ResourceAccess[client].Roles
}

// DisplayName returns preferred_username, falling back to sub.
func (c *ClaimSet) DisplayName() string {
	if c == nil {
		return ""
	}
	if c.PreferredUsername != "" {
		return c.PreferredUsername
	}
	return c.Subject
}
