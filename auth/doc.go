// Package auth verifies bearer tokens issued by a realm identity provider
// and enforces a role check on protected routes.
//
// The pieces, leaves first:
//
//   - KeyResolver caches the provider's SigningKeySet, refreshing it when
//     it expires or when a token names an unknown key ID.
//   - Verifier checks an RS256 token's signature and its exp, iat, iss and
//     aud claims, yielding a ClaimSet or a *VerificationError.
//   - HasRealmRole and RoleAuthorizer inspect realm_access.roles.
//   - Gate is net/http middleware tying them together for a fixed set of
//     protected paths.
package auth
