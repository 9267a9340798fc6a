// Package authtest provides an in-process identity provider for tests.
//
// It serves a realm key set at /realms/{realm}/protocol/openid-connect/certs,
// signs RS256 tokens that validate against it, and can rotate keys or
// simulate an outage.
//
//	idp := authtest.NewIssuer("myrealm", "my-client-id")
//	defer idp.Close()
//
//	token := idp.Token(authtest.WithRealmRoles("admin"))
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

type issuerKey struct {
	kid       string
	private   *rsa.PrivateKey
	published bool
}

// Issuer is a mock realm identity provider.
type Issuer struct {
	server   *httptest.Server
	realm    string
	clientID string

	mu      sync.Mutex
	keys    map[string]*issuerKey
	order   []string
	active  string
	status  int
	now     func() time.Time
	nextKey int

	fetches atomic.Int64
}

// NewIssuer starts a provider for realm whose tokens target clientID.
// It publishes one signing key.
func NewIssuer(realm, clientID string) *Issuer {
	iss := &Issuer{
		realm:    realm,
		clientID: clientID,
		keys:     make(map[string]*issuerKey),
		status:   http.StatusOK,
		now:      time.Now,
	}
	iss.active = iss.AddKey(true)

	mux := http.NewServeMux()
	mux.HandleFunc("/realms/"+realm+"/protocol/openid-connect/certs", iss.handleCerts)
	iss.server = httptest.NewServer(mux)
	return iss
}

// BaseURL returns the provider's base URL.
func (i *Issuer) BaseURL() string { return i.server.URL }

// Realm returns the realm name.
func (i *Issuer) Realm() string { return i.realm }

// ClientID returns the default token audience.
func (i *Issuer) ClientID() string { return i.clientID }

// IssuerURL returns {base}/realms/{realm}.
func (i *Issuer) IssuerURL() string { return i.server.URL + "/realms/" + i.realm }

// KeySetURL returns the certs endpoint.
func (i *Issuer) KeySetURL() string { return i.IssuerURL() + "/protocol/openid-connect/certs" }

// Close shuts the server down.
func (i *Issuer) Close() { i.server.Close() }

// Fetches returns how many times the key set was requested.
func (i *Issuer) Fetches() int64 { return i.fetches.Load() }

// SetClock sets the clock used for default iat and exp.
func (i *Issuer) SetClock(now func() time.Time) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.now = now
}

// SetStatus makes the certs endpoint answer with status and no document.
// http.StatusOK restores normal service.
func (i *Issuer) SetStatus(status int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.status = status
}

// AddKey generates a new key and returns its kid. Unpublished keys sign
// tokens the relying party cannot resolve.
func (i *Issuer) AddKey(publish bool) string {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		panic("authtest: generate key: " + err.Error())
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.nextKey++
	kid := fmt.Sprintf("key-%d", i.nextKey)
	i.keys[kid] = &issuerKey{kid: kid, private: priv, published: publish}
	i.order = append(i.order, kid)
	return kid
}

// Publish adds kid to the served key set.
func (i *Issuer) Publish(kid string) { i.setPublished(kid, true) }

// Unpublish removes kid from the served key set.
func (i *Issuer) Unpublish(kid string) { i.setPublished(kid, false) }

func (i *Issuer) setPublished(kid string, published bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if k, ok := i.keys[kid]; ok {
		k.published = published
	}
}

// ActiveKey returns the kid used to sign tokens by default.
func (i *Issuer) ActiveKey() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// SetActiveKey makes kid the default signing key.
func (i *Issuer) SetActiveKey(kid string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.active = kid
}

// RotateKey publishes a new key, signs with it from now on, and withdraws
// the previous one. It returns the new kid.
func (i *Issuer) RotateKey() string {
	old := i.ActiveKey()
	kid := i.AddKey(true)
	i.SetActiveKey(kid)
	i.Unpublish(old)
	return kid
}

// PublicKey returns the public half of kid.
func (i *Issuer) PublicKey(kid string) *rsa.PublicKey {
	i.mu.Lock()
	defer i.mu.Unlock()
	if k, ok := i.keys[kid]; ok {
		return &k.private.PublicKey
	}
	return nil
}

// KeySetDocument renders the currently published keys as a JWKS document.
func (i *Issuer) KeySetDocument() []byte {
	i.mu.Lock()
	defer i.mu.Unlock()

	set := jwk.NewSet()
	for _, kid := range i.order {
		k := i.keys[kid]
		if !k.published {
			continue
		}
		pub, err := jwk.FromRaw(&k.private.PublicKey)
		if err != nil {
			panic("authtest: build jwk: " + err.Error())
		}
		_ = pub.Set(jwk.KeyIDKey, k.kid)
		_ = pub.Set(jwk.AlgorithmKey, jwa.RS256)
		_ = pub.Set(jwk.KeyUsageKey, jwk.ForSignature)
		_ = set.AddKey(pub)
	}

	doc, err := json.Marshal(set)
	if err != nil {
		panic("authtest: marshal key set: " + err.Error())
	}
	return doc
}

func (i *Issuer) handleCerts(w http.ResponseWriter, _ *http.Request) {
	i.fetches.Add(1)

	i.mu.Lock()
	status := i.status
	i.mu.Unlock()

	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(i.KeySetDocument())
}

// TokenOption customizes a minted token.
type TokenOption func(*tokenSpec)

type tokenSpec struct {
	claims jwt.MapClaims
	kid    string
	noKid  bool
	method jwt.SigningMethod
	drop   []string
}

// WithSubject sets sub and preferred_username.
func WithSubject(sub string) TokenOption {
	return func(s *tokenSpec) {
		s.claims["sub"] = sub
		s.claims["preferred_username"] = sub
	}
}

// WithRealmRoles sets realm_access.roles.
func WithRealmRoles(roles ...string) TokenOption {
	return WithClaim("realm_access", map[string]any{"roles": roles})
}

// WithClientRoles sets resource_access.<client>.roles.
func WithClientRoles(client string, roles ...string) TokenOption {
	return func(s *tokenSpec) {
		ra, _ := s.claims["resource_access"].(map[string]any)
		if ra == nil {
			ra = map[string]any{}
		}
		ra[client] = map[string]any{"roles": roles}
		s.claims["resource_access"] = ra
	}
}

// WithAudience sets aud. One value is written as a string, several as a list.
func WithAudience(aud ...string) TokenOption {
	return func(s *tokenSpec) {
		if len(aud) == 1 {
			s.claims["aud"] = aud[0]
			return
		}
		s.claims["aud"] = aud
	}
}

// WithIssuer overrides iss.
func WithIssuer(iss string) TokenOption {
	return WithClaim("iss", iss)
}

// WithExpiry sets exp.
func WithExpiry(t time.Time) TokenOption {
	return WithClaim("exp", t.Unix())
}

// WithIssuedAt sets iat.
func WithIssuedAt(t time.Time) TokenOption {
	return WithClaim("iat", t.Unix())
}

// WithClaim sets an arbitrary claim.
func WithClaim(name string, value any) TokenOption {
	return func(s *tokenSpec) {
		s.claims[name] = value
	}
}

// WithoutClaim removes a claim, including the defaults.
func WithoutClaim(name string) TokenOption {
	return func(s *tokenSpec) {
		s.drop = append(s.drop, name)
	}
}

// WithKeyID signs with kid instead of the active key.
func WithKeyID(kid string) TokenOption {
	return func(s *tokenSpec) {
		s.kid = kid
	}
}

// WithoutKeyID omits the kid header.
func WithoutKeyID() TokenOption {
	return func(s *tokenSpec) {
		s.noKid = true
	}
}

// Token mints an RS256 token. Defaults: sub "user-1", iss IssuerURL, aud
// ClientID, iat now, exp now+1h, signed with the active key.
func (i *Issuer) Token(opts ...TokenOption) string {
	i.mu.Lock()
	now := i.now()
	active := i.active
	i.mu.Unlock()

	spec := &tokenSpec{
		claims: jwt.MapClaims{
			"sub":                "user-1",
			"preferred_username": "user-1",
			"iss":                i.IssuerURL(),
			"aud":                i.clientID,
			"iat":                now.Unix(),
			"exp":                now.Add(time.Hour).Unix(),
		},
		kid:    active,
		method: jwt.SigningMethodRS256,
	}
	for _, opt := range opts {
		opt(spec)
	}
	for _, name := range spec.drop {
		delete(spec.claims, name)
	}

	i.mu.Lock()
	key, ok := i.keys[spec.kid]
	i.mu.Unlock()
	if !ok {
		panic("authtest: unknown key " + spec.kid)
	}

	tok := jwt.NewWithClaims(spec.method, spec.claims)
	if !spec.noKid {
		tok.Header["kid"] = spec.kid
	}
	signed, err := tok.SignedString(key.private)
	if err != nil {
		panic("authtest: sign token: " + err.Error())
	}
	return signed
}

// ExpiredToken mints a token that expired an hour ago.
func (i *Issuer) ExpiredToken(opts ...TokenOption) string {
	i.mu.Lock()
	now := i.now()
	i.mu.Unlock()
	opts = append([]TokenOption{
		WithIssuedAt(now.Add(-2 * time.Hour)),
		WithExpiry(now.Add(-time.Hour)),
	}, opts...)
	return i.Token(opts...)
}
