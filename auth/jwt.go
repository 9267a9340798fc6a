package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AllowedAlgorithm is the only signing algorithm tokens may declare.
const AllowedAlgorithm = "RS256"

// requiredClaims must be present in every accepted token.
var requiredClaims = []string{"exp", "iat", "iss", "aud"}

// KeyProvider retrieves signing keys for token validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID. It returns
	// ErrKeyNotFound when the ID is unknown; other errors mean the keys
	// could not be obtained.
	GetKey(ctx context.Context, keyID string) (SigningKey, error)
}

// StaticKeyProvider serves a fixed key set.
type StaticKeyProvider struct {
	set *SigningKeySet
}

// NewStaticKeyProvider creates a provider over keys.
func NewStaticKeyProvider(keys ...SigningKey) *StaticKeyProvider {
	return &StaticKeyProvider{set: NewSigningKeySet(keys...)}
}

// GetKey returns the key for keyID.
func (p *StaticKeyProvider) GetKey(_ context.Context, keyID string) (SigningKey, error) {
	if key, ok := p.set.Lookup(keyID); ok {
		return key, nil
	}
	return SigningKey{}, ErrKeyNotFound
}

// VerifierConfig configures the token verifier.
type VerifierConfig struct {
	// Issuer is the exact expected "iss" value. Required.
	Issuer string

	// Audience is the client ID that "aud" must contain. Required.
	Audience string

	// Keys resolves signing keys. Required.
	Keys KeyProvider

	// ClockSkew is the leeway applied to exp, iat and nbf.
	// Default: 0
	ClockSkew time.Duration

	// Now is the clock. Default: time.Now
	Now func() time.Time

	Meter metric.Meter
}

// Verifier validates compact RS256 tokens. Cryptographic checks always run
// before any claim value is read.
type Verifier struct {
	config        VerifierConfig
	parser        *jwt.Parser
	verifications metric.Int64Counter
}

// NewVerifier creates a new token verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	if config.Issuer == "" {
		return nil, errors.New("auth: verifier requires an issuer")
	}
	if config.Audience == "" {
		return nil, errors.New("auth: verifier requires an audience")
	}
	if config.Keys == nil {
		return nil, errors.New("auth: verifier requires a key provider")
	}
	if config.ClockSkew < 0 {
		return nil, errors.New("auth: clock skew must not be negative")
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Meter == nil {
		config.Meter = noop.NewMeterProvider().Meter("")
	}

	verifications, err := config.Meter.Int64Counter(
		"realmgate.verify.total",
		metric.WithDescription("Token verifications by outcome and failure reason"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	return &Verifier{
		config:        config,
		parser:        jwt.NewParser(),
		verifications: verifications,
	}, nil
}

// Verify returns the validated claims, or a *VerificationError naming why
// the token was rejected.
func (v *Verifier) Verify(ctx context.Context, token string) (*ClaimSet, error) {
	claims, err := v.verify(ctx, token)

	attrs := []attribute.KeyValue{attribute.String("outcome", "valid")}
	if err != nil {
		attrs = []attribute.KeyValue{
			attribute.String("outcome", "invalid"),
			attribute.String("reason", string(ReasonOf(err))),
		}
	}
	v.verifications.Add(ctx, 1, metric.WithAttributes(attrs...))

	return claims, err
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

func (v *Verifier) verify(ctx context.Context, token string) (*ClaimSet, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, invalid(ReasonMalformed, fmt.Errorf("token has %d segments, want 3", len(parts)))
	}
	segments := make([][]byte, len(parts))
	for i, part := range parts {
		seg, err := v.parser.DecodeSegment(part)
		if err != nil {
			return nil, invalid(ReasonMalformed, fmt.Errorf("segment %d: %w", i, err))
		}
		segments[i] = seg
	}

	var header tokenHeader
	if err := json.Unmarshal(segments[0], &header); err != nil {
		return nil, invalid(ReasonMalformed, fmt.Errorf("header: %w", err))
	}
	if header.Alg != AllowedAlgorithm {
		return nil, invalid(ReasonAlgorithmMismatch, fmt.Errorf("alg %q", header.Alg))
	}

	key, err := v.config.Keys.GetKey(ctx, header.Kid)
	switch {
	case errors.Is(err, ErrKeyNotFound):
		return nil, invalid(ReasonUnknownKey, fmt.Errorf("kid %q", header.Kid))
	case err != nil:
		return nil, invalid(ReasonKeySourceUnavailable, err)
	}
	if key.Algorithm != "" && key.Algorithm != AllowedAlgorithm {
		return nil, invalid(ReasonAlgorithmMismatch, fmt.Errorf("key %q is for %s", key.KeyID, key.Algorithm))
	}

	signingString := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodRS256.Verify(signingString, segments[2], key.Key); err != nil {
		return nil, invalid(ReasonBadSignature, err)
	}

	claims, err := decodeClaims(segments[1])
	if err != nil {
		return nil, invalid(ReasonMalformed, fmt.Errorf("payload: %w", err))
	}
	for _, name := range requiredClaims {
		if val, ok := claims[name]; !ok || val == nil {
			return nil, invalid(ReasonMissingClaim, fmt.Errorf("%q", name))
		}
	}

	if err := v.checkTimes(claims); err != nil {
		return nil, err
	}

	iss, err := claims.GetIssuer()
	if err != nil {
		return nil, invalid(ReasonMalformed, err)
	}
	if iss != v.config.Issuer {
		return nil, invalid(ReasonIssuerMismatch, fmt.Errorf("iss %q", iss))
	}

	aud, err := claims.GetAudience()
	if err != nil {
		return nil, invalid(ReasonMalformed, err)
	}
	if !slices.Contains(aud, v.config.Audience) {
		return nil, invalid(ReasonAudienceMismatch, fmt.Errorf("aud %v", []string(aud)))
	}

	return newClaimSet(claims), nil
}

// checkTimes rejects tokens outside their validity window: expired at or
// after exp+skew, issued after now+skew, or not valid before nbf-skew.
func (v *Verifier) checkTimes(claims jwt.MapClaims) error {
	now := v.config.Now()
	skew := v.config.ClockSkew

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return invalid(ReasonMalformed, err)
	}
	if !now.Before(exp.Add(skew)) {
		return invalid(ReasonExpired, fmt.Errorf("expired at %s", exp.UTC().Format(time.RFC3339)))
	}

	iat, err := claims.GetIssuedAt()
	if err != nil {
		return invalid(ReasonMalformed, err)
	}
	if iat.After(now.Add(skew)) {
		return invalid(ReasonExpired, fmt.Errorf("issued in the future at %s", iat.UTC().Format(time.RFC3339)))
	}

	nbf, err := claims.GetNotBefore()
	if err != nil {
		return invalid(ReasonMalformed, err)
	}
	if nbf != nil && nbf.After(now.Add(skew)) {
		return invalid(ReasonExpired, fmt.Errorf("not valid before %s", nbf.UTC().Format(time.RFC3339)))
	}
	return nil
}

func decodeClaims(payload []byte) (jwt.MapClaims, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var claims jwt.MapClaims
	if err := dec.Decode(&claims); err != nil {
		return nil, err
	}
	if claims == nil {
		return nil, errors.New("payload is not a JSON object")
	}
	return claims, nil
}

var (
	_ KeyProvider   = (*StaticKeyProvider)(nil)
	_ TokenVerifier = (*Verifier)(nil)
)
