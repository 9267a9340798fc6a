package auth

import (
	"crypto/rsa"
	"fmt"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
)

// SigningKey is one public verification key from the identity provider.
type SigningKey struct {
	// KeyID is the "kid" the provider tags tokens with.
	KeyID string

	// Algorithm is the "alg" the document declares for this key, or ""
	// when it declares none.
	Algorithm string

	// Key is the RSA public key material.
	Key *rsa.PublicKey
}

// SigningKeySet is an immutable snapshot of the provider's signing keys.
// A refresh produces a new set; an existing set is never modified.
type SigningKeySet struct {
	keys  map[string]SigningKey
	order []string
}

// NewSigningKeySet builds a set from keys. Keys without an ID or material
// are dropped; for duplicate IDs the first key wins.
func NewSigningKeySet(keys ...SigningKey) *SigningKeySet {
	s := &SigningKeySet{keys: make(map[string]SigningKey, len(keys))}
	for _, k := range keys {
		if k.KeyID == "" || k.Key == nil {
			continue
		}
		if _, dup := s.keys[k.KeyID]; dup {
			continue
		}
		s.keys[k.KeyID] = k
		s.order = append(s.order, k.KeyID)
	}
	return s
}

// Lookup returns the key for kid. An empty kid resolves only when the set
// holds exactly one key.
func (s *SigningKeySet) Lookup(kid string) (SigningKey, bool) {
	if s == nil {
		return SigningKey{}, false
	}
	if kid == "" {
		if len(s.order) == 1 {
			return s.keys[s.order[0]], true
		}
		return SigningKey{}, false
	}
	k, ok := s.keys[kid]
	return k, ok
}

// Len returns the number of keys in the set.
func (s *SigningKeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// KeyIDs returns the key IDs in document order.
func (s *SigningKeySet) KeyIDs() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.order...)
}

// ParseKeySet parses a JWKS document. Only RSA keys meant for signatures
// and carrying a kid are kept. A document with no such key is an error.
func ParseKeySet(doc []byte) (*SigningKeySet, error) {
	set, err := jwk.Parse(doc)
	if err != nil {
		return nil, fmt.Errorf("auth: parse key set: %w", err)
	}

	keys := make([]SigningKey, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		key, ok := set.Key(i)
		if !ok || key.KeyType() != jwa.RSA {
			continue
		}
		if use := key.KeyUsage(); use != "" && use != string(jwk.ForSignature) {
			continue
		}
		if key.KeyID() == "" {
			continue
		}

		var raw any
		if err := key.Raw(&raw); err != nil {
			continue
		}
		pub, ok := raw.(*rsa.PublicKey)
		if !ok {
			continue
		}

		var alg string
		if a := key.Algorithm(); a != nil {
			alg = a.String()
		}
		keys = append(keys, SigningKey{KeyID: key.KeyID(), Algorithm: alg, Key: pub})
	}

	s := NewSigningKeySet(keys...)
	if s.Len() == 0 {
		return nil, ErrNoSigningKeys
	}
	return s, nil
}
