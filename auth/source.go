package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jonwraymond/realmgate/cache"
)

// MaxKeySetDocumentSize caps the key-set response body.
const MaxKeySetDocumentSize = 1 << 20

// KeySetSource produces a fresh SigningKeySet.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: FetchKeySet must honor cancellation/deadlines.
// - Errors: a nil error implies a non-empty set.
type KeySetSource interface {
	FetchKeySet(ctx context.Context) (*SigningKeySet, error)
}

// DocumentSource fetches the raw key-set document.
type DocumentSource interface {
	FetchDocument(ctx context.Context) ([]byte, error)

	// URL identifies the document; it keys shared caches.
	URL() string
}

// Invalidator is implemented by sources that keep their own copy of the
// document. The resolver invalidates before a miss-triggered refresh so a
// rotated key is never masked by an older cached document.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// HTTPSourceConfig configures HTTPKeySetSource.
type HTTPSourceConfig struct {
	// URL is the key-set endpoint, e.g.
	// https://idp/realms/myrealm/protocol/openid-connect/certs
	URL string

	// HTTPClient is used for requests. Default: a client whose transport is
	// instrumented with OpenTelemetry.
	HTTPClient *http.Client
}

// HTTPKeySetSource fetches the key set from the identity provider.
type HTTPKeySetSource struct {
	url    string
	client *http.Client
}

// NewHTTPKeySetSource creates a source for cfg.URL.
func NewHTTPKeySetSource(cfg HTTPSourceConfig) (*HTTPKeySetSource, error) {
	if cfg.URL == "" {
		return nil, errors.New("auth: key set URL is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &HTTPKeySetSource{url: cfg.URL, client: cfg.HTTPClient}, nil
}

// URL returns the key-set endpoint.
func (s *HTTPKeySetSource) URL() string { return s.url }

// FetchDocument GETs the key-set document.
func (s *HTTPKeySetSource) FetchDocument(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch key set: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch key set: unexpected status %d", resp.StatusCode)
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, MaxKeySetDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("read key set: %w", err)
	}
	if len(doc) > MaxKeySetDocumentSize {
		return nil, fmt.Errorf("read key set: document exceeds %d bytes", MaxKeySetDocumentSize)
	}
	return doc, nil
}

// FetchKeySet fetches and parses the key set.
func (s *HTTPKeySetSource) FetchKeySet(ctx context.Context) (*SigningKeySet, error) {
	doc, err := s.FetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	return ParseKeySet(doc)
}

// CachedSourceConfig configures CachedKeySetSource.
type CachedSourceConfig struct {
	// Origin fetches the document on a cache miss. Required.
	Origin DocumentSource

	// Cache holds raw documents. Required.
	Cache cache.Cache

	// Keyer derives the cache key from the origin URL.
	// Default: cache.DefaultKeyer
	Keyer cache.Keyer

	// TTL is how long a document stays shared. It should not exceed the
	// resolver's CacheTTL. Default: 5 minutes
	TTL time.Duration
}

// CachedKeySetSource lets gate replicas share one fetched document
// through a cache tier such as Redis.
type CachedKeySetSource struct {
	origin DocumentSource
	cache  cache.Cache
	key    string
	ttl    time.Duration
}

// NewCachedKeySetSource creates a caching decorator around cfg.Origin.
func NewCachedKeySetSource(cfg CachedSourceConfig) (*CachedKeySetSource, error) {
	if cfg.Origin == nil {
		return nil, errors.New("auth: cached source requires an origin")
	}
	if cfg.Cache == nil {
		return nil, cache.ErrNilCache
	}
	if cfg.Keyer == nil {
		cfg.Keyer = cache.NewDefaultKeyer()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	key, err := cfg.Keyer.Key("jwks", cfg.Origin.URL())
	if err != nil {
		return nil, fmt.Errorf("auth: derive key set cache key: %w", err)
	}
	return &CachedKeySetSource{origin: cfg.Origin, cache: cfg.Cache, key: key, ttl: cfg.TTL}, nil
}

// FetchKeySet serves the shared document when present and parseable,
// otherwise fetches from the origin and shares the result.
func (s *CachedKeySetSource) FetchKeySet(ctx context.Context) (*SigningKeySet, error) {
	if doc, ok := s.cache.Get(ctx, s.key); ok {
		if set, err := ParseKeySet(doc); err == nil {
			return set, nil
		}
		_ = s.cache.Delete(ctx, s.key)
	}

	doc, err := s.origin.FetchDocument(ctx)
	if err != nil {
		return nil, err
	}
	set, err := ParseKeySet(doc)
	if err != nil {
		return nil, err
	}
	// Sharing is best-effort; this replica already has the set.
	_ = s.cache.Set(ctx, s.key, doc, s.ttl)
	return set, nil
}

// Invalidate drops the shared document.
func (s *CachedKeySetSource) Invalidate(ctx context.Context) error {
	return s.cache.Delete(ctx, s.key)
}

var (
	_ KeySetSource   = (*HTTPKeySetSource)(nil)
	_ DocumentSource = (*HTTPKeySetSource)(nil)
	_ KeySetSource   = (*CachedKeySetSource)(nil)
	_ Invalidator    = (*CachedKeySetSource)(nil)
)
