package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/realmgate/cache"
	"github.com/jonwraymond/realmgate/observe"
)

// Response is the top-regions payload.
type Response struct {
	GeneratedAt time.Time         `json:"generated_at"`
	Query       Query             `json:"query"`
	Results     []RegionAggregate `json:"results"`
}

// ServiceConfig configures Service.
type ServiceConfig struct {
	// Store runs the aggregation. Required.
	Store Store

	// Cache holds encoded responses. Nil disables caching.
	Cache cache.Cache

	// Keyer derives cache keys from queries. Default: cache.DefaultKeyer
	Keyer cache.Keyer

	// TTL is how long a response is reused. Default: 30 seconds
	TTL time.Duration

	Now    func() time.Time
	Tracer trace.Tracer
}

// Service answers top-regions queries through the cache.
type Service struct {
	config ServiceConfig
}

// NewService creates a service.
func NewService(config ServiceConfig) (*Service, error) {
	if config.Store == nil {
		return nil, errors.New("analytics: service requires a store")
	}
	if config.Keyer == nil {
		config.Keyer = cache.NewDefaultKeyer()
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Second
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Service{config: config}, nil
}

// TopRegions returns the response for q and whether it came from the cache.
func (s *Service) TopRegions(ctx context.Context, q Query) (*Response, bool, error) {
	ctx, span := observe.StartSpan(ctx, s.config.Tracer, "analytics.top_regions", trace.SpanKindInternal,
		attribute.Int("analytics.top_n", q.TopN),
		attribute.Int("analytics.categories", len(q.Categories)),
	)

	resp, hit, err := s.topRegions(ctx, q)
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	observe.EndSpan(span, err)
	return resp, hit, err
}

func (s *Service) topRegions(ctx context.Context, q Query) (*Response, bool, error) {
	key, err := s.config.Keyer.Key("top_regions", q)
	if err != nil {
		return nil, false, fmt.Errorf("analytics: cache key: %w", err)
	}

	raw, hit, err := cache.GetOrLoad(ctx, s.config.Cache, key, s.config.TTL, func(ctx context.Context) ([]byte, error) {
		rows, err := s.config.Store.TopRegions(ctx, q)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []RegionAggregate{}
		}
		return json.Marshal(Response{
			GeneratedAt: s.config.Now().UTC(),
			Query:       q,
			Results:     rows,
		})
	})
	if err != nil {
		return nil, false, err
	}

	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, hit, fmt.Errorf("analytics: decode cached response: %w", err)
	}
	return &resp, hit, nil
}
