package observe

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RouteFunc returns the route template used for span names and metric
// labels. It runs after the handler so routers have resolved the pattern.
type RouteFunc func(r *http.Request) string

// MiddlewareOption configures the HTTP middleware.
type MiddlewareOption func(*middlewareConfig)

type middlewareConfig struct {
	route RouteFunc
}

// WithRouteFunc sets how the route label is derived. Default: the URL path.
func WithRouteFunc(fn RouteFunc) MiddlewareOption {
	return func(c *middlewareConfig) {
		if fn != nil {
			c.route = fn
		}
	}
}

// HTTPMiddleware wraps handlers with a server span, request metrics, a
// request id and an access log line.
//
// Contract:
//   - Concurrency: the returned handler is safe for concurrent use.
//   - Ownership: the response body is passed through unmodified.
func HTTPMiddleware(obs Observer, opts ...MiddlewareOption) (func(http.Handler) http.Handler, error) {
	cfg := middlewareConfig{route: func(r *http.Request) string { return r.URL.Path }}
	for _, opt := range opts {
		opt(&cfg)
	}

	metrics, err := newHTTPMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	tracer := obs.Tracer()
	logger := obs.Logger()
	propagator := propagation.TraceContext{}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx = WithRequestID(ctx, id)
			ctx, span := StartSpan(ctx, tracer, "HTTP "+r.Method, trace.SpanKindServer,
				attribute.String("http.method", r.Method),
				attribute.String("url.path", r.URL.Path),
			)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := cfg.route(r)
			duration := time.Since(start)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.Int("http.status_code", rec.status),
			)
			var spanErr error
			if rec.status >= 500 {
				spanErr = errors.New(http.StatusText(rec.status))
			}
			EndSpan(span, spanErr)
			metrics.record(ctx, r.Method, route, rec.status, duration)

			fields := []Field{
				F("method", r.Method),
				F("path", r.URL.Path),
				F("status", rec.status),
				F("duration_ms", float64(duration.Microseconds())/1000.0),
			}
			if rec.status >= 500 {
				logger.Error(ctx, "request completed", fields...)
			} else {
				logger.Info(ctx, "request completed", fields...)
			}
		})
	}, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
