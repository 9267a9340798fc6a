// Package server assembles the HTTP surface: the access gate in front of
// every route, token validation, the admin-only resource, analytics, health
// and metrics.
package server

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/jonwraymond/realmgate/auth"
	"github.com/jonwraymond/realmgate/health"
	"github.com/jonwraymond/realmgate/observe"
)

// Response bodies.
const (
	AccessGranted = "Access Granted"
	AccessDenied  = "Access Denied"
	Pong          = "pong"
	WelcomeAdmin  = "Welcome, admin! 🎉"
)

// Config wires the router's collaborators.
type Config struct {
	// Gate guards the protected paths. Required.
	Gate *auth.Gate

	// Verifier backs GET /validate. Required.
	Verifier auth.TokenVerifier

	// Observer instruments every request. Nil disables request
	// instrumentation and logging.
	Observer observe.Observer

	// Health is mounted at /healthz, /readyz, /health and /health/{name}
	// when set.
	Health *health.Aggregator

	// Analytics serves GET /analytics/top-regions when set.
	Analytics http.Handler
}

// New returns the root handler.
func New(cfg Config) (http.Handler, error) {
	if cfg.Gate == nil {
		return nil, errors.New("server: gate is required")
	}
	if cfg.Verifier == nil {
		return nil, errors.New("server: verifier is required")
	}

	logger := observe.NopLogger()
	r := chi.NewRouter()
	if cfg.Observer != nil {
		logger = cfg.Observer.Logger()
		instrument, err := observe.HTTPMiddleware(cfg.Observer, observe.WithRouteFunc(routePattern))
		if err != nil {
			return nil, err
		}
		r.Use(instrument)
	}
	r.Use(middleware.Recoverer)
	r.Use(cfg.Gate.Middleware)

	r.Get("/ping", ping)
	r.Get("/validate", validate(cfg.Verifier, logger.With(observe.F("component", "validate"))))
	r.Get("/rbac-secure", rbacSecure(logger))

	if cfg.Analytics != nil {
		r.Method(http.MethodGet, "/analytics/top-regions", cfg.Analytics)
	}
	if cfg.Health != nil {
		health.Mount(r, cfg.Health)
	}
	if cfg.Observer != nil {
		if h := cfg.Observer.MetricsHandler(); h != nil {
			r.Method(http.MethodGet, "/metrics", h)
		}
	}
	return r, nil
}

func ping(w http.ResponseWriter, _ *http.Request) {
	writeText(w, http.StatusOK, Pong)
}

// validate answers 200 for a verifiable token and 401 for anything else.
// The rejection reason is logged, never returned.
func validate(v auth.TokenVerifier, logger observe.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := auth.BearerFromRequest(r)
		if !ok {
			logger.Warn(ctx, "token validation failed", observe.F("reason", "missing_bearer"))
			writeText(w, http.StatusUnauthorized, AccessDenied)
			return
		}
		if _, err := v.Verify(ctx, token); err != nil {
			logger.Warn(ctx, "token validation failed",
				observe.F("reason", string(auth.ReasonOf(err))),
				observe.F("error", err),
			)
			writeText(w, http.StatusUnauthorized, AccessDenied)
			return
		}
		writeText(w, http.StatusOK, AccessGranted)
	}
}

func rbacSecure(logger observe.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if claims := auth.ClaimsFromContext(r.Context()); claims != nil {
			logger.Info(r.Context(), "admin resource served",
				observe.F("subject", claims.Subject),
				observe.F("username", claims.PreferredUsername),
			)
		}
		writeText(w, http.StatusOK, WelcomeAdmin)
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
