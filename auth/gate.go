package auth

import (
	"context"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/jonwraymond/realmgate/observe"
)

// Caller-facing denial bodies. They never carry the verification reason.
const (
	DenyMissingBearer = "Forbidden: missing bearer token"
	DenyInvalidToken  = "Forbidden: invalid token"
)

// DefaultRequiredRole is the realm role the gate requires by default.
const DefaultRequiredRole = "admin"

// TokenVerifier verifies a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*ClaimSet, error)
}

// GateConfig configures the access gate.
type GateConfig struct {
	// Verifier checks tokens. Required.
	Verifier TokenVerifier

	// ProtectedPaths are exact request paths the gate enforces.
	// Default: ["/rbac-secure"]
	ProtectedPaths []string

	// Authorizer runs after verification.
	// Default: RequireRealmRole(DefaultRequiredRole)
	Authorizer Authorizer

	Logger observe.Logger
	Meter  metric.Meter
}

// Gate enforces token verification and a role check on protected paths and
// passes every other request through untouched.
type Gate struct {
	verifier   TokenVerifier
	paths      map[string]struct{}
	authorizer Authorizer
	logger     observe.Logger
	decisions  metric.Int64Counter
}

// NewGate creates a new access gate. The protected path set is fixed for
// the gate's lifetime.
func NewGate(config GateConfig) (*Gate, error) {
	if config.Verifier == nil {
		return nil, errors.New("auth: gate requires a verifier")
	}
	if len(config.ProtectedPaths) == 0 {
		config.ProtectedPaths = []string{"/rbac-secure"}
	}
	if config.Authorizer == nil {
		config.Authorizer = RequireRealmRole(DefaultRequiredRole)
	}
	if config.Logger == nil {
		config.Logger = observe.NopLogger()
	}
	if config.Meter == nil {
		config.Meter = noop.NewMeterProvider().Meter("")
	}

	decisions, err := config.Meter.Int64Counter(
		"realmgate.gate.decisions",
		metric.WithDescription("Access gate decisions on protected paths"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	paths := make(map[string]struct{}, len(config.ProtectedPaths))
	for _, p := range config.ProtectedPaths {
		paths[p] = struct{}{}
	}

	return &Gate{
		verifier:   config.Verifier,
		paths:      paths,
		authorizer: config.Authorizer,
		logger:     config.Logger.With(observe.F("component", "gate")),
		decisions:  decisions,
	}, nil
}

// Protects reports whether path is in the protected set.
func (g *Gate) Protects(path string) bool {
	_, ok := g.paths[path]
	return ok
}

// Middleware wraps next with the gate. On success the verified claims are
// available to next through ClaimsFromContext.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()

		token, ok := BearerFromRequest(r)
		if !ok {
			g.deny(w, r, "missing_bearer", DenyMissingBearer)
			return
		}

		claims, err := g.verifier.Verify(ctx, token)
		if err != nil {
			g.logger.Warn(ctx, "token rejected",
				observe.F("path", r.URL.Path),
				observe.F("reason", string(ReasonOf(err))),
				observe.F("error", err),
			)
			g.deny(w, r, "invalid_token", DenyInvalidToken)
			return
		}

		if err := g.authorizer.Authorize(ctx, claims); err != nil {
			reason := "access denied"
			var authzErr *AuthzError
			if errors.As(err, &authzErr) && authzErr.Reason != "" {
				reason = authzErr.Reason
			}
			g.logger.Warn(ctx, "authorization denied",
				observe.F("path", r.URL.Path),
				observe.F("subject", claims.Subject),
				observe.F("authorizer", g.authorizer.Name()),
			)
			g.deny(w, r, "forbidden", "Forbidden: "+reason)
			return
		}

		g.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("decision", "allow")))
		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

func (g *Gate) deny(w http.ResponseWriter, r *http.Request, decision, body string) {
	g.decisions.Add(r.Context(), 1, metric.WithAttributes(attribute.String("decision", decision)))
	writeText(w, http.StatusForbidden, body)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
