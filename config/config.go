// Package config loads the gate's process configuration from the
// environment. It is read once at startup and never reloaded.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonwraymond/realmgate/observe"
	"github.com/jonwraymond/realmgate/secret"
)

// ServiceName identifies the process in telemetry.
const ServiceName = "realmgate"

// ErrInvalid wraps every configuration error.
var ErrInvalid = errors.New("config: invalid")

// Config is the process configuration.
type Config struct {
	// KeycloakBaseURL is the identity provider's base URL.
	KeycloakBaseURL string
	Realm           string
	// ClientID is the expected token audience.
	ClientID string

	// Issuer and KeySetURL are derived from the three values above.
	Issuer    string
	KeySetURL string

	Addr            string
	ShutdownTimeout time.Duration

	ProtectedPaths []string
	RequiredRole   string

	// RequiredClientRole is "<client>:<role>". When set the gate also
	// requires that role under resource_access.<client>.
	RequiredClientRole string

	ClockSkew time.Duration

	KeySetTTL             time.Duration
	KeySetFetchTimeout    time.Duration
	KeySetMissRate        float64
	KeySetRefreshSchedule string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AnalyticsTopN     int
	AnalyticsCacheTTL time.Duration

	LogLevel        string
	TracesExporter  string
	MetricsExporter string
	TraceSampleRate float64
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	c := Config{
		KeycloakBaseURL:    "https://keycloak.example.com",
		Realm:              "myrealm",
		ClientID:           "my-client-id",
		Addr:               ":8080",
		ShutdownTimeout:    10 * time.Second,
		ProtectedPaths:     []string{"/rbac-secure"},
		RequiredRole:       "admin",
		KeySetTTL:          time.Hour,
		KeySetFetchTimeout: 5 * time.Second,
		KeySetMissRate:     1,
		AnalyticsTopN:      5,
		AnalyticsCacheTTL:  30 * time.Second,
		LogLevel:           "info",
		TracesExporter:     "none",
		MetricsExporter:    "none",
		TraceSampleRate:    1,
	}
	c.derive()
	return c
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, os.LookupEnv, secret.NewDefaultResolver(os.LookupEnv))
}

// LoadFrom reads variables through lookup and resolves each value with
// resolver, so values may use ${VAR} or secretref: references.
func LoadFrom(ctx context.Context, lookup secret.LookupFunc, resolver *secret.Resolver) (*Config, error) {
	l := &loader{ctx: ctx, lookup: lookup, resolver: resolver}
	c := Default()

	l.str("KEYCLOAK_BASE_URL", &c.KeycloakBaseURL)
	l.str("KEYCLOAK_REALM", &c.Realm)
	l.str("KEYCLOAK_CLIENT_ID", &c.ClientID)
	l.str("REALMGATE_ADDR", &c.Addr)
	l.duration("REALMGATE_SHUTDOWN_TIMEOUT", &c.ShutdownTimeout)
	l.list("REALMGATE_PROTECTED_PATHS", &c.ProtectedPaths)
	l.str("REALMGATE_REQUIRED_ROLE", &c.RequiredRole)
	l.str("REALMGATE_REQUIRED_CLIENT_ROLE", &c.RequiredClientRole)
	l.duration("REALMGATE_CLOCK_SKEW", &c.ClockSkew)
	l.duration("REALMGATE_KEYSET_TTL", &c.KeySetTTL)
	l.duration("REALMGATE_KEYSET_FETCH_TIMEOUT", &c.KeySetFetchTimeout)
	l.float("REALMGATE_KEYSET_MISS_RATE", &c.KeySetMissRate)
	l.str("REALMGATE_KEYSET_REFRESH_SCHEDULE", &c.KeySetRefreshSchedule)
	l.str("DATABASE_URL", &c.DatabaseURL)
	l.str("REDIS_ADDR", &c.RedisAddr)
	l.str("REDIS_PASSWORD", &c.RedisPassword)
	l.integer("REDIS_DB", &c.RedisDB)
	l.integer("ANALYTICS_TOP_N", &c.AnalyticsTopN)
	l.duration("ANALYTICS_CACHE_TTL", &c.AnalyticsCacheTTL)
	l.str("LOG_LEVEL", &c.LogLevel)
	l.str("OTEL_TRACES_EXPORTER", &c.TracesExporter)
	l.str("OTEL_METRICS_EXPORTER", &c.MetricsExporter)
	l.float("OTEL_TRACES_SAMPLE_RATIO", &c.TraceSampleRate)

	if err := errors.Join(l.errs...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	c.KeycloakBaseURL = strings.TrimRight(c.KeycloakBaseURL, "/")
	c.derive()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) derive() {
	c.Issuer = strings.TrimRight(c.KeycloakBaseURL, "/") + "/realms/" + c.Realm
	c.KeySetURL = c.Issuer + "/protocol/openid-connect/certs"
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs []error
	if u, err := url.Parse(c.KeycloakBaseURL); err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("KEYCLOAK_BASE_URL %q must be an absolute http(s) URL", c.KeycloakBaseURL))
	}
	if c.Realm == "" {
		errs = append(errs, errors.New("KEYCLOAK_REALM is required"))
	}
	if c.ClientID == "" {
		errs = append(errs, errors.New("KEYCLOAK_CLIENT_ID is required"))
	}
	if len(c.ProtectedPaths) == 0 {
		errs = append(errs, errors.New("REALMGATE_PROTECTED_PATHS must list at least one path"))
	}
	for _, p := range c.ProtectedPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("protected path %q must start with /", p))
		}
	}
	if c.RequiredRole == "" {
		errs = append(errs, errors.New("REALMGATE_REQUIRED_ROLE is required"))
	}
	if c.RequiredClientRole != "" {
		if _, _, ok := c.ClientRoleRequirement(); !ok {
			errs = append(errs, fmt.Errorf("REALMGATE_REQUIRED_CLIENT_ROLE %q must be <client>:<role>", c.RequiredClientRole))
		}
	}
	if c.ClockSkew < 0 {
		errs = append(errs, errors.New("REALMGATE_CLOCK_SKEW must not be negative"))
	}
	if c.KeySetTTL <= 0 {
		errs = append(errs, errors.New("REALMGATE_KEYSET_TTL must be positive"))
	}
	if c.KeySetFetchTimeout <= 0 {
		errs = append(errs, errors.New("REALMGATE_KEYSET_FETCH_TIMEOUT must be positive"))
	}
	if c.KeySetMissRate <= 0 {
		errs = append(errs, errors.New("REALMGATE_KEYSET_MISS_RATE must be positive"))
	}
	if c.KeySetRefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.KeySetRefreshSchedule); err != nil {
			errs = append(errs, fmt.Errorf("REALMGATE_KEYSET_REFRESH_SCHEDULE: %w", err))
		}
	}
	if c.AnalyticsTopN < 1 || c.AnalyticsTopN > 100 {
		errs = append(errs, errors.New("ANALYTICS_TOP_N must be between 1 and 100"))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("REALMGATE_SHUTDOWN_TIMEOUT must be positive"))
	}
	oc := c.Observe(nil)
	if err := oc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// ClientRoleRequirement splits RequiredClientRole at its first colon.
// ok is false when the option is unset or either half is empty.
func (c *Config) ClientRoleRequirement() (client, role string, ok bool) {
	client, role, found := strings.Cut(c.RequiredClientRole, ":")
	client, role = strings.TrimSpace(client), strings.TrimSpace(role)
	if !found || client == "" || role == "" {
		return "", "", false
	}
	return client, role, true
}

// Observe returns the telemetry configuration. Logs go to w, or stderr
// when w is nil.
func (c *Config) Observe(w io.Writer) observe.Config {
	return observe.Config{
		ServiceName: ServiceName,
		Tracing: observe.TracingConfig{
			Enabled:   c.TracesExporter != "" && c.TracesExporter != "none",
			Exporter:  c.TracesExporter,
			SamplePct: c.TraceSampleRate,
		},
		Metrics: observe.MetricsConfig{
			Enabled:  c.MetricsExporter != "" && c.MetricsExporter != "none",
			Exporter: c.MetricsExporter,
		},
		Logging: observe.LoggingConfig{Level: c.LogLevel, Output: w},
	}
}

type loader struct {
	ctx      context.Context
	lookup   secret.LookupFunc
	resolver *secret.Resolver
	errs     []error
}

// value returns the resolved variable and whether it was set non-empty.
func (l *loader) value(key string) (string, bool) {
	raw, ok := l.lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return "", false
	}
	v, err := l.resolver.ResolveValue(l.ctx, strings.TrimSpace(raw))
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return "", false
	}
	return v, true
}

func (l *loader) str(key string, dst *string) {
	if v, ok := l.value(key); ok {
		*dst = v
	}
}

func (l *loader) list(key string, dst *[]string) {
	v, ok := l.value(key)
	if !ok {
		return
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	*dst = out
}

func (l *loader) duration(key string, dst *time.Duration) {
	v, ok := l.value(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = d
}

func (l *loader) integer(key string, dst *int) {
	v, ok := l.value(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = n
}

func (l *loader) float(key string, dst *float64) {
	v, ok := l.value(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("%s: %w", key, err))
		return
	}
	*dst = f
}
