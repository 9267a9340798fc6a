package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonwraymond/realmgate/observe"
	"github.com/jonwraymond/realmgate/secret"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	return LoadFrom(context.Background(), lookup, secret.NewDefaultResolver(lookup))
}

func TestLoad_Defaults(t *testing.T) {
	c, err := load(t, nil)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if c.Issuer != "https://keycloak.example.com/realms/myrealm" {
		t.Errorf("Issuer = %q", c.Issuer)
	}
	if c.KeySetURL != "https://keycloak.example.com/realms/myrealm/protocol/openid-connect/certs" {
		t.Errorf("KeySetURL = %q", c.KeySetURL)
	}
	if c.ClientID != "my-client-id" || c.Addr != ":8080" || c.RequiredRole != "admin" {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if len(c.ProtectedPaths) != 1 || c.ProtectedPaths[0] != "/rbac-secure" {
		t.Errorf("ProtectedPaths = %v", c.ProtectedPaths)
	}
	if c.ClockSkew != 0 || c.KeySetTTL != time.Hour || c.KeySetFetchTimeout != 5*time.Second {
		t.Errorf("key set timing = %v %v %v", c.ClockSkew, c.KeySetTTL, c.KeySetFetchTimeout)
	}
	if c.AnalyticsTopN != 5 || c.DatabaseURL != "" || c.RedisAddr != "" {
		t.Errorf("unexpected optional defaults: %+v", c)
	}
}

func TestLoad_Overrides(t *testing.T) {
	c, err := load(t, map[string]string{
		"KEYCLOAK_BASE_URL":                 "http://idp.internal:8180/",
		"KEYCLOAK_REALM":                    "acme",
		"KEYCLOAK_CLIENT_ID":                "gateway",
		"REALMGATE_PROTECTED_PATHS":         " /rbac-secure, /admin ,,",
		"REALMGATE_REQUIRED_ROLE":           "ops",
		"REALMGATE_REQUIRED_CLIENT_ROLE":    "billing:invoice-admin",
		"REALMGATE_CLOCK_SKEW":              "30s",
		"REALMGATE_KEYSET_TTL":              "10m",
		"REALMGATE_KEYSET_MISS_RATE":        "0.5",
		"REALMGATE_KEYSET_REFRESH_SCHEDULE": "@every 10m",
		"REDIS_DB":                          "2",
		"ANALYTICS_TOP_N":                   "10",
		"LOG_LEVEL":                         "debug",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if c.Issuer != "http://idp.internal:8180/realms/acme" {
		t.Errorf("Issuer = %q", c.Issuer)
	}
	if c.ClientID != "gateway" || c.RequiredRole != "ops" {
		t.Errorf("ClientID = %q, RequiredRole = %q", c.ClientID, c.RequiredRole)
	}
	if client, role, ok := c.ClientRoleRequirement(); !ok || client != "billing" || role != "invoice-admin" {
		t.Errorf("ClientRoleRequirement() = %q, %q, %v", client, role, ok)
	}
	if strings.Join(c.ProtectedPaths, "|") != "/rbac-secure|/admin" {
		t.Errorf("ProtectedPaths = %v", c.ProtectedPaths)
	}
	if c.ClockSkew != 30*time.Second || c.KeySetTTL != 10*time.Minute || c.KeySetMissRate != 0.5 {
		t.Errorf("timing = %v %v %v", c.ClockSkew, c.KeySetTTL, c.KeySetMissRate)
	}
	if c.KeySetRefreshSchedule != "@every 10m" || c.RedisDB != 2 || c.AnalyticsTopN != 10 {
		t.Errorf("unexpected: %+v", c)
	}
}

func TestLoad_ResolvesSecrets(t *testing.T) {
	dir := t.TempDir()
	dsnFile := filepath.Join(dir, "dsn")
	if err := os.WriteFile(dsnFile, []byte("postgres://app:pw@db:5432/sales\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := load(t, map[string]string{
		"DATABASE_URL":      "secretref:file:" + dsnFile,
		"REDIS_PASSWORD":    "secretref:env:CACHE_PW",
		"CACHE_PW":          "hunter2",
		"IDP_HOST":          "idp.internal",
		"KEYCLOAK_BASE_URL": "https://${IDP_HOST}",
	})
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if c.DatabaseURL != "postgres://app:pw@db:5432/sales" {
		t.Errorf("DatabaseURL = %q", c.DatabaseURL)
	}
	if c.RedisPassword != "hunter2" {
		t.Errorf("RedisPassword = %q", c.RedisPassword)
	}
	if c.KeycloakBaseURL != "https://idp.internal" {
		t.Errorf("KeycloakBaseURL = %q", c.KeycloakBaseURL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"relative base url", map[string]string{"KEYCLOAK_BASE_URL": "keycloak"}, "KEYCLOAK_BASE_URL"},
		{"ftp base url", map[string]string{"KEYCLOAK_BASE_URL": "ftp://idp"}, "KEYCLOAK_BASE_URL"},
		{"bad duration", map[string]string{"REALMGATE_KEYSET_TTL": "soon"}, "REALMGATE_KEYSET_TTL"},
		{"zero ttl", map[string]string{"REALMGATE_KEYSET_TTL": "0s"}, "REALMGATE_KEYSET_TTL"},
		{"negative skew", map[string]string{"REALMGATE_CLOCK_SKEW": "-1s"}, "REALMGATE_CLOCK_SKEW"},
		{"bad top n", map[string]string{"ANALYTICS_TOP_N": "500"}, "ANALYTICS_TOP_N"},
		{"not a number", map[string]string{"REDIS_DB": "one"}, "REDIS_DB"},
		{"path without slash", map[string]string{"REALMGATE_PROTECTED_PATHS": "rbac-secure"}, "rbac-secure"},
		{"missing env reference", map[string]string{"DATABASE_URL": "${PG_DSN}"}, "PG_DSN"},
		{"unknown exporter", map[string]string{"OTEL_TRACES_EXPORTER": "zipkin"}, "zipkin"},
		{"bad log level", map[string]string{"LOG_LEVEL": "loud"}, "loud"},
		{"client role without client", map[string]string{"REALMGATE_REQUIRED_CLIENT_ROLE": ":admin"}, "REALMGATE_REQUIRED_CLIENT_ROLE"},
		{"client role without separator", map[string]string{"REALMGATE_REQUIRED_CLIENT_ROLE": "billing"}, "REALMGATE_REQUIRED_CLIENT_ROLE"},
		{"bad refresh schedule", map[string]string{"REALMGATE_KEYSET_REFRESH_SCHEDULE": "every ten minutes"}, "REALMGATE_KEYSET_REFRESH_SCHEDULE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(t, tt.env)
			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("LoadFrom() error = %v, want ErrInvalid", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestConfig_Observe(t *testing.T) {
	c := Default()
	oc := c.Observe(nil)
	if oc.ServiceName != ServiceName || oc.Tracing.Enabled || oc.Metrics.Enabled {
		t.Errorf("Observe() = %+v", oc)
	}

	c.MetricsExporter = "prometheus"
	if oc := c.Observe(nil); !oc.Metrics.Enabled || oc.Metrics.Exporter != "prometheus" {
		t.Errorf("Observe() metrics = %+v", oc.Metrics)
	}
}

func TestConfig_ValidateTelemetry(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() on defaults = %v", err)
	}

	c.MetricsExporter = "statsd"
	err := c.Validate()
	if !errors.Is(err, ErrInvalid) || !errors.Is(err, observe.ErrInvalidMetricsExporter) {
		t.Errorf("Validate() = %v, want ErrInvalid wrapping ErrInvalidMetricsExporter", err)
	}
}
