package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("log line is not JSON: %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("info", &buf)

	log.Info(context.Background(), "key set refreshed", F("keys", 2), F("error", errors.New("none")))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	entry := lines[0]
	if entry["msg"] != "key set refreshed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v", entry["level"])
	}
	if entry["keys"] != float64(2) {
		t.Errorf("keys = %v", entry["keys"])
	}
	if entry["error"] != "none" {
		t.Errorf("error field = %v, want error string", entry["error"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("warn", &buf)
	ctx := context.Background()

	log.Debug(ctx, "debug")
	log.Info(ctx, "info")
	log.Warn(ctx, "warn")
	log.Error(ctx, "error")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2 (warn and error)", len(lines))
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("debug", &buf)

	secrets := []string{"token", "Authorization", "password", "secret", "api_key", "credential", "dsn"}
	fields := make([]Field, 0, len(secrets)+1)
	for _, k := range secrets {
		fields = append(fields, F(k, "sensitive-value"))
	}
	fields = append(fields, F("reason", "expired"))

	log.Warn(context.Background(), "denied", fields...)

	if strings.Contains(buf.String(), "sensitive-value") {
		t.Fatalf("log leaked a redacted value: %s", buf.String())
	}
	entry := decodeLines(t, &buf)[0]
	for _, k := range secrets {
		if entry[k] != "[REDACTED]" {
			t.Errorf("%s = %v, want [REDACTED]", k, entry[k])
		}
	}
	if entry["reason"] != "expired" {
		t.Errorf("reason = %v, want expired", entry["reason"])
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger("info", &buf)
	scoped := base.With(F("component", "resolver"))

	scoped.Info(context.Background(), "scoped")
	base.Info(context.Background(), "base")

	lines := decodeLines(t, &buf)
	if lines[0]["component"] != "resolver" {
		t.Errorf("scoped entry missing component: %v", lines[0])
	}
	if _, ok := lines[1]["component"]; ok {
		t.Error("With leaked fields into the parent logger")
	}
}

func TestLogger_ContextCorrelation(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger("info", &buf)

	tp := sdktrace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()
	ctx = WithRequestID(ctx, "req-1")

	log.Info(ctx, "correlated")

	entry := decodeLines(t, &buf)[0]
	if entry["trace_id"] != span.SpanContext().TraceID().String() {
		t.Errorf("trace_id = %v", entry["trace_id"])
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("request_id = %v", entry["request_id"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]string{
		"debug": "debug",
		"INFO":  "info",
		"warn":  "warning",
		"error": "error",
		"bogus": "info",
	}
	for in, want := range tests {
		if got := ParseLevel(in).String(); got != want {
			t.Errorf("ParseLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	log := NopLogger().With(F("a", 1))
	log.Info(context.Background(), "ignored")
	log.Error(context.Background(), "ignored")
}
