// Package observe wires telemetry for the gate: OpenTelemetry tracing and
// metrics, a logrus-backed structured logger that redacts credentials, and
// an HTTP middleware that ties them to every request.
package observe
