// Package observability wires OpenTelemetry tracing and metrics.
//
// The Telemetry component installs OTLP/HTTP exporters when enabled and
// shuts them down on stop. Metrics carries the registry client and HTTP
// server instruments; a nil *Metrics records nothing, so callers never
// branch on whether telemetry is on.
//
//	m, _ := observability.NewMetrics(observability.Meter("regkit"))
//	m.RecordDiscover(ctx, "billing", "round_robin", "ok", time.Since(start))
package observability
