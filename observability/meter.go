package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// InitMeter installs an OTLP/HTTP periodic meter provider as the global
// provider. The caller shuts it down on exit.
func InitMeter(ctx context.Context, cfg MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// Metric names.
const (
	MetricDiscoverTotal          = "registry.discover.total"
	MetricDiscoverDuration       = "registry.discover.duration"
	MetricRegistrationTotal      = "registry.registration.total"
	MetricDeregistrationFailures = "registry.deregistration.failures"
	MetricPoolSize               = "registry.pool.size"
	MetricRequestTotal           = "http.server.request.total"
	MetricRequestDuration        = "http.server.request.duration"
)

// Metrics holds the instruments recorded by the registry client and the
// HTTP server. A nil *Metrics is valid and records nothing.
type Metrics struct {
	discoverTotal          metric.Int64Counter
	discoverDuration       metric.Float64Histogram
	registrationTotal      metric.Int64Counter
	deregistrationFailures metric.Int64Counter
	poolSize               metric.Int64Gauge
	requestTotal           metric.Int64Counter
	requestDuration        metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.discoverTotal, err = meter.Int64Counter(MetricDiscoverTotal,
		metric.WithDescription("Discover calls by service, strategy and outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricDiscoverTotal, err)
	}
	if m.discoverDuration, err = meter.Float64Histogram(MetricDiscoverDuration,
		metric.WithDescription("Duration of discover calls"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricDiscoverDuration, err)
	}
	if m.registrationTotal, err = meter.Int64Counter(MetricRegistrationTotal,
		metric.WithDescription("Self-registration attempts by outcome"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricRegistrationTotal, err)
	}
	if m.deregistrationFailures, err = meter.Int64Counter(MetricDeregistrationFailures,
		metric.WithDescription("Per-agent deregistration failures"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricDeregistrationFailures, err)
	}
	if m.poolSize, err = meter.Int64Gauge(MetricPoolSize,
		metric.WithDescription("Registry agents that passed the liveness probe"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricPoolSize, err)
	}
	if m.requestTotal, err = meter.Int64Counter(MetricRequestTotal,
		metric.WithDescription("HTTP requests by route and status"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricRequestTotal, err)
	}
	if m.requestDuration, err = meter.Float64Histogram(MetricRequestDuration,
		metric.WithDescription("Duration of HTTP requests"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating %s: %w", MetricRequestDuration, err)
	}
	return &m, nil
}

// RecordDiscover records one discover call.
func (m *Metrics) RecordDiscover(ctx context.Context, service, strategy, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.discoverTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	))
	m.discoverDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("strategy", strategy),
	))
}

// RecordRegistration records one self-registration attempt.
func (m *Metrics) RecordRegistration(ctx context.Context, service, outcome string) {
	if m == nil {
		return
	}
	m.registrationTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", outcome),
	))
}

// RecordDeregistrationFailure records one agent failing to deregister.
func (m *Metrics) RecordDeregistrationFailure(ctx context.Context, agent string) {
	if m == nil {
		return
	}
	m.deregistrationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

// RecordPoolSize records the number of live agents after pool construction.
func (m *Metrics) RecordPoolSize(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.poolSize.Record(ctx, int64(size))
}

// RecordRequest records one served HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
	))
}
