package observability

import (
	"context"
	"errors"
	"fmt"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/kbukum/regkit/component"
	"github.com/kbukum/regkit/logger"
)

// Telemetry is the component that owns the OTLP tracer and meter providers.
type Telemetry struct {
	cfg     Config
	service string
	version string
	env     string
	log     *logger.Logger

	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

var _ component.Component = (*Telemetry)(nil)

// NewTelemetry creates the telemetry component.
func NewTelemetry(cfg Config, service, version, env string, log *logger.Logger) *Telemetry {
	cfg.ApplyDefaults()
	return &Telemetry{cfg: cfg, service: service, version: version, env: env, log: log.WithComponent("telemetry")}
}

// Name returns the component name.
func (t *Telemetry) Name() string { return "telemetry" }

// Start installs the exporters when telemetry is enabled.
func (t *Telemetry) Start(ctx context.Context) error {
	if !t.cfg.Enabled {
		t.log.Debug("telemetry disabled")
		return nil
	}

	tp, err := InitTracer(ctx, TracerConfig{
		ServiceName: t.service, ServiceVersion: t.version, Environment: t.env,
		Endpoint: t.cfg.Endpoint, Insecure: t.cfg.Insecure, SampleRate: t.cfg.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	t.tp = tp

	mp, err := InitMeter(ctx, MeterConfig{
		ServiceName: t.service, ServiceVersion: t.version, Environment: t.env,
		Endpoint: t.cfg.Endpoint, Insecure: t.cfg.Insecure, Interval: t.cfg.MetricInterval,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("telemetry: %w", err), tp.Shutdown(ctx))
	}
	t.mp = mp

	t.log.Info("telemetry exporting", logger.Fields("endpoint", t.cfg.Endpoint, "sample_rate", t.cfg.SampleRate))
	return nil
}

// Stop flushes and shuts down the providers.
func (t *Telemetry) Stop(ctx context.Context) error {
	var errs []error
	if t.mp != nil {
		errs = append(errs, t.mp.Shutdown(ctx))
	}
	if t.tp != nil {
		errs = append(errs, t.tp.Shutdown(ctx))
	}
	t.tp, t.mp = nil, nil
	return errors.Join(errs...)
}

// Health reports whether exporters are running.
func (t *Telemetry) Health(ctx context.Context) component.Health {
	h := component.Health{Name: t.Name(), Status: component.StatusHealthy}
	if !t.cfg.Enabled {
		h.Message = "disabled"
	}
	return h
}
