package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/regkit/component"
	"github.com/kbukum/regkit/logger"
	"github.com/kbukum/regkit/observability"
)

// Component builds the agent pool and Client at Start, registers this
// process when configured to, and deregisters at Stop.
type Component struct {
	cfg     Config
	dial    Dialer
	log     *logger.Logger
	metrics *observability.Metrics
	opts    []Option
	localIP func() (string, error)

	mu      sync.RWMutex
	client  *Client
	started bool
	regErr  error
}

// ComponentOption configures a Component.
type ComponentOption func(*Component)

// WithClientOptions passes opts through to the Client built at Start.
func WithClientOptions(opts ...Option) ComponentOption {
	return func(c *Component) { c.opts = append(c.opts, opts...) }
}

// WithComponentMetrics records pool size and client metrics on m.
func WithComponentMetrics(m *observability.Metrics) ComponentOption {
	return func(c *Component) {
		c.metrics = m
		c.opts = append(c.opts, WithMetrics(m))
	}
}

// WithLocalIP overrides how the advertised address is resolved.
func WithLocalIP(fn func() (string, error)) ComponentOption {
	return func(c *Component) { c.localIP = fn }
}

// NewComponent creates a discovery Component for use with the component registry.
func NewComponent(cfg Config, dial Dialer, log *logger.Logger, opts ...ComponentOption) *Component {
	if log == nil {
		log = logger.Nop()
	}
	c := &Component{
		cfg:  cfg,
		dial: dial,
		log:  log.WithComponent("discovery"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ensure Component satisfies component.Component.
var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "discovery" }

// Client returns the discovery Client, or nil before Start or when disabled.
func (c *Component) Client() *Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client
}

// Start builds the agent pool and registers the local service. An empty
// pool aborts startup; a failed registration is logged and leaves the
// component degraded.
func (c *Component) Start(ctx context.Context) error {
	c.cfg.ApplyDefaults()

	if !c.cfg.Enabled {
		c.log.Info("discovery disabled")
		c.mu.Lock()
		c.started = true
		c.mu.Unlock()
		return nil
	}

	if err := c.cfg.Validate(); err != nil {
		return fmt.Errorf("discovery config: %w", err)
	}
	if c.dial == nil {
		return fmt.Errorf("discovery: no dialer configured")
	}

	pool, err := NewPool(ctx, c.cfg.Targets, c.dial, c.cfg.ProbeTimeout, c.log)
	if err != nil {
		return fmt.Errorf("discovery start: %w", err)
	}
	c.metrics.RecordPoolSize(ctx, pool.Len())

	client := NewClient(pool, c.cfg.ClientConfig(), c.log, c.opts...)

	c.mu.Lock()
	c.client = client
	c.started = true
	c.mu.Unlock()

	c.log.Info("discovery component started", logger.Fields(
		logger.FieldPoolSize, pool.Len(),
		"agents", pool.Addresses(),
	))

	if c.cfg.Service.Enabled {
		c.setRegErr(c.register(ctx, client))
	}
	return nil
}

func (c *Component) register(ctx context.Context, client *Client) error {
	reg, err := c.cfg.Service.BuildRegistration(c.localIP)
	if err != nil {
		c.log.Error("cannot build service registration", logger.ErrorFields("register", err))
		return err
	}
	if err := client.Register(ctx, reg); err != nil {
		c.log.Warn("continuing without registration", logger.Fields(
			logger.FieldServiceID, reg.ServiceID,
			logger.FieldError, err.Error(),
		))
		return err
	}
	return nil
}

func (c *Component) setRegErr(err error) {
	c.mu.Lock()
	c.regErr = err
	c.mu.Unlock()
}

// Stop deregisters the local service from every agent. Per-agent failures
// are logged by the client and never fail shutdown.
func (c *Component) Stop(ctx context.Context) error {
	client := c.Client()
	if client == nil {
		return nil
	}
	c.log.Info("discovery component stopping")
	report := client.Deregister(ctx)
	if err := report.Err(); err != nil {
		c.log.Warn("deregistration incomplete", logger.Fields(
			logger.FieldServiceID, report.ServiceID,
			"failed", len(report.Failed()),
			"succeeded", report.Succeeded(),
		))
	}
	return nil
}

// Health returns the current health status of the discovery component.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch {
	case !c.started:
		return component.Health{Name: c.Name(), Status: component.StatusUnhealthy, Message: "discovery not initialized"}
	case !c.cfg.Enabled:
		return component.Health{Name: c.Name(), Status: component.StatusHealthy, Message: "disabled"}
	case c.regErr != nil:
		return component.Health{Name: c.Name(), Status: component.StatusDegraded, Message: "registration failed: " + c.regErr.Error()}
	default:
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusHealthy,
			Message: fmt.Sprintf("%d agents, %s", c.client.Pool().Len(), c.client.State()),
		}
	}
}
