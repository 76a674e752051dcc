package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/kbukum/regkit/errors"
	"github.com/kbukum/regkit/logger"
	"github.com/kbukum/regkit/observability"
	"github.com/kbukum/regkit/resilience"
	"github.com/kbukum/regkit/validation"
)

// Defaults for ClientConfig.
const (
	DefaultDiscoverTimeout   = 5 * time.Second
	DefaultRegisterTimeout   = 5 * time.Second
	DefaultDeregisterTimeout = 3 * time.Second
	DefaultDiscoverAttempts  = 2
	DefaultFailoverBackoff   = 50 * time.Millisecond
)

// Outcome labels recorded on discovery metrics.
const (
	outcomeOK              = "ok"
	outcomeNotFound        = "not_found"
	outcomeTimeout         = "timeout"
	outcomeError           = "error"
	outcomeUnknownStrategy = "unknown_strategy"
	outcomeUnavailable     = "unavailable"
)

// ClientConfig bounds the client's network operations.
type ClientConfig struct {
	DiscoverTimeout   time.Duration
	RegisterTimeout   time.Duration
	DeregisterTimeout time.Duration
	// DiscoverAttempts is how many agents a single discover may try when an
	// agent fails. Each attempt picks a fresh random agent.
	DiscoverAttempts int
	FailoverBackoff  time.Duration
}

// ApplyDefaults fills zero fields.
func (c *ClientConfig) ApplyDefaults() {
	if c.DiscoverTimeout <= 0 {
		c.DiscoverTimeout = DefaultDiscoverTimeout
	}
	if c.RegisterTimeout <= 0 {
		c.RegisterTimeout = DefaultRegisterTimeout
	}
	if c.DeregisterTimeout <= 0 {
		c.DeregisterTimeout = DefaultDeregisterTimeout
	}
	if c.DiscoverAttempts <= 0 {
		c.DiscoverAttempts = DefaultDiscoverAttempts
	}
	if c.FailoverBackoff <= 0 {
		c.FailoverBackoff = DefaultFailoverBackoff
	}
}

// Query describes one discovery request.
type Query struct {
	Service  string
	Tag      string
	Strategy Strategy
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records discovery and registration metrics on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer overrides the tracer used for client spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// Client discovers service instances through a pool of registry agents and
// manages this process's own registration.
//
// Registration goes to a single agent while deregistration goes to every
// agent in the pool. The registry cluster is expected to replicate
// membership between agents; with standalone agents, instances registered
// through one agent are invisible to lookups served by the others.
type Client struct {
	pool    *Pool
	cfg     ClientConfig
	log     *logger.Logger
	metrics *observability.Metrics
	tracer  trace.Tracer

	cursors  *cursorSet
	intn     func(int) int
	float64n func() float64

	mu           sync.Mutex
	registration *Registration
	state        RegistrationState
}

// NewClient builds a Client over pool.
func NewClient(pool *Pool, cfg ClientConfig, log *logger.Logger, opts ...Option) *Client {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	intn, float64n := defaultRand()
	c := &Client{
		pool:     pool,
		cfg:      cfg,
		log:      log.WithComponent("discovery"),
		tracer:   observability.Tracer(),
		cursors:  newCursorSet(),
		intn:     intn,
		float64n: float64n,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Pool returns the agent pool.
func (c *Client) Pool() *Pool { return c.pool }

// State reports the registration state.
func (c *Client) State() RegistrationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Registration returns the current identity, if one has been set.
func (c *Client) Registration() (Registration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registration == nil {
		return Registration{}, false
	}
	return *c.registration, true
}

// Discover returns "host:port" of one passing instance of service, chosen by
// strategy. An empty tag matches every instance.
func (c *Client) Discover(ctx context.Context, service, tag string, strategy Strategy) (string, error) {
	inst, err := c.DiscoverInstance(ctx, Query{Service: service, Tag: tag, Strategy: strategy})
	if err != nil {
		return "", err
	}
	return inst.HostPort(), nil
}

// DiscoverInstance is Discover returning the full instance.
//
// Errors carry NOT_FOUND when no passing instance matches, UNKNOWN_STRATEGY
// for an undefined strategy and TIMEOUT when the deadline expires before an
// agent answers.
func (c *Client) DiscoverInstance(ctx context.Context, q Query) (ServiceInstance, error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "discovery.Discover", trace.WithAttributes(
		observability.AttrService.String(q.Service),
		observability.AttrTag.String(q.Tag),
		observability.AttrStrategy.String(q.Strategy.String()),
	))
	defer span.End()

	inst, attempts, err := c.discover(ctx, q)
	span.SetAttributes(observability.AttrAttempts.Int(attempts))

	outcome := discoverOutcome(err)
	c.metrics.RecordDiscover(ctx, q.Service, q.Strategy.String(), outcome, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		fields := logger.Fields(
			logger.FieldService, q.Service,
			logger.FieldTag, q.Tag,
			logger.FieldStrategy, q.Strategy.String(),
			logger.FieldError, err.Error(),
		)
		if outcome == outcomeNotFound {
			c.log.Debug("no passing instance", fields)
		} else {
			c.log.Warn("discover failed", fields)
		}
		return ServiceInstance{}, err
	}

	span.SetAttributes(observability.AttrInstance.String(inst.HostPort()))
	return inst, nil
}

func (c *Client) discover(ctx context.Context, q Query) (ServiceInstance, int, error) {
	if !q.Strategy.Valid() {
		return ServiceInstance{}, 0, apperrors.UnknownStrategy(q.Strategy.String())
	}
	if q.Service == "" {
		return ServiceInstance{}, 0, apperrors.MissingField("service")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DiscoverTimeout)
	defer cancel()

	attempts := 0
	instances, err := resilience.Retry(ctx, resilience.RetryConfig{
		MaxAttempts:    c.cfg.DiscoverAttempts,
		InitialBackoff: c.cfg.FailoverBackoff,
		MaxBackoff:     c.cfg.FailoverBackoff * 4,
		RetryIf: func(err error) bool {
			return apperrors.HasCode(err, apperrors.ErrCodeExternalService)
		},
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			c.log.Debug("retrying discover on another agent", logger.Fields(
				logger.FieldService, q.Service,
				"attempt", attempt,
				logger.FieldError, err.Error(),
			))
		},
	}, func(attempt int) ([]ServiceInstance, error) {
		attempts = attempt
		agent := c.pool.PickOne()
		if agent == nil {
			return nil, apperrors.RegistryUnavailable(0)
		}
		found, err := agent.HealthyInstances(ctx, q.Service, q.Tag)
		if err != nil {
			return nil, agentError(ctx, "discover", agent, err)
		}
		return found, nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !apperrors.IsAppError(err) {
			err = apperrors.Timeout("discover").WithCause(err)
		}
		return ServiceInstance{}, attempts, err
	}

	if len(instances) == 0 {
		nf := apperrors.NotFound("service", q.Service)
		if q.Tag != "" {
			nf = nf.WithDetail("tag", q.Tag)
		}
		return ServiceInstance{}, attempts, nf
	}

	return c.pick(q, instances), attempts, nil
}

func (c *Client) pick(q Query, instances []ServiceInstance) ServiceInstance {
	switch q.Strategy {
	case StrategyRandom:
		return selectRandom(instances, c.intn)
	case StrategyRoundRobin:
		return c.cursors.next(cursorKey(q.Service, q.Tag), instances)
	case StrategyWeighted:
		return selectWeighted(instances, c.float64n)
	default:
		panic("discovery: unhandled strategy " + q.Strategy.String())
	}
}

// Register registers reg with one agent picked from the pool. Any stale
// registration under the same ID is first removed from every agent. On
// failure the identity is still remembered so that Deregister cleans up
// after a partially applied registration.
func (c *Client) Register(ctx context.Context, reg Registration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := validation.Validate(reg); err != nil {
		return err
	}
	if c.state == StateRegistered {
		return apperrors.InvalidInput("registration", "already registered as "+c.registration.ServiceID+", deregister first")
	}

	ctx, span := c.tracer.Start(ctx, "discovery.Register", trace.WithAttributes(
		observability.AttrService.String(reg.ServiceName),
		observability.AttrServiceID.String(reg.ServiceID),
	))
	defer span.End()

	identity := reg
	c.registration = &identity

	for _, res := range c.deregisterAll(ctx, reg.ServiceID) {
		if res.Err != nil {
			c.log.Debug("pre-registration cleanup failed", logger.Fields(
				logger.FieldServiceID, reg.ServiceID,
				logger.FieldAgent, res.Agent,
				logger.FieldError, res.Err.Error(),
			))
		}
	}

	agent := c.pool.PickOne()
	if agent == nil {
		err := apperrors.RegistrationFailed(reg.ServiceName, apperrors.RegistryUnavailable(0))
		c.failRegistration(ctx, span, reg, err)
		return err
	}
	span.SetAttributes(observability.AttrAgent.String(agent.Address()))

	rctx, cancel := context.WithTimeout(ctx, c.cfg.RegisterTimeout)
	defer cancel()
	if err := agent.Register(rctx, reg); err != nil {
		wrapped := apperrors.RegistrationFailed(reg.ServiceName, agentError(rctx, "register", agent, err)).
			WithDetail("agent", agent.Address())
		c.failRegistration(ctx, span, reg, wrapped)
		return wrapped
	}

	c.state = StateRegistered
	c.metrics.RecordRegistration(ctx, reg.ServiceName, outcomeOK)
	c.log.Info("service registered", logger.Fields(
		logger.FieldService, reg.ServiceName,
		logger.FieldServiceID, reg.ServiceID,
		logger.FieldAgent, agent.Address(),
		"address", reg.Address,
		"port", reg.Port,
	))
	return nil
}

func (c *Client) failRegistration(ctx context.Context, span trace.Span, reg Registration, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "registration failed")
	c.metrics.RecordRegistration(ctx, reg.ServiceName, outcomeError)
	c.log.Error("service registration failed", logger.Fields(
		logger.FieldService, reg.ServiceName,
		logger.FieldServiceID, reg.ServiceID,
		logger.FieldError, err.Error(),
	))
}

// Deregister removes this process's registration from every agent in the
// pool. One agent failing never stops the others. The identity is cleared
// regardless of the outcome; the returned report says which agents failed.
func (c *Client) Deregister(ctx context.Context) DeregisterReport {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.registration == nil {
		return DeregisterReport{}
	}
	id := c.registration.ServiceID

	ctx, span := c.tracer.Start(ctx, "discovery.Deregister", trace.WithAttributes(
		observability.AttrServiceID.String(id),
	))
	defer span.End()

	report := DeregisterReport{ServiceID: id, Results: c.deregisterAll(ctx, id)}
	c.registration = nil
	c.state = StateUnregistered

	for _, res := range report.Failed() {
		c.metrics.RecordDeregistrationFailure(ctx, res.Agent)
		c.log.Warn("agent deregistration failed", logger.Fields(
			logger.FieldServiceID, id,
			logger.FieldAgent, res.Agent,
			logger.FieldError, res.Err.Error(),
		))
	}
	if failed := len(report.Failed()); failed > 0 {
		span.SetStatus(codes.Error, "partial deregistration")
		span.SetAttributes(attribute.Int("registry.failed_agents", failed))
	}
	c.log.Info("service deregistered", logger.Fields(
		logger.FieldServiceID, id,
		"succeeded", report.Succeeded(),
		"failed", len(report.Failed()),
	))
	return report
}

// deregisterAll fans id out to every agent concurrently, each call bounded
// by DeregisterTimeout. Results are in pool order.
func (c *Client) deregisterAll(ctx context.Context, id string) []AgentResult {
	agents := c.pool.All()
	results := make([]AgentResult, len(agents))

	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, c.cfg.DeregisterTimeout)
			defer cancel()

			res := AgentResult{Agent: agent.Address()}
			if err := agent.Deregister(dctx, id); err != nil {
				res.Err = apperrors.DeregistrationFailed(id, agent.Address(), agentError(dctx, "deregister", agent, err))
			}
			results[i] = res
		}()
	}
	wg.Wait()
	return results
}

// agentError classifies an error from one agent call.
func agentError(ctx context.Context, op string, agent Agent, err error) error {
	if _, ok := apperrors.AsAppError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.Timeout(op).WithDetail("agent", agent.Address()).WithCause(err)
	case errors.Is(err, context.Canceled):
		return err
	default:
		return apperrors.ExternalServiceError("registry agent", err).WithDetail("agent", agent.Address())
	}
}

func discoverOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case IsNotFound(err):
		return outcomeNotFound
	case IsTimeout(err):
		return outcomeTimeout
	case IsUnknownStrategy(err):
		return outcomeUnknownStrategy
	case IsRegistryUnavailable(err):
		return outcomeUnavailable
	default:
		return outcomeError
	}
}

// IsNotFound reports whether err means no passing instance matched.
func IsNotFound(err error) bool { return apperrors.HasCode(err, apperrors.ErrCodeNotFound) }

// IsTimeout reports whether err is a registry timeout.
func IsTimeout(err error) bool { return apperrors.HasCode(err, apperrors.ErrCodeTimeout) }

// IsUnknownStrategy reports whether err is an undefined strategy.
func IsUnknownStrategy(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeUnknownStrategy)
}

// IsRegistryUnavailable reports whether err means no agent is reachable.
func IsRegistryUnavailable(err error) bool {
	return apperrors.HasCode(err, apperrors.ErrCodeRegistryUnavailable)
}
