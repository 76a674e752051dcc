// Package consul implements discovery.Agent on top of the Consul HTTP API.
// Each configured endpoint gets its own api.Client.
package consul

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/regkit/discovery"
	apperrors "github.com/kbukum/regkit/errors"
)

// Agent is a connection to one Consul agent.
type Agent struct {
	addr   string
	client *api.Client
	dc     string
}

var _ discovery.Agent = (*Agent)(nil)

// NewDialer returns a discovery.Dialer that opens one api.Client per
// endpoint using cfg.
func NewDialer(cfg Config) (discovery.Dialer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return func(ctx context.Context, ep discovery.Endpoint) (discovery.Agent, error) {
		return Dial(ep, cfg)
	}, nil
}

// Dial creates an Agent for ep. It does not contact the agent.
func Dial(ep discovery.Endpoint, cfg Config) (*Agent, error) {
	cfg.ApplyDefaults()

	apiCfg := api.DefaultConfig()
	apiCfg.Address = ep.Address()
	apiCfg.Scheme = cfg.Scheme
	apiCfg.Token = cfg.Token
	apiCfg.Datacenter = cfg.Datacenter

	if cfg.TLS != nil && cfg.TLS.Enabled {
		apiCfg.TLSConfig = api.TLSConfig{
			Address:            cfg.TLS.ServerName,
			CAFile:             cfg.TLS.CACert,
			CAPath:             cfg.TLS.CAPath,
			CertFile:           cfg.TLS.ClientCert,
			KeyFile:            cfg.TLS.ClientKey,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}

	if apiCfg.Transport != nil {
		apiCfg.Transport.MaxIdleConns = cfg.Pool.MaxIdleConns
		apiCfg.Transport.MaxIdleConnsPerHost = cfg.Pool.MaxIdleConnsPerHost
		apiCfg.Transport.MaxConnsPerHost = cfg.Pool.MaxConnsPerHost
		apiCfg.Transport.IdleConnTimeout = cfg.Pool.IdleConnTimeout
	}

	httpClient, err := api.NewHttpClient(apiCfg.Transport, apiCfg.TLSConfig)
	if err != nil {
		return nil, fmt.Errorf("consul http client %s: %w", ep.Address(), err)
	}
	httpClient.Timeout = cfg.RequestTimeout
	apiCfg.HttpClient = httpClient

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client %s: %w", ep.Address(), err)
	}
	return &Agent{addr: ep.Address(), client: client, dc: cfg.Datacenter}, nil
}

// Address returns the agent's "host:port".
func (a *Agent) Address() string { return a.addr }

// Self queries /v1/agent/self. The Consul client offers no context for this
// call, so ctx only bounds how long we wait; the request itself is capped by
// the HTTP client's timeout.
func (a *Agent) Self(ctx context.Context) (discovery.AgentInfo, error) {
	type result struct {
		self map[string]map[string]interface{}
		err  error
	}
	done := make(chan result, 1)
	go func() {
		self, err := a.client.Agent().Self()
		done <- result{self, err}
	}()

	select {
	case <-ctx.Done():
		return discovery.AgentInfo{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return discovery.AgentInfo{}, apperrors.ConnectionFailed(a.addr, r.err)
		}
		cfg := r.self["Config"]
		return discovery.AgentInfo{
			NodeName:   stringField(cfg, "NodeName"),
			Datacenter: stringField(cfg, "Datacenter"),
			Version:    stringField(cfg, "Version"),
		}, nil
	}
}

// HealthyInstances returns passing instances of service, optionally
// filtered by tag.
func (a *Agent) HealthyInstances(ctx context.Context, service, tag string) ([]discovery.ServiceInstance, error) {
	q := (&api.QueryOptions{Datacenter: a.dc}).WithContext(ctx)
	entries, _, err := a.client.Health().Service(service, tag, true, q)
	if err != nil {
		return nil, fmt.Errorf("consul health %q on %s: %w", service, a.addr, err)
	}

	instances := make([]discovery.ServiceInstance, 0, len(entries))
	for _, e := range entries {
		instances = append(instances, serviceEntryToInstance(e))
	}
	return instances, nil
}

// Register registers reg with this agent.
func (a *Agent) Register(ctx context.Context, reg discovery.Registration) error {
	opts := api.ServiceRegisterOpts{}.WithContext(ctx)
	if err := a.client.Agent().ServiceRegisterOpts(toAgentRegistration(reg), opts); err != nil {
		return fmt.Errorf("consul register %q on %s: %w", reg.ServiceID, a.addr, err)
	}
	return nil
}

// Deregister removes serviceID from this agent.
func (a *Agent) Deregister(ctx context.Context, serviceID string) error {
	q := (&api.QueryOptions{}).WithContext(ctx)
	if err := a.client.Agent().ServiceDeregisterOpts(serviceID, q); err != nil {
		return fmt.Errorf("consul deregister %q on %s: %w", serviceID, a.addr, err)
	}
	return nil
}

func toAgentRegistration(reg discovery.Registration) *api.AgentServiceRegistration {
	out := &api.AgentServiceRegistration{
		ID:      reg.ServiceID,
		Name:    reg.ServiceName,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
		Meta:    reg.Meta,
	}

	if w, ok := metaWeight(reg.Meta); ok && w >= 1 {
		out.Weights = &api.AgentWeights{Passing: int(w), Warning: 1}
	}

	if reg.Check.HTTP != "" {
		chk := &api.AgentServiceCheck{HTTP: reg.Check.HTTP}
		if reg.Check.Interval > 0 {
			chk.Interval = reg.Check.Interval.String()
		}
		if reg.Check.Timeout > 0 {
			chk.Timeout = reg.Check.Timeout.String()
		}
		if reg.Check.DeregisterCriticalAfter > 0 {
			chk.DeregisterCriticalServiceAfter = reg.Check.DeregisterCriticalAfter.String()
		}
		out.Check = chk
	}
	return out
}

func serviceEntryToInstance(e *api.ServiceEntry) discovery.ServiceInstance {
	svc := e.Service

	// Services registered without an address inherit the node's.
	addr := svc.Address
	if addr == "" && e.Node != nil {
		addr = e.Node.Address
	}

	weight := 1.0
	if w, ok := metaWeight(svc.Meta); ok {
		weight = w
	} else if svc.Weights.Passing > 0 {
		weight = float64(svc.Weights.Passing)
	}

	return discovery.ServiceInstance{
		ID:      svc.ID,
		Service: svc.Service,
		Address: addr,
		Port:    svc.Port,
		Weight:  weight,
		Tags:    svc.Tags,
		Meta:    svc.Meta,
	}
}

// metaWeight reads the "weight" meta key. Unparseable, non-finite and
// non-positive values are ignored; large ones are capped at
// discovery.MaxWeight.
func metaWeight(meta map[string]string) (float64, bool) {
	raw, ok := meta["weight"]
	if !ok {
		return 0, false
	}
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
		return 0, false
	}
	return min(w, discovery.MaxWeight), true
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
