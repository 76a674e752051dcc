// Package memory provides in-process registry agents. A Cluster hands out a
// discovery.Dialer, so the discovery Client can run against it unchanged in
// tests and local development. Faults, latency and outages can be injected
// per agent and per operation.
package memory

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/kbukum/regkit/discovery"
)

// Op names one agent operation.
type Op string

const (
	OpSelf       Op = "self"
	OpHealthy    Op = "healthy"
	OpRegister   Op = "register"
	OpDeregister Op = "deregister"
)

// ErrUnreachable is returned by every call to an agent that is down, and by
// the dialer for unknown addresses.
var ErrUnreachable = errors.New("memory: agent unreachable")

type entry struct {
	inst    discovery.ServiceInstance
	passing bool
}

type catalog struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func newCatalog() *catalog {
	return &catalog{entries: make(map[string]entry)}
}

func (c *catalog) put(inst discovery.ServiceInstance, passing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[inst.ID] = entry{inst: inst, passing: passing}
}

func (c *catalog) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

func (c *catalog) healthy(service, tag string) []discovery.ServiceInstance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []discovery.ServiceInstance
	for _, e := range c.entries {
		if e.inst.Service != service || !e.passing {
			continue
		}
		if tag != "" && !e.inst.HasTag(tag) {
			continue
		}
		out = append(out, e.inst)
	}
	slices.SortFunc(out, func(a, b discovery.ServiceInstance) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (c *catalog) get(id string) (discovery.ServiceInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e.inst, ok
}

// Cluster is a set of in-memory agents.
type Cluster struct {
	mu     sync.Mutex
	agents []*Agent
	shared *catalog
}

// ClusterOption configures a Cluster.
type ClusterOption func(*Cluster)

// Replicated makes every agent share one catalog, the way gossip-replicated
// agents converge. Without it each agent keeps its own catalog.
func Replicated() ClusterOption {
	return func(c *Cluster) { c.shared = newCatalog() }
}

// NewCluster creates a cluster with one agent per address.
func NewCluster(addrs []string, opts ...ClusterOption) *Cluster {
	c := &Cluster{}
	for _, opt := range opts {
		opt(c)
	}
	for _, addr := range addrs {
		c.AddAgent(addr)
	}
	return c
}

// AddAgent adds an agent listening on addr.
func (c *Cluster) AddAgent(addr string) *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	cat := c.shared
	if cat == nil {
		cat = newCatalog()
	}
	a := &Agent{
		addr:    addr,
		catalog: cat,
		faults:  make(map[Op]error),
		calls:   make(map[Op]int),
	}
	c.agents = append(c.agents, a)
	return a
}

// Agent returns the agent for addr, or nil.
func (c *Cluster) Agent(addr string) *Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.agents {
		if a.addr == addr {
			return a
		}
	}
	return nil
}

// Agents returns every agent in creation order.
func (c *Cluster) Agents() []*Agent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.agents)
}

// Endpoints returns an Endpoint per agent, for building a Pool.
func (c *Cluster) Endpoints() []discovery.Endpoint {
	var out []discovery.Endpoint
	for _, a := range c.Agents() {
		var ep discovery.Endpoint
		if err := ep.UnmarshalText([]byte(a.addr)); err != nil {
			panic(fmt.Sprintf("memory: agent address %q: %v", a.addr, err))
		}
		out = append(out, ep)
	}
	return out
}

// Put stores inst on every agent as passing or critical.
func (c *Cluster) Put(inst discovery.ServiceInstance, passing bool) {
	if c.shared != nil {
		c.shared.put(inst, passing)
		return
	}
	for _, a := range c.Agents() {
		a.Put(inst, passing)
	}
}

// Remove deletes an instance from every agent.
func (c *Cluster) Remove(id string) {
	if c.shared != nil {
		c.shared.remove(id)
		return
	}
	for _, a := range c.Agents() {
		a.Remove(id)
	}
}

// Dialer returns a discovery.Dialer that connects to agents of c by address.
func (c *Cluster) Dialer() discovery.Dialer {
	return func(ctx context.Context, ep discovery.Endpoint) (discovery.Agent, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := c.Agent(ep.Address())
		if a == nil {
			return nil, fmt.Errorf("dial %s: %w", ep.Address(), ErrUnreachable)
		}
		return a, nil
	}
}

// Agent is one in-memory registry agent. It implements discovery.Agent.
type Agent struct {
	addr    string
	catalog *catalog

	mu      sync.Mutex
	down    bool
	latency time.Duration
	faults  map[Op]error
	calls   map[Op]int
}

var _ discovery.Agent = (*Agent)(nil)

// Address returns the agent's address.
func (a *Agent) Address() string { return a.addr }

// SetDown makes every call fail with ErrUnreachable.
func (a *Agent) SetDown(down bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = down
}

// SetLatency delays every call by d, or until ctx is done.
func (a *Agent) SetLatency(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.latency = d
}

// Fail makes op return err until cleared with Fail(op, nil).
func (a *Agent) Fail(op Op, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err == nil {
		delete(a.faults, op)
		return
	}
	a.faults[op] = err
}

// Calls returns how many times op was invoked.
func (a *Agent) Calls(op Op) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// Put stores inst in this agent's catalog.
func (a *Agent) Put(inst discovery.ServiceInstance, passing bool) {
	a.catalog.put(inst, passing)
}

// Remove deletes an instance from this agent's catalog.
func (a *Agent) Remove(id string) { a.catalog.remove(id) }

// Lookup returns the instance stored under id, healthy or not.
func (a *Agent) Lookup(id string) (discovery.ServiceInstance, bool) {
	return a.catalog.get(id)
}

func (a *Agent) enter(ctx context.Context, op Op) error {
	a.mu.Lock()
	a.calls[op]++
	down, latency, fault := a.down, a.latency, a.faults[op]
	a.mu.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if down {
		return fmt.Errorf("%s %s: %w", op, a.addr, ErrUnreachable)
	}
	return fault
}

// Self is the liveness probe.
func (a *Agent) Self(ctx context.Context) (discovery.AgentInfo, error) {
	if err := a.enter(ctx, OpSelf); err != nil {
		return discovery.AgentInfo{}, err
	}
	return discovery.AgentInfo{NodeName: "memory-" + a.addr, Datacenter: "memory", Version: "memory"}, nil
}

// HealthyInstances returns the passing instances of service.
func (a *Agent) HealthyInstances(ctx context.Context, service, tag string) ([]discovery.ServiceInstance, error) {
	if err := a.enter(ctx, OpHealthy); err != nil {
		return nil, err
	}
	return a.catalog.healthy(service, tag), nil
}

// Register stores the registration as a passing instance. A "weight" meta
// value becomes the instance weight.
func (a *Agent) Register(ctx context.Context, reg discovery.Registration) error {
	if err := a.enter(ctx, OpRegister); err != nil {
		return err
	}
	inst := discovery.ServiceInstance{
		ID:      reg.ServiceID,
		Service: reg.ServiceName,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    slices.Clone(reg.Tags),
		Meta:    reg.Meta,
	}
	if w, err := strconv.ParseFloat(reg.Meta["weight"], 64); err == nil && w > 0 {
		inst.Weight = w
	}
	a.catalog.put(inst, true)
	return nil
}

// Deregister removes serviceID. Removing an unknown ID succeeds.
func (a *Agent) Deregister(ctx context.Context, serviceID string) error {
	if err := a.enter(ctx, OpDeregister); err != nil {
		return err
	}
	a.catalog.remove(serviceID)
	return nil
}
