package discovery

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	apperrors "github.com/kbukum/regkit/errors"
	"github.com/kbukum/regkit/logger"
)

// DefaultProbeTimeout bounds each agent's dial and liveness probe.
const DefaultProbeTimeout = 3 * time.Second

// Pool is the set of agents that passed their liveness probe at startup.
// It is immutable after NewPool and safe for concurrent use.
type Pool struct {
	agents []Agent
	intn   func(n int) int
}

// NewPool dials and probes every endpoint concurrently, each bounded by
// probeTimeout. Agents that fail either step are logged and left out; the
// survivors keep their configured order. When none survive NewPool returns a
// REGISTRY_UNAVAILABLE error, which callers treat as fatal.
func NewPool(ctx context.Context, endpoints []Endpoint, dial Dialer, probeTimeout time.Duration, log *logger.Logger) (*Pool, error) {
	if log == nil {
		log = logger.Nop()
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}

	admitted := make([]Agent, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func() {
			defer wg.Done()
			admitted[i] = probe(ctx, ep, dial, probeTimeout, log)
		}()
	}
	wg.Wait()

	agents := make([]Agent, 0, len(endpoints))
	for _, a := range admitted {
		if a != nil {
			agents = append(agents, a)
		}
	}

	if len(agents) == 0 {
		log.Error("no registry agent reachable", logger.Fields("configured", len(endpoints)))
		return nil, apperrors.RegistryUnavailable(len(endpoints))
	}

	log.Info("registry agent pool ready", logger.Fields(logger.FieldPoolSize, len(agents), "configured", len(endpoints)))
	return &Pool{agents: agents, intn: rand.IntN}, nil
}

func probe(ctx context.Context, ep Endpoint, dial Dialer, timeout time.Duration, log *logger.Logger) Agent {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	agent, err := dial(ctx, ep)
	if err != nil {
		log.Warn("registry agent dial failed", logger.Fields(logger.FieldAgent, ep.Address(), logger.FieldError, err.Error()))
		return nil
	}
	info, err := agent.Self(ctx)
	if err != nil {
		log.Warn("registry agent liveness probe failed", logger.Fields(logger.FieldAgent, ep.Address(), logger.FieldError, err.Error()))
		return nil
	}

	log.Debug("registry agent admitted", logger.Fields(
		logger.FieldAgent, agent.Address(),
		"node", info.NodeName,
		"datacenter", info.Datacenter,
	))
	return agent
}

// PickOne returns an agent chosen uniformly at random, or nil for an empty pool.
func (p *Pool) PickOne() Agent {
	if p == nil || len(p.agents) == 0 {
		return nil
	}
	return p.agents[p.intn(len(p.agents))]
}

// All returns the agents in configured order.
func (p *Pool) All() []Agent {
	if p == nil {
		return nil
	}
	out := make([]Agent, len(p.agents))
	copy(out, p.agents)
	return out
}

// Len returns the number of agents.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.agents)
}

// Addresses lists agent addresses in configured order.
func (p *Pool) Addresses() []string {
	out := make([]string, 0, p.Len())
	for _, a := range p.All() {
		out = append(out, a.Address())
	}
	return out
}
