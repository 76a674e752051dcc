package discovery

import (
	"errors"
	"time"
)

// Registration is this process's own service identity as registered with the
// registry cluster.
type Registration struct {
	ServiceName string            `json:"service_name" validate:"required"`
	ServiceID   string            `json:"service_id" validate:"required"`
	Address     string            `json:"address" validate:"required"`
	Port        int               `json:"port" validate:"gte=1,lte=65535"`
	Tags        []string          `json:"tags,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
	Check       HealthCheck       `json:"check"`
}

// HealthCheck is the HTTP check the registry agents poll on our behalf.
// An empty HTTP URL registers the service without a check.
type HealthCheck struct {
	HTTP                    string        `json:"http,omitempty" validate:"omitempty,url"`
	Interval                time.Duration `json:"interval,omitempty"`
	Timeout                 time.Duration `json:"timeout,omitempty"`
	DeregisterCriticalAfter time.Duration `json:"deregister_critical_after,omitempty"`
}

// RegistrationState is where the client is in its register/deregister cycle.
type RegistrationState int

const (
	StateUnregistered RegistrationState = iota
	StateRegistered
)

func (s RegistrationState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	default:
		return "unknown"
	}
}

// AgentResult is the outcome of deregistering on one agent.
type AgentResult struct {
	Agent string
	Err   error
}

// DeregisterReport collects one AgentResult per pool member, in pool order.
type DeregisterReport struct {
	ServiceID string
	Results   []AgentResult
}

// Failed returns the results that carry an error.
func (r DeregisterReport) Failed() []AgentResult {
	var out []AgentResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Succeeded returns the number of agents that acknowledged the deregistration.
func (r DeregisterReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

// Err joins every per-agent error, or returns nil when all agents succeeded.
func (r DeregisterReport) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}
