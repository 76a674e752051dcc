package discovery

import "context"

// AgentInfo is what an agent reports about itself on a liveness probe.
type AgentInfo struct {
	NodeName   string
	Datacenter string
	Version    string
}

// Agent is a connection to one registry agent. Implementations honour ctx
// cancellation and deadlines on every call.
type Agent interface {
	// Address identifies the agent in logs and reports ("host:port").
	Address() string

	// Self is the liveness probe.
	Self(ctx context.Context) (AgentInfo, error)

	// HealthyInstances returns the passing instances of service. A non-empty
	// tag restricts the result to instances carrying that tag.
	HealthyInstances(ctx context.Context, service, tag string) ([]ServiceInstance, error)

	// Register registers the service with this agent.
	Register(ctx context.Context, reg Registration) error

	// Deregister removes serviceID from this agent.
	Deregister(ctx context.Context, serviceID string) error
}

// Dialer opens an Agent for an endpoint. Dialing does not imply liveness;
// NewPool probes every dialed agent before admitting it.
type Dialer func(ctx context.Context, ep Endpoint) (Agent, error)
