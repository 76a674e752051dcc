// Package discovery finds healthy service instances through a cluster of
// registry agents and manages this process's own registration.
//
// # Architecture
//
//   - Pool: the agents that answered a liveness probe at startup. Every
//     operation picks one at random.
//   - Client: Discover/DiscoverInstance query one agent for passing
//     instances and pick one with a Strategy; Register and Deregister manage
//     the process's own Registration.
//   - Strategy: random, round-robin (per service name) or weighted.
//   - Component: adapts the Client to the component lifecycle.
//
// # Replication
//
// Register sends the registration to a single agent. Deregister sends the
// removal to every agent. This relies on the registry cluster replicating
// membership between agents, as Consul's gossip does. Against standalone
// agents that do not replicate, an instance is only visible to lookups
// answered by the agent it registered with.
//
// # Backends
//
//   - discovery/consul: Consul agents over HTTP
//   - discovery/memory: in-process agents for tests and local development
package discovery
