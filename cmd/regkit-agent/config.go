package main

import (
	"fmt"

	"github.com/kbukum/regkit/config"
	"github.com/kbukum/regkit/discovery"
	"github.com/kbukum/regkit/discovery/consul"
	"github.com/kbukum/regkit/observability"
	"github.com/kbukum/regkit/server"
	"github.com/kbukum/regkit/version"
)

// AgentConfig is the full configuration of regkit-agent.
type AgentConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Discovery     discovery.Config     `yaml:"discovery" mapstructure:"discovery"`
	Consul        consul.Config        `yaml:"consul" mapstructure:"consul"`
}

// ApplyDefaults fills every section. The registration inherits the HTTP
// port and the binary version unless configured explicitly.
func (c *AgentConfig) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()

	svc := &c.Discovery.Service
	if svc.Name == "" {
		svc.Name = c.Name
	}
	if svc.Port == 0 {
		svc.Port = c.Server.Port
	}
	if _, ok := svc.Meta[version.MetaKey]; !ok {
		if svc.Meta == nil {
			svc.Meta = map[string]string{}
		}
		svc.Meta[version.MetaKey] = version.Get().Short()
	}
	c.Discovery.ApplyDefaults()

	c.Consul = c.Consul.Inherit(c.Discovery)
	c.Consul.ApplyDefaults()
}

// Validate checks every section; the consul section only matters when
// discovery is enabled.
func (c *AgentConfig) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Observability.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if c.Discovery.Enabled {
		if err := c.Consul.Validate(); err != nil {
			return fmt.Errorf("consul: %w", err)
		}
	}
	return nil
}
