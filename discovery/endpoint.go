package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint is the host and port of one registry agent, as configured.
type Endpoint struct {
	Host string `yaml:"host" mapstructure:"host" validate:"required"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gte=1,lte=65535"`
}

// Address returns "host:port", bracketing IPv6 hosts.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

func (e Endpoint) String() string { return e.Address() }

// UnmarshalText parses "host:port" so endpoints can be given as plain
// strings in config files and environment variables.
func (e *Endpoint) UnmarshalText(text []byte) error {
	host, port, err := net.SplitHostPort(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("endpoint %q: %w", text, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("endpoint %q: invalid port: %w", text, err)
	}
	e.Host, e.Port = host, p
	return nil
}
