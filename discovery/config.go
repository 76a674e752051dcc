package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/regkit/validation"
)

// Config holds registry agent and self-registration configuration.
type Config struct {
	// Enabled controls whether the discovery component is active.
	Enabled bool `mapstructure:"enabled"`

	// Scheme is the URI scheme for the agents ("http" or "https").
	Scheme string `mapstructure:"scheme" validate:"oneof=http https"`

	// Token is the ACL token sent to every agent.
	Token string `mapstructure:"token"`

	// Datacenter scopes lookups and registrations; empty means the agent's own.
	Datacenter string `mapstructure:"datacenter"`

	// Targets lists the registry agents. Entries may be {host, port} maps or
	// "host:port" strings.
	Targets []Endpoint `mapstructure:"targets" validate:"required,min=1,dive"`

	// ProbeTimeout bounds each agent's liveness probe at startup.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	DiscoverTimeout   time.Duration `mapstructure:"discover_timeout"`
	RegisterTimeout   time.Duration `mapstructure:"register_timeout"`
	DeregisterTimeout time.Duration `mapstructure:"deregister_timeout"`

	// DiscoverAttempts is how many agents one discover may try.
	DiscoverAttempts int `mapstructure:"discover_attempts" validate:"gte=0"`

	// DefaultStrategy is used by callers that do not name one.
	DefaultStrategy Strategy `mapstructure:"default_strategy"`

	// Service describes this process's own registration.
	Service RegistrationConfig `mapstructure:"service"`
}

// RegistrationConfig describes how this process registers itself.
type RegistrationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Name    string `mapstructure:"name" validate:"required_if=Enabled true"`

	// ID defaults to "<name>_<address>".
	ID string `mapstructure:"id"`

	// Address defaults to the host's outbound IP.
	Address string `mapstructure:"address"`

	Port int               `mapstructure:"port" validate:"required_if=Enabled true,gte=0,lte=65535"`
	Tags []string          `mapstructure:"tags"`
	Meta map[string]string `mapstructure:"meta"`

	CheckPath     string        `mapstructure:"check_path" validate:"omitempty,startswith=/"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout"`

	// DeregisterAfter lets the agents drop the service after its check has
	// been critical this long. Zero disables it.
	DeregisterAfter time.Duration `mapstructure:"deregister_after"`
}

// ApplyDefaults fills zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Scheme == "" {
		c.Scheme = "http"
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = DefaultProbeTimeout
	}
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
	c.Service.applyDefaults()
}

func (r *RegistrationConfig) applyDefaults() {
	if r.CheckPath == "" {
		r.CheckPath = "/health"
	}
	if r.CheckInterval <= 0 {
		r.CheckInterval = 10 * time.Second
	}
	if r.CheckTimeout <= 0 {
		r.CheckTimeout = 5 * time.Second
	}
	if len(r.Tags) == 0 && r.Name != "" {
		r.Tags = []string{r.Name}
	}
}

// Validate checks that required fields are present and consistent.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.Validate(c); err != nil {
		return err
	}
	if !c.DefaultStrategy.Valid() {
		return fmt.Errorf("discovery.default_strategy: unknown strategy %s", c.DefaultStrategy)
	}
	return nil
}

// ClientConfig derives the Client's timeouts.
func (c *Config) ClientConfig() ClientConfig {
	return ClientConfig{
		DiscoverTimeout:   c.DiscoverTimeout,
		RegisterTimeout:   c.RegisterTimeout,
		DeregisterTimeout: c.DeregisterTimeout,
		DiscoverAttempts:  c.DiscoverAttempts,
	}
}

// BuildRegistration resolves the advertised address and service ID and
// returns the Registration to send. localIP resolves the address when none
// is configured; nil uses the host's outbound IP.
func (r RegistrationConfig) BuildRegistration(localIP func() (string, error)) (Registration, error) {
	r.applyDefaults()

	addr := r.Address
	if addr == "" {
		if localIP == nil {
			localIP = OutboundIP
		}
		ip, err := localIP()
		if err != nil {
			return Registration{}, fmt.Errorf("discovery: resolve local IP: %w", err)
		}
		addr = ip
	}

	id := r.ID
	if id == "" {
		if addr != "" {
			id = r.Name + "_" + addr
		} else {
			id = r.Name + "_" + uuid.NewString()
		}
	}

	check := HealthCheck{
		HTTP: (&url.URL{
			Scheme: "http",
			Host:   net.JoinHostPort(addr, strconv.Itoa(r.Port)),
			Path:   r.CheckPath,
		}).String(),
		Interval:                r.CheckInterval,
		Timeout:                 r.CheckTimeout,
		DeregisterCriticalAfter: r.DeregisterAfter,
	}

	return Registration{
		ServiceName: r.Name,
		ServiceID:   id,
		Address:     addr,
		Port:        r.Port,
		Tags:        r.Tags,
		Meta:        r.Meta,
		Check:       check,
	}, nil
}

// OutboundIP returns the local address the host would use to reach the
// internet. No packet is sent.
func OutboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
