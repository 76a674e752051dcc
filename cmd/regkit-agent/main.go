// Command regkit-agent runs a service that registers itself with a cluster
// of Consul agents and answers discovery lookups over HTTP.
//
// With -discover it performs one lookup, prints "host:port" and exits:
//
//	regkit-agent -discover billing -tag blue -strategy round_robin
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/kbukum/regkit/bootstrap"
	"github.com/kbukum/regkit/component"
	"github.com/kbukum/regkit/config"
	"github.com/kbukum/regkit/discovery"
	"github.com/kbukum/regkit/discovery/consul"
	"github.com/kbukum/regkit/logger"
	"github.com/kbukum/regkit/observability"
	"github.com/kbukum/regkit/server"
	"github.com/kbukum/regkit/version"
)

const serviceName = "regkit-agent"

func main() {
	var (
		configFile = flag.String("config", "", "path to config.yml (searched when empty)")
		envFile    = flag.String("env", "", "path to .env (searched when empty)")
		lookup     = flag.String("discover", "", "discover one instance of this service and exit")
		tag        = flag.String("tag", "", "tag filter for -discover")
		strategy   = flag.String("strategy", "", "selection strategy for -discover")
	)
	flag.Parse()

	if err := run(context.Background(), loaderOptions(*configFile, *envFile), *lookup, *tag, *strategy); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loaderOptions(configFile, envFile string) []config.LoaderOption {
	var opts []config.LoaderOption
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	return opts
}

func run(ctx context.Context, opts []config.LoaderOption, lookup, tag, strategy string) error {
	var cfg AgentConfig
	if err := config.LoadConfig(serviceName, &cfg, opts...); err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = serviceName
	}

	// A one-shot lookup must not register the process.
	if lookup != "" {
		cfg.Discovery.Service.Enabled = false
	}

	app, err := bootstrap.NewApp(&cfg)
	if err != nil {
		return err
	}
	app.Logger.Info("regkit-agent build", version.Get().Fields())

	disc, err := wire(app, lookup == "")
	if err != nil {
		return err
	}

	if lookup == "" {
		return app.Run(ctx)
	}
	return app.RunTask(ctx, func(ctx context.Context) error {
		s := cfg.Discovery.DefaultStrategy
		if strategy != "" {
			parsed, err := discovery.ParseStrategy(strategy)
			if err != nil {
				return err
			}
			s = parsed
		}
		client := disc.Client()
		if client == nil {
			return fmt.Errorf("discovery is disabled")
		}
		addr, err := client.Discover(ctx, lookup, tag, s)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	})
}

// wire registers telemetry, the HTTP server and discovery, in that order,
// so the health endpoint answers before the registration's check starts
// polling it and deregistration happens before the server goes away. The
// server is left out when serve is false.
func wire(app *bootstrap.App[*AgentConfig], serve bool) (*discovery.Component, error) {
	cfg := app.Cfg
	log := app.Logger

	metrics, err := observability.NewMetrics(observability.Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	dial, err := consul.NewDialer(cfg.Consul)
	if err != nil {
		return nil, err
	}
	disc := discovery.NewComponent(cfg.Discovery, dial, log, discovery.WithComponentMetrics(metrics))

	components := []component.Component{
		observability.NewTelemetry(cfg.Observability, cfg.Name, version.Get().Short(), cfg.Environment, log),
	}
	if serve {
		srv := server.New(cfg.Server, log)
		srv.ApplyDefaults(cfg.Name, app.Components.HealthAll, metrics)
		srv.GinEngine().GET("/v1/discover/:service", discoverHandler(disc.Client, cfg.Discovery.DefaultStrategy))
		components = append(components, server.NewComponent(srv))
	}
	components = append(components, disc)

	for _, c := range components {
		if err := app.RegisterComponent(c); err != nil {
			return nil, err
		}
	}

	log.Debug("components wired", logger.Fields("targets", len(cfg.Discovery.Targets), "discovery", cfg.Discovery.Enabled))
	return disc, nil
}
