// Command registrar runs a health endpoint and registers this process with
// Consul for as long as it runs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kbukum/consulkit/bootstrap"
	"github.com/kbukum/consulkit/config"
	"github.com/kbukum/consulkit/discovery"
	"github.com/kbukum/consulkit/discovery/consul"
	"github.com/kbukum/consulkit/discovery/static"
	"github.com/kbukum/consulkit/logger"
	"github.com/kbukum/consulkit/observability"
	"github.com/kbukum/consulkit/server"
	"github.com/kbukum/consulkit/server/endpoint"
)

const (
	serviceName = "registrar"
	metricsPath = "/metrics"
	lookupPath  = "/services/:name"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	var cfg Config
	if err := config.LoadConfig(serviceName, &cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	app, err := buildApp(ctx, &cfg)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}

// buildApp wires the server, the registry backend and the registration
// component into an App. The server is registered first so the health
// endpoint answers before the registry's first check. It also answers
// lookups through the registry on /services/{name}.
func buildApp(ctx context.Context, cfg *Config, opts ...bootstrap.Option) (*bootstrap.App[*Config], error) {
	app, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	log := app.Logger

	providers, err := observability.Setup(ctx, cfg.Observability, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	app.OnStop(providers.Shutdown)

	registry, err := newRegistry(cfg.Consul, log)
	if err != nil {
		return nil, err
	}

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware(cfg.Consul.Service, cfg.Consul.PingEndpoint, metricsPath)
	srv.RegisterHealth(cfg.Consul.PingEndpoint, cfg.Consul.Service, app.Health)
	srv.RegisterMetrics(metricsPath, providers.MetricsHandler)

	resolver, err := discovery.NewResolverFromOptions(registry, cfg.Consul, observability.DefaultMetrics())
	if err != nil {
		return nil, err
	}
	srv.GinEngine().GET(lookupPath, endpoint.Lookup(resolver))

	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, err
	}

	identity := discovery.NewServiceIdentity(cfg.Consul.Service)
	if err := app.RegisterComponent(discovery.NewComponent(cfg.Consul, identity, registry, log)); err != nil {
		return nil, err
	}
	return app, nil
}

// newRegistry picks the backend: Consul when registration is enabled, an
// in-process registry otherwise.
func newRegistry(opts discovery.Options, log *logger.Logger) (discovery.Registry, error) {
	if !opts.Enabled {
		return static.NewProvider(opts.Strategy), nil
	}
	cfg, err := consul.ConfigFromOptions(opts)
	if err != nil {
		return nil, err
	}
	p, err := consul.NewProvider(cfg, log, observability.DefaultMetrics())
	if err != nil {
		return nil, err
	}
	return p, nil
}
