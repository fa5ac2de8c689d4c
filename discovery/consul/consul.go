// Package consul implements discovery.Registry on the Consul agent and
// health HTTP APIs.
package consul

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/consul/api"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/consulkit/discovery"
	apperrors "github.com/kbukum/consulkit/errors"
	"github.com/kbukum/consulkit/logger"
	"github.com/kbukum/consulkit/observability"
)

const registryName = "consul"

// Provider implements discovery.Registry using HashiCorp Consul.
type Provider struct {
	client    *api.Client
	transport *http.Transport
	cfg       Config
	selector  discovery.Selector
	log       *logger.Logger
	metrics   *observability.Metrics

	mu         sync.RWMutex
	registered map[string]struct{}
	lastReg    time.Time
}

// NewProvider creates a Provider. metrics may be nil.
func NewProvider(cfg Config, log *logger.Logger, metrics *observability.Metrics) (*Provider, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}

	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	if cfg.Scheme != "" {
		apiCfg.Scheme = cfg.Scheme
	}
	if cfg.Datacenter != "" {
		apiCfg.Datacenter = cfg.Datacenter
	}
	if cfg.Token != "" {
		apiCfg.Token = cfg.Token
	}
	apiCfg.Namespace = cfg.Namespace
	apiCfg.Partition = cfg.Partition
	apiCfg.WaitTime = cfg.WaitTime

	if t := apiCfg.Transport; t != nil {
		t.MaxIdleConns = cfg.Pool.MaxIdleConns
		t.MaxIdleConnsPerHost = cfg.Pool.MaxIdleConnsPerHost
		t.IdleConnTimeout = cfg.Pool.IdleConnTimeout
	}
	if cfg.TLS != nil {
		apiCfg.TLSConfig = api.TLSConfig{
			Address:            cfg.TLS.ServerName,
			CAFile:             cfg.TLS.CACert,
			CAPath:             cfg.TLS.CAPath,
			CertFile:           cfg.TLS.ClientCert,
			KeyFile:            cfg.TLS.ClientKey,
			InsecureSkipVerify: cfg.TLS.InsecureSkipVerify,
		}
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}

	return &Provider{
		client:     client,
		transport:  apiCfg.Transport,
		cfg:        cfg,
		selector:   discovery.NewSelector(cfg.Strategy),
		log:        log.WithComponent("consul"),
		metrics:    metrics,
		registered: make(map[string]struct{}),
	}, nil
}

// Register submits reg to the local agent in a single call. Consul treats
// it as an upsert keyed by the instance ID. The call is not retried.
func (p *Provider) Register(ctx context.Context, reg *discovery.Registration) (err error) {
	ctx, op := observability.StartOperation(ctx, p.metrics, registryName, "register",
		attribute.String(observability.AttrServiceName, reg.Name),
		attribute.String(observability.AttrServiceID, reg.InstanceID),
	)
	defer func() { op.End(ctx, err) }()

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	opts := api.ServiceRegisterOpts{}.WithContext(callCtx)
	if err = p.client.Agent().ServiceRegisterOpts(agentRegistration(reg), opts); err != nil {
		err = p.mapError(ctx, err)
		p.log.Error("Failed to register service", logger.ErrorFields("register", err),
			logger.Fields(logger.FieldServiceID, reg.InstanceID))
		return err
	}

	p.mu.Lock()
	p.registered[reg.InstanceID] = struct{}{}
	p.lastReg = time.Now()
	p.mu.Unlock()

	p.log.Debug("Service registered with consul", logger.Fields(
		logger.FieldServiceID, reg.InstanceID,
		"address", reg.Address,
		"port", reg.Port,
	))
	return nil
}

// Deregister removes an instance from the local agent.
func (p *Provider) Deregister(ctx context.Context, instanceID string) (err error) {
	ctx, op := observability.StartOperation(ctx, p.metrics, registryName, "deregister",
		attribute.String(observability.AttrServiceID, instanceID),
	)
	defer func() { op.End(ctx, err) }()

	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	q := (&api.QueryOptions{}).WithContext(callCtx)
	if err = p.client.Agent().ServiceDeregisterOpts(instanceID, q); err != nil {
		return p.mapError(ctx, err)
	}

	p.mu.Lock()
	delete(p.registered, instanceID)
	p.mu.Unlock()
	return nil
}

// Discover returns every instance of serviceName whose checks pass.
func (p *Provider) Discover(ctx context.Context, serviceName string) (instances []discovery.ServiceInstance, err error) {
	ctx, op := observability.StartOperation(ctx, p.metrics, registryName, "discover",
		attribute.String(observability.AttrTarget, serviceName),
	)
	defer func() { op.End(ctx, err) }()

	return p.healthyInstances(ctx, serviceName)
}

// Lookup returns one passing instance of serviceName, chosen by the
// configured strategy.
func (p *Provider) Lookup(ctx context.Context, serviceName string) (inst discovery.ServiceInstance, err error) {
	ctx, op := observability.StartOperation(ctx, p.metrics, registryName, "lookup",
		attribute.String(observability.AttrTarget, serviceName),
	)
	defer func() { op.End(ctx, err) }()

	instances, err := p.healthyInstances(ctx, serviceName)
	if err != nil {
		return discovery.ServiceInstance{}, err
	}
	inst = p.selector.Select(serviceName, instances)
	observability.SetSpanAttribute(ctx, observability.AttrServiceID, inst.ID)
	return inst, nil
}

func (p *Provider) healthyInstances(ctx context.Context, serviceName string) ([]discovery.ServiceInstance, error) {
	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	q := (&api.QueryOptions{}).WithContext(callCtx)
	entries, _, err := p.client.Health().Service(serviceName, "", true, q)
	if err != nil {
		return nil, p.mapError(ctx, err)
	}
	if len(entries) == 0 {
		return nil, apperrors.ServiceNotFound(serviceName)
	}

	instances := make([]discovery.ServiceInstance, 0, len(entries))
	for _, e := range entries {
		instances = append(instances, serviceEntryToInstance(e))
	}
	return instances, nil
}

// Watch emits the passing instances of serviceName whenever membership
// changes, using Consul blocking queries. The channel is closed when ctx
// is done.
func (p *Provider) Watch(ctx context.Context, serviceName string) (<-chan []discovery.ServiceInstance, error) {
	ch := make(chan []discovery.ServiceInstance, 1)

	go func() {
		defer close(ch)
		var lastIndex uint64
		for {
			if ctx.Err() != nil {
				return
			}

			q := (&api.QueryOptions{WaitIndex: lastIndex, WaitTime: p.cfg.WaitTime}).WithContext(ctx)
			entries, meta, err := p.client.Health().Service(serviceName, "", true, q)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				p.log.Warn("Consul watch error", logger.ErrorFields("watch", err),
					logger.Fields(logger.FieldTarget, serviceName))
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
				continue
			}

			if meta.LastIndex == lastIndex {
				continue
			}
			// A reset index must not be reused, or the next query returns
			// immediately forever.
			if meta.LastIndex < lastIndex {
				lastIndex = 0
			} else {
				lastIndex = meta.LastIndex
			}

			instances := make([]discovery.ServiceInstance, 0, len(entries))
			for _, e := range entries {
				instances = append(instances, serviceEntryToInstance(e))
			}

			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Ping checks that the agent answers and knows a cluster leader.
func (p *Provider) Ping(ctx context.Context) error {
	callCtx, cancel := p.withTimeout(ctx)
	defer cancel()

	q := (&api.QueryOptions{}).WithContext(callCtx)
	leader, err := p.client.Status().LeaderWithQueryOptions(q)
	if err != nil {
		return p.mapError(ctx, err)
	}
	if leader == "" {
		return apperrors.RegistryUnreachable(registryName, errors.New("no cluster leader"))
	}
	return nil
}

// Stats reports the instances this provider has registered.
func (p *Provider) Stats() discovery.RegistryStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return discovery.RegistryStats{
		RegisteredServices: len(p.registered),
		LastRegistration:   p.lastReg,
	}
}

// Close releases idle connections to the agent.
func (p *Provider) Close() error {
	if p.transport != nil {
		p.transport.CloseIdleConnections()
	}
	return nil
}

func (p *Provider) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.RequestTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.cfg.RequestTimeout)
}

// mapError turns a client error into the registry error taxonomy. A
// cancelled caller context is returned as is so callers can tell it apart
// from an unreachable agent.
func (p *Provider) mapError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var se api.StatusError
	if errors.As(err, &se) {
		return apperrors.BadResponse(registryName, se.Code, err)
	}
	return apperrors.RegistryUnreachable(registryName, err)
}

func agentRegistration(reg *discovery.Registration) *api.AgentServiceRegistration {
	out := &api.AgentServiceRegistration{
		ID:      reg.InstanceID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    reg.Tags,
	}
	if reg.Check != nil {
		out.Check = &api.AgentServiceCheck{
			HTTP:                           reg.Check.HTTP,
			Interval:                       reg.Check.Interval.String(),
			DeregisterCriticalServiceAfter: reg.Check.DeregisterCriticalServiceAfter.String(),
		}
	}
	return out
}

func serviceEntryToInstance(e *api.ServiceEntry) discovery.ServiceInstance {
	health := discovery.HealthHealthy
	for _, chk := range e.Checks {
		if chk.Status != api.HealthPassing {
			health = discovery.HealthUnhealthy
			break
		}
	}

	inst := discovery.ServiceInstance{Health: health}
	if e.Service != nil {
		inst.ID = e.Service.ID
		inst.Name = e.Service.Service
		inst.Address = e.Service.Address
		inst.Port = e.Service.Port
		inst.Tags = e.Service.Tags
		inst.Metadata = e.Service.Meta
	}
	if inst.Address == "" && e.Node != nil {
		inst.Address = e.Node.Address
	}
	return inst
}

var (
	_ discovery.Registry  = (*Provider)(nil)
	_ discovery.Watcher  = (*Provider)(nil)
	_ discovery.Pinger   = (*Provider)(nil)
)
