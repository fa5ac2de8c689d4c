// Package static provides an in-memory discovery.Registry for local
// development and tests.
package static

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/consulkit/discovery"
)

// Endpoint is a pre-configured service instance.
type Endpoint struct {
	Name     string            `yaml:"name" mapstructure:"name"`
	Address  string            `yaml:"address" mapstructure:"address"`
	Port     int               `yaml:"port" mapstructure:"port"`
	Tags     []string          `yaml:"tags" mapstructure:"tags"`
	Metadata map[string]string `yaml:"metadata" mapstructure:"metadata"`
	// Unhealthy hides the endpoint from Lookup and Discover.
	Unhealthy bool `yaml:"unhealthy" mapstructure:"unhealthy"`
}

// Provider keeps instances in memory, keyed by service name.
type Provider struct {
	mu        sync.RWMutex
	instances map[string][]discovery.ServiceInstance
	selector  discovery.Selector
	stats     discovery.RegistryStats
	watchers  map[string][]chan []discovery.ServiceInstance
}

// NewProvider creates a Provider pre-populated with endpoints.
func NewProvider(strategy discovery.Strategy, endpoints ...Endpoint) *Provider {
	p := &Provider{
		instances: make(map[string][]discovery.ServiceInstance),
		selector:  discovery.NewSelector(strategy),
		watchers:  make(map[string][]chan []discovery.ServiceInstance),
	}
	for _, ep := range endpoints {
		inst := discovery.ServiceInstance{
			ID:       fmt.Sprintf("%s-%s-%d", ep.Name, ep.Address, ep.Port),
			Name:     ep.Name,
			Address:  ep.Address,
			Port:     ep.Port,
			Tags:     ep.Tags,
			Metadata: ep.Metadata,
			Health:   discovery.HealthHealthy,
		}
		if ep.Unhealthy {
			inst.Health = discovery.HealthUnhealthy
		}
		p.instances[ep.Name] = append(p.instances[ep.Name], inst)
	}
	return p
}

// Register upserts the instance keyed by (Name, InstanceID).
func (p *Provider) Register(ctx context.Context, reg *discovery.Registration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if reg == nil || reg.Name == "" || reg.InstanceID == "" {
		return fmt.Errorf("static register: name and instance id are required")
	}

	inst := discovery.ServiceInstance{
		ID:      reg.InstanceID,
		Name:    reg.Name,
		Address: reg.Address,
		Port:    reg.Port,
		Tags:    append([]string(nil), reg.Tags...),
		Health:  discovery.HealthHealthy,
	}

	p.mu.Lock()
	list := p.instances[reg.Name]
	replaced := false
	for i := range list {
		if list[i].ID == reg.InstanceID {
			list[i] = inst
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, inst)
		p.stats.RegisteredServices++
	}
	p.instances[reg.Name] = list
	p.stats.LastRegistration = time.Now()
	p.notifyLocked(reg.Name)
	p.mu.Unlock()
	return nil
}

// Deregister removes the instance with the given ID. Unknown IDs are not
// an error.
func (p *Provider) Deregister(ctx context.Context, instanceID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	for name, list := range p.instances {
		for i, inst := range list {
			if inst.ID != instanceID {
				continue
			}
			p.instances[name] = append(list[:i:i], list[i+1:]...)
			if p.stats.RegisteredServices > 0 {
				p.stats.RegisteredServices--
			}
			p.notifyLocked(name)
			return nil
		}
	}
	return nil
}

// Discover returns the healthy instances of serviceName.
func (p *Provider) Discover(ctx context.Context, serviceName string) ([]discovery.ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	healthy := discovery.FilterHealthy(p.instances[serviceName])
	p.mu.RUnlock()

	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: %s", discovery.ErrServiceNotFound, serviceName)
	}
	return healthy, nil
}

// Lookup returns one healthy instance of serviceName.
func (p *Provider) Lookup(ctx context.Context, serviceName string) (discovery.ServiceInstance, error) {
	instances, err := p.Discover(ctx, serviceName)
	if err != nil {
		return discovery.ServiceInstance{}, err
	}
	return p.selector.Select(serviceName, instances), nil
}

// Watch emits the healthy instance set of serviceName on every change.
// The channel is closed when ctx is done.
func (p *Provider) Watch(ctx context.Context, serviceName string) (<-chan []discovery.ServiceInstance, error) {
	ch := make(chan []discovery.ServiceInstance, 1)

	p.mu.Lock()
	p.watchers[serviceName] = append(p.watchers[serviceName], ch)
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		list := p.watchers[serviceName]
		for i, w := range list {
			if w == ch {
				p.watchers[serviceName] = append(list[:i:i], list[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch, nil
}

// notifyLocked publishes the current set to watchers without blocking. A
// watcher that has not drained its last update gets the newer set instead.
func (p *Provider) notifyLocked(serviceName string) {
	snapshot := discovery.FilterHealthy(p.instances[serviceName])
	for _, ch := range p.watchers[serviceName] {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Stats reports the registrations made through this provider.
func (p *Provider) Stats() discovery.RegistryStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

var (
	_ discovery.Registry = (*Provider)(nil)
	_ discovery.Watcher  = (*Provider)(nil)
)
