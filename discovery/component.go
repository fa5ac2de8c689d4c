package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/consulkit/component"
	"github.com/kbukum/consulkit/logger"
)

// Pinger is implemented by registries that can check their own
// reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Component registers this process on Start and deregisters it on Stop.
type Component struct {
	opts     Options
	identity ServiceIdentity
	registry Registry
	log      *logger.Logger

	mu         sync.RWMutex
	instanceID string
}

// NewComponent creates the registration component. opts is copied and
// zero values take their defaults.
func NewComponent(opts Options, identity ServiceIdentity, registry Registry, log *logger.Logger) *Component {
	if log == nil {
		log = logger.Nop()
	}
	opts.ApplyDefaults()
	return &Component{
		opts:     opts,
		identity: identity,
		registry: registry,
		log:      log.WithComponent("registration"),
	}
}

var _ component.Component = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "registration" }

// InstanceID returns the registered instance ID, or "" before Start and
// when registration is disabled.
func (c *Component) InstanceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.instanceID
}

// Registry returns the registry the component registers with.
func (c *Component) Registry() Registry { return c.registry }

// Start registers this process. Any failure aborts startup.
func (c *Component) Start(ctx context.Context) error {
	id, err := Use(ctx, c.opts, c.identity, c.registry, c.log)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.instanceID = id
	c.mu.Unlock()
	return nil
}

// Stop withdraws the registration and closes the registry. A failed
// deregistration is logged, not returned: the registry drops the instance
// anyway once its health check has been critical long enough.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	id := c.instanceID
	c.instanceID = ""
	c.mu.Unlock()

	if id != "" && c.registry != nil {
		if err := c.registry.Deregister(ctx, id); err != nil {
			c.log.Warn("Failed to deregister on stop", logger.ErrorFields("deregister", err),
				logger.Fields(logger.FieldServiceID, id))
		} else {
			c.log.Info("Service deregistered", logger.Fields(logger.FieldServiceID, id))
		}
	}

	if c.registry != nil {
		return c.registry.Close()
	}
	return nil
}

// Health reports the registration state. When the registry implements
// Pinger, an unreachable registry degrades the component.
func (c *Component) Health(ctx context.Context) component.Health {
	h := component.Health{Name: c.Name(), Status: component.StatusHealthy}

	if !c.opts.Enabled {
		h.Message = "registration disabled"
		return h
	}
	id := c.InstanceID()
	if id == "" {
		h.Status = component.StatusUnhealthy
		h.Message = "not registered"
		return h
	}
	if p, ok := c.registry.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			h.Status = component.StatusDegraded
			h.Message = fmt.Sprintf("registry unreachable: %v", err)
			return h
		}
	}
	h.Message = id
	return h
}

// Describe returns the startup summary line.
func (c *Component) Describe() component.Description {
	details := "disabled"
	if c.opts.Enabled {
		details = fmt.Sprintf("service=%s address=%s", c.identity.Name, c.opts.Address)
		if c.opts.PingEnabled {
			details += " check=" + c.opts.PingEndpoint
		}
	}
	return component.Description{
		Name:    "Registration",
		Type:    "registration",
		Details: details,
		Port:    c.opts.Port,
	}
}
