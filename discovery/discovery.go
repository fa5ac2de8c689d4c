package discovery

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/kbukum/consulkit/errors"
)

// Sentinel errors. They match any AppError with the same code, so
// errors.Is(err, ErrServiceNotFound) holds for every registry backend.
var (
	ErrMissingAddress      = errors.MissingAddress()
	ErrServiceNotFound     = errors.New(errors.ErrCodeNotFound, "service not found", http.StatusNotFound)
	ErrRegistryUnreachable = errors.New(errors.ErrCodeRegistryUnreachable, "registry unreachable", http.StatusServiceUnavailable)
	ErrBadResponse         = errors.New(errors.ErrCodeBadResponse, "unexpected registry response", http.StatusBadGateway)
)

// HealthStatus represents instance health as reported by the registry.
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "unknown"
	HealthHealthy   HealthStatus = "healthy"
	HealthUnhealthy HealthStatus = "unhealthy"
)

// ServiceInstance is one registered endpoint of a service. Instances are
// owned by the registry; callers only read them.
type ServiceInstance struct {
	ID       string
	Name     string
	Address  string
	Port     int
	Tags     []string
	Metadata map[string]string
	Health   HealthStatus
}

// HostPort returns the instance address in host:port form.
func (s ServiceInstance) HostPort() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Registrar submits and withdraws registrations.
type Registrar interface {
	// Register performs a single upsert of reg keyed by (Name, InstanceID).
	// It does not retry.
	Register(ctx context.Context, reg *Registration) error

	// Deregister removes the instance with the given ID.
	Deregister(ctx context.Context, instanceID string) error
}

// Resolver returns one healthy instance of a service.
type Resolver interface {
	// Lookup fails with ErrServiceNotFound when no healthy instance exists.
	Lookup(ctx context.Context, serviceName string) (ServiceInstance, error)
}

// Discoverer returns every healthy instance of a service.
type Discoverer interface {
	Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error)
}

// Watcher streams instance sets whenever membership changes. The channel is
// closed when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, serviceName string) (<-chan []ServiceInstance, error)
}

// Registry is a complete registry backend.
type Registry interface {
	Registrar
	Resolver
	Discoverer

	// Stats reports what this process has registered.
	Stats() RegistryStats

	// Close releases any resources held by the registry.
	Close() error
}

// RegistryStats holds registry metrics.
type RegistryStats struct {
	RegisteredServices int
	LastRegistration   time.Time
}

// ResolverFunc adapts a function to the Resolver interface.
type ResolverFunc func(ctx context.Context, serviceName string) (ServiceInstance, error)

// Lookup calls f.
func (f ResolverFunc) Lookup(ctx context.Context, serviceName string) (ServiceInstance, error) {
	return f(ctx, serviceName)
}
