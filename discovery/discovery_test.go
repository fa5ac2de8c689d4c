package discovery

import (
	"context"
	"sync"
	"time"
)

// fakeRegistry is an in-memory Registry that counts calls.
type fakeRegistry struct {
	mu            sync.Mutex
	instances     map[string][]ServiceInstance
	registered    []*Registration
	deregistered  []string
	registerErr   error
	deregisterErr error
	lookupErr     error
	pingErr       error
	lookups       int
	discovers     int
	closed        bool
}

func newFakeRegistry(instances ...ServiceInstance) *fakeRegistry {
	f := &fakeRegistry{instances: make(map[string][]ServiceInstance)}
	for _, inst := range instances {
		f.instances[inst.Name] = append(f.instances[inst.Name], inst)
	}
	return f
}

func (f *fakeRegistry) Register(_ context.Context, reg *Registration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = append(f.registered, reg)
	return nil
}

func (f *fakeRegistry) Deregister(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, id)
	return f.deregisterErr
}

func (f *fakeRegistry) Lookup(ctx context.Context, name string) (ServiceInstance, error) {
	f.mu.Lock()
	f.lookups++
	f.mu.Unlock()
	list, err := f.list(ctx, name)
	if err != nil {
		return ServiceInstance{}, err
	}
	return list[0], nil
}

func (f *fakeRegistry) Discover(ctx context.Context, name string) ([]ServiceInstance, error) {
	f.mu.Lock()
	f.discovers++
	f.mu.Unlock()
	return f.list(ctx, name)
}

func (f *fakeRegistry) list(ctx context.Context, name string) ([]ServiceInstance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	list := f.instances[name]
	if len(list) == 0 {
		return nil, ErrServiceNotFound
	}
	return append([]ServiceInstance(nil), list...), nil
}

func (f *fakeRegistry) Ping(context.Context) error { return f.pingErr }

func (f *fakeRegistry) Stats() RegistryStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return RegistryStats{RegisteredServices: len(f.registered), LastRegistration: time.Now()}
}

func (f *fakeRegistry) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRegistry) counts() (lookups, discovers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups, f.discovers
}

var _ Registry = (*fakeRegistry)(nil)
