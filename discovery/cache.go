package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/kbukum/consulkit/observability"
)

// DefaultCacheSize bounds the number of cached service names.
const DefaultCacheSize = 1024

// CachingResolver remembers lookup results for a fixed time. When the
// wrapped resolver is also a Discoverer, the full instance list is cached
// and each Lookup still picks an instance through the selector, so load
// balancing keeps working on cached data. Failed lookups are never cached.
type CachingResolver struct {
	next       Resolver
	discoverer Discoverer
	selector   Selector
	cache      *otter.Cache[string, []ServiceInstance]
	metrics    *observability.Metrics
}

// CacheOption configures a CachingResolver.
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	size     int
	strategy Strategy
	metrics  *observability.Metrics
}

// WithCacheSize bounds the number of cached service names.
func WithCacheSize(n int) CacheOption {
	return func(o *cacheOptions) { o.size = n }
}

// WithCacheStrategy sets how cached instance lists are balanced.
func WithCacheStrategy(s Strategy) CacheOption {
	return func(o *cacheOptions) { o.strategy = s }
}

// WithCacheMetrics records hits and misses.
func WithCacheMetrics(m *observability.Metrics) CacheOption {
	return func(o *cacheOptions) { o.metrics = m }
}

// NewCachingResolver wraps r with a cache of the given TTL. A ttl <= 0
// returns r unchanged: every call re-resolves.
func NewCachingResolver(r Resolver, ttl time.Duration, opts ...CacheOption) (Resolver, error) {
	if ttl <= 0 {
		return r, nil
	}
	o := cacheOptions{size: DefaultCacheSize, strategy: StrategyRoundRobin}
	for _, opt := range opts {
		opt(&o)
	}
	if o.size <= 0 {
		o.size = DefaultCacheSize
	}

	cache, err := otter.New(&otter.Options[string, []ServiceInstance]{
		MaximumSize:      o.size,
		ExpiryCalculator: otter.ExpiryWriting[string, []ServiceInstance](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("build resolver cache: %w", err)
	}

	cr := &CachingResolver{
		next:     r,
		selector: NewSelector(o.strategy),
		cache:    cache,
		metrics:  o.metrics,
	}
	if d, ok := r.(Discoverer); ok {
		cr.discoverer = d
	}
	return cr, nil
}

// NewResolverFromOptions wraps r the way the options ask for: cached for
// opts.CacheTTL and balanced by opts.Strategy. A zero CacheTTL returns r as
// is. metrics may be nil.
func NewResolverFromOptions(r Resolver, opts Options, metrics *observability.Metrics) (Resolver, error) {
	return NewCachingResolver(r, opts.CacheTTL,
		WithCacheStrategy(opts.Strategy),
		WithCacheMetrics(metrics),
	)
}

// Lookup returns a cached instance when fresh, otherwise resolves and caches.
func (c *CachingResolver) Lookup(ctx context.Context, serviceName string) (ServiceInstance, error) {
	instances, err := c.Discover(ctx, serviceName)
	if err != nil {
		return ServiceInstance{}, err
	}
	return c.selector.Select(serviceName, instances), nil
}

// Discover returns the cached instance list when fresh. Without an
// underlying Discoverer the list holds the single looked-up instance.
func (c *CachingResolver) Discover(ctx context.Context, serviceName string) ([]ServiceInstance, error) {
	if instances, ok := c.cache.GetIfPresent(serviceName); ok {
		c.metrics.RecordCacheLookup(ctx, serviceName, true)
		return instances, nil
	}
	c.metrics.RecordCacheLookup(ctx, serviceName, false)

	var instances []ServiceInstance
	if c.discoverer != nil {
		found, err := c.discoverer.Discover(ctx, serviceName)
		if err != nil {
			return nil, err
		}
		instances = found
	} else {
		inst, err := c.next.Lookup(ctx, serviceName)
		if err != nil {
			return nil, err
		}
		instances = []ServiceInstance{inst}
	}
	if len(instances) == 0 {
		return nil, ErrServiceNotFound
	}

	c.cache.Set(serviceName, instances)
	return instances, nil
}

// Invalidate drops the cached entry for serviceName.
func (c *CachingResolver) Invalidate(serviceName string) {
	c.cache.Invalidate(serviceName)
}

// InvalidateAll empties the cache.
func (c *CachingResolver) InvalidateAll() {
	c.cache.InvalidateAll()
}
