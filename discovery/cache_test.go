package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/kbukum/consulkit/observability"
)

func TestCachingResolverZeroTTLPassesThrough(t *testing.T) {
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.1", Port: 80})
	r, err := NewCachingResolver(reg, 0)
	if err != nil {
		t.Fatalf("NewCachingResolver: %v", err)
	}
	if r != Resolver(reg) {
		t.Fatal("expected the resolver to be returned unchanged")
	}
}

func TestCachingResolverCachesDiscover(t *testing.T) {
	reg := newFakeRegistry(
		ServiceInstance{ID: "a", Name: "billing", Address: "10.0.0.1", Port: 80},
		ServiceInstance{ID: "b", Name: "billing", Address: "10.0.0.2", Port: 80},
	)
	r, err := NewCachingResolver(reg, time.Minute)
	if err != nil {
		t.Fatalf("NewCachingResolver: %v", err)
	}

	ctx := context.Background()
	seen := map[string]bool{}
	for i := 0; i < 4; i++ {
		inst, err := r.Lookup(ctx, "billing")
		if err != nil {
			t.Fatalf("Lookup: %v", err)
		}
		seen[inst.ID] = true
	}

	lookups, discovers := reg.counts()
	if discovers != 1 || lookups != 0 {
		t.Errorf("registry hit %d discovers / %d lookups, want 1 / 0", discovers, lookups)
	}
	if !seen["a"] || !seen["b"] {
		t.Errorf("cached lookups were not balanced: %v", seen)
	}
}

func TestCachingResolverExpires(t *testing.T) {
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.1", Port: 80})
	r, err := NewCachingResolver(reg, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCachingResolver: %v", err)
	}

	ctx := context.Background()
	if _, err := r.Lookup(ctx, "billing"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1100 * time.Millisecond)
	if _, err := r.Lookup(ctx, "billing"); err != nil {
		t.Fatal(err)
	}
	if _, discovers := reg.counts(); discovers != 2 {
		t.Errorf("discovers = %d, want 2 after expiry", discovers)
	}
}

func TestCachingResolverDoesNotCacheErrors(t *testing.T) {
	reg := newFakeRegistry()
	r, _ := NewCachingResolver(reg, time.Minute)
	ctx := context.Background()

	if _, err := r.Lookup(ctx, "billing"); !errors.Is(err, ErrServiceNotFound) {
		t.Fatalf("expected ErrServiceNotFound, got %v", err)
	}

	reg.mu.Lock()
	reg.instances["billing"] = []ServiceInstance{{Name: "billing", Address: "10.0.0.1", Port: 80}}
	reg.mu.Unlock()

	if _, err := r.Lookup(ctx, "billing"); err != nil {
		t.Fatalf("lookup after registration failed: %v", err)
	}
}

func TestCachingResolverInvalidate(t *testing.T) {
	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.1", Port: 80})
	r, _ := NewCachingResolver(reg, time.Minute)
	cr := r.(*CachingResolver)
	ctx := context.Background()

	_, _ = cr.Lookup(ctx, "billing")
	cr.Invalidate("billing")
	_, _ = cr.Lookup(ctx, "billing")

	if _, discovers := reg.counts(); discovers != 2 {
		t.Errorf("discovers = %d, want 2 after invalidate", discovers)
	}
}

func TestCachingResolverWrapsPlainResolver(t *testing.T) {
	calls := 0
	plain := ResolverFunc(func(ctx context.Context, name string) (ServiceInstance, error) {
		calls++
		return ServiceInstance{Name: name, Address: "10.0.0.9", Port: 80}, nil
	})
	r, err := NewCachingResolver(plain, time.Minute, WithCacheSize(10), WithCacheStrategy(StrategyRandom))
	if err != nil {
		t.Fatalf("NewCachingResolver: %v", err)
	}
	for i := 0; i < 3; i++ {
		inst, err := r.Lookup(context.Background(), "billing")
		if err != nil || inst.Address != "10.0.0.9" {
			t.Fatalf("Lookup = %+v, %v", inst, err)
		}
	}
	if calls != 1 {
		t.Errorf("plain resolver called %d times, want 1", calls)
	}
}

func TestNewResolverFromOptions(t *testing.T) {
	tests := []struct {
		name          string
		ttl           time.Duration
		wantDiscovers int
		wantLookups   int
	}{
		{name: "positive ttl caches", ttl: time.Minute, wantDiscovers: 1},
		{name: "zero ttl re-resolves", ttl: 0, wantLookups: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.1", Port: 80})
			opts := Options{Enabled: true, CacheTTL: tt.ttl, Strategy: StrategyRandom}

			r, err := NewResolverFromOptions(reg, opts, nil)
			if err != nil {
				t.Fatalf("NewResolverFromOptions: %v", err)
			}
			for i := 0; i < 3; i++ {
				if _, err := r.Lookup(context.Background(), "billing"); err != nil {
					t.Fatalf("Lookup: %v", err)
				}
			}

			lookups, discovers := reg.counts()
			if lookups != tt.wantLookups || discovers != tt.wantDiscovers {
				t.Errorf("registry hit %d lookups / %d discovers, want %d / %d",
					lookups, discovers, tt.wantLookups, tt.wantDiscovers)
			}
		})
	}
}

func TestCachingResolverRecordsHitsAndMisses(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics, err := observability.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	reg := newFakeRegistry(ServiceInstance{Name: "billing", Address: "10.0.0.1", Port: 80})
	r, err := NewResolverFromOptions(reg, Options{CacheTTL: time.Minute}, metrics)
	if err != nil {
		t.Fatalf("NewResolverFromOptions: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := r.Lookup(ctx, "billing"); err != nil {
			t.Fatal(err)
		}
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "discovery.cache.lookups" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				result, _ := dp.Attributes.Value("result")
				got[result.AsString()] += dp.Value
			}
		}
	}
	if got["miss"] != 1 || got["hit"] != 2 {
		t.Errorf("cache lookups = %v, want 1 miss and 2 hits", got)
	}
}
