package discovery

import (
	"math/rand/v2"
	"sync"
)

// Strategy selects one instance among the healthy ones.
type Strategy string

const (
	StrategyRoundRobin Strategy = "round_robin"
	StrategyRandom     Strategy = "random"
)

// Selector picks one instance from a non-empty slice.
type Selector interface {
	Select(serviceName string, instances []ServiceInstance) ServiceInstance
}

// NewSelector returns the selector for s. Unknown or empty strategies use
// round robin.
func NewSelector(s Strategy) Selector {
	if s == StrategyRandom {
		return randomSelector{}
	}
	return &roundRobinSelector{next: make(map[string]int)}
}

// roundRobinSelector keeps one cursor per service name. The cursor map is
// the only shared mutable state on the lookup path.
type roundRobinSelector struct {
	mu   sync.Mutex
	next map[string]int
}

func (r *roundRobinSelector) Select(serviceName string, instances []ServiceInstance) ServiceInstance {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.next[serviceName] % len(instances)
	r.next[serviceName] = idx + 1
	return instances[idx]
}

type randomSelector struct{}

func (randomSelector) Select(_ string, instances []ServiceInstance) ServiceInstance {
	return instances[rand.IntN(len(instances))]
}

// FilterHealthy drops instances the registry reported as unhealthy.
// Instances with unknown health are kept.
func FilterHealthy(instances []ServiceInstance) []ServiceInstance {
	out := make([]ServiceInstance, 0, len(instances))
	for _, inst := range instances {
		if inst.Health != HealthUnhealthy {
			out = append(out, inst)
		}
	}
	return out
}
