package governance

import (
	"sync"

	"github.com/chmicro/chmicro/core/status"
)

// RoundRobinLoadBalancer picks endpoints in rotation, keeping one cursor per
// service name. Cursors persist across calls, so successive picks for one
// service walk the list even as other services interleave.
type RoundRobinLoadBalancer struct {
	mu      sync.Mutex
	cursors map[string]uint64
}

// NewRoundRobinLoadBalancer creates a balancer with no cursors yet.
func NewRoundRobinLoadBalancer() *RoundRobinLoadBalancer {
	return &RoundRobinLoadBalancer{cursors: make(map[string]uint64)}
}

// Pick returns the next endpoint for the service, or an unavailable error
// when the list is empty.
func (lb *RoundRobinLoadBalancer) Pick(service string, endpoints []Endpoint) (Endpoint, error) {
	if len(endpoints) == 0 {
		return Endpoint{}, status.New(status.Unavailable, "no endpoints")
	}

	lb.mu.Lock()
	cur := lb.cursors[service]
	lb.cursors[service] = cur + 1
	lb.mu.Unlock()

	return endpoints[cur%uint64(len(endpoints))], nil
}
