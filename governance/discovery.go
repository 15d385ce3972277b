// Package governance provides service discovery, load balancing, and a
// resilient HTTP caller that composes them with the retry and circuit
// breaker primitives.
package governance

import (
	"net"
	"strconv"

	"github.com/chmicro/chmicro/core/status"
)

// Endpoint is one addressable backend instance.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Discovery resolves a service name to its current endpoints.
type Discovery interface {
	// Resolve returns the endpoint list for a service, or a not_found
	// error for unknown services.
	Resolve(service string) ([]Endpoint, error)
}

// InMemoryDiscovery is a plain service→endpoints table. Mutation requires
// external synchronization relative to lookups; the intended use is to
// populate the table during startup and read it afterwards.
type InMemoryDiscovery struct {
	table map[string][]Endpoint
}

// NewInMemoryDiscovery creates an empty table.
func NewInMemoryDiscovery() *InMemoryDiscovery {
	return &InMemoryDiscovery{table: make(map[string][]Endpoint)}
}

// Set replaces the endpoint list for a service.
func (d *InMemoryDiscovery) Set(service string, endpoints []Endpoint) {
	d.table[service] = endpoints
}

// Resolve implements Discovery.
func (d *InMemoryDiscovery) Resolve(service string) ([]Endpoint, error) {
	eps, ok := d.table[service]
	if !ok {
		return nil, status.New(status.NotFound, "service not found")
	}
	return eps, nil
}
