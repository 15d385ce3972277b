package governance

import (
	"strconv"
	"sync"
	"time"

	"github.com/chmicro/chmicro/core/http"
	"github.com/chmicro/chmicro/core/logging"
	"github.com/chmicro/chmicro/core/status"
	"github.com/chmicro/chmicro/resilience"
)

// CallerOptions configure a Caller.
type CallerOptions struct {
	// Timeout bounds each individual GET.
	Timeout time.Duration
	Retry   resilience.RetryOptions
	Breaker resilience.CircuitBreakerOptions
}

// Caller threads one logical GET through discovery, round-robin selection,
// a per-endpoint circuit breaker, and the retry policy. Transport failures
// and 5xx responses count against the endpoint's breaker.
type Caller struct {
	discovery Discovery
	lb        *RoundRobinLoadBalancer
	retry     *resilience.RetryPolicy
	opts      CallerOptions

	mu       sync.Mutex
	breakers map[Endpoint]*resilience.CircuitBreaker

	// get is swapped in tests.
	get func(host, port, target string, timeout time.Duration) (http.ClientResponse, error)
}

// NewCaller creates a caller over the given discovery source.
func NewCaller(discovery Discovery, opts CallerOptions) *Caller {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	return &Caller{
		discovery: discovery,
		lb:        NewRoundRobinLoadBalancer(),
		retry:     resilience.NewRetryPolicy(opts.Retry),
		opts:      opts,
		breakers:  make(map[Endpoint]*resilience.CircuitBreaker),
		get:       http.Get,
	}
}

func (c *Caller) breaker(ep Endpoint) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.breakers[ep]
	if !ok {
		b = resilience.NewCircuitBreaker(c.opts.Breaker)
		c.breakers[ep] = b
	}
	return b
}

// Get performs a GET against one endpoint of the named service, retrying
// per the policy. Endpoints whose breaker rejects the probe are skipped for
// that attempt. The last error is returned when every attempt fails.
func (c *Caller) Get(service, target string) (http.ClientResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= c.retry.MaxAttempts(); attempt++ {
		if d := c.retry.BackoffBeforeAttempt(attempt); d > 0 {
			time.Sleep(d)
		}

		endpoints, err := c.discovery.Resolve(service)
		if err != nil {
			return http.ClientResponse{}, err
		}
		ep, err := c.lb.Pick(service, endpoints)
		if err != nil {
			return http.ClientResponse{}, err
		}

		b := c.breaker(ep)
		if !b.AllowRequest() {
			lastErr = status.Errorf(status.Unavailable, "circuit open for %s", ep)
			continue
		}

		resp, err := c.get(ep.Host, strconv.Itoa(ep.Port), target, c.opts.Timeout)
		if err != nil {
			b.OnFailure()
			lastErr = err
			logging.Debug("caller: attempt failed", "service", service,
				"endpoint", ep.String(), "attempt", attempt, "error", err)
			continue
		}
		if resp.Status >= 500 {
			b.OnFailure()
			lastErr = status.Errorf(status.Unavailable, "%s returned %d", ep, resp.Status)
			continue
		}

		b.OnSuccess()
		return resp, nil
	}

	if lastErr == nil {
		lastErr = status.New(status.Unavailable, "no attempt succeeded")
	}
	return http.ClientResponse{}, lastErr
}
