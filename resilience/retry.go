package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// RetryOptions tune the backoff schedule. MaxAttempts below 1 is floored at
// 1; JitterRatio is clamped into [0, 1].
type RetryOptions struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	JitterRatio float64
}

// RetryPolicy computes the sleep to perform before each attempt of a
// retried operation.
type RetryPolicy struct {
	opts RetryOptions
}

// NewRetryPolicy creates a policy with normalized options.
func NewRetryPolicy(opts RetryOptions) *RetryPolicy {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.JitterRatio < 0 {
		opts.JitterRatio = 0
	}
	if opts.JitterRatio > 1 {
		opts.JitterRatio = 1
	}
	return &RetryPolicy{opts: opts}
}

// MaxAttempts returns the normalized attempt budget.
func (p *RetryPolicy) MaxAttempts() int { return p.opts.MaxAttempts }

// BackoffBeforeAttempt returns the sleep before the given 1-based attempt.
// The first attempt never waits. Later attempts wait base·2^(attempt−2)
// capped at the max, multiplied by 1 + U(−jitter, +jitter), clamped to
// [0, max].
func (p *RetryPolicy) BackoffBeforeAttempt(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	factor := math.Pow(2, float64(attempt-2))
	raw := time.Duration(float64(p.opts.BaseBackoff) * factor)
	if raw > p.opts.MaxBackoff || raw < 0 {
		raw = p.opts.MaxBackoff
	}

	jitter := 0.0
	if p.opts.JitterRatio > 0 {
		jitter = (rand.Float64()*2 - 1) * p.opts.JitterRatio
	}
	jittered := time.Duration(float64(raw) * (1 + jitter))
	if jittered < 0 {
		jittered = 0
	}
	if jittered > p.opts.MaxBackoff {
		jittered = p.opts.MaxBackoff
	}
	return jittered
}
