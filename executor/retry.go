package executor

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/taskmesh/taskmesh/types"
)

// RetryPolicy configures exponential backoff for transient step failures.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts after the first try.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration `yaml:"initial_delay" json:"initial_delay"`
	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// Multiplier grows the delay between attempts.
	Multiplier float64 `yaml:"multiplier" json:"multiplier"`
	// Jitter randomizes delays to avoid thundering herds.
	Jitter bool `yaml:"jitter" json:"jitter"`
}

// DefaultRetryPolicy returns the default backoff settings.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// sanitize fills zero or out-of-range fields with defaults.
func (p RetryPolicy) sanitize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = def.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = def.Multiplier
	}
	return p
}

// retryer retries retryable failures with exponential backoff. Delays go
// through the injected clock so tests stay deterministic.
type retryer struct {
	policy RetryPolicy
	clock  types.Clock
	logger *zap.Logger
	// onRetry is invoked before each retry sleep.
	onRetry func(attempt int, err error, delay time.Duration)
}

func newRetryer(policy RetryPolicy, clock types.Clock, logger *zap.Logger) *retryer {
	return &retryer{
		policy: policy.sanitize(),
		clock:  clock,
		logger: logger,
	}
}

// do runs fn, retrying while the returned error is retryable. Non-retryable
// errors and context cancellation stop immediately.
func (r *retryer) do(ctx context.Context, fn func() (string, error)) (string, int, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= r.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.delay(attempt)
			r.logger.Debug("retrying after failure",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", r.policy.MaxRetries),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if r.onRetry != nil {
				r.onRetry(attempt, lastErr, delay)
			}
			if err := r.clock.Sleep(ctx, delay); err != nil {
				return "", attempts, lastErr
			}
		}

		attempts++
		out, err := fn()
		if err == nil {
			return out, attempts, nil
		}
		lastErr = err
		if !types.IsRetryable(err) {
			break
		}
	}
	return "", attempts, lastErr
}

// delay computes the backoff delay for the given attempt (1-based).
func (r *retryer) delay(attempt int) time.Duration {
	d := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(attempt-1))
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	if r.policy.Jitter {
		// Uniform jitter in [0.5, 1.5) of the computed delay.
		d *= 0.5 + rand.Float64()
	}
	if d > float64(r.policy.MaxDelay) {
		d = float64(r.policy.MaxDelay)
	}
	return time.Duration(d)
}
