// Package gate bounds the number of simultaneously in-flight agent calls
// across all tasks, providing backpressure against the upstream LLM
// provider. Callers beyond the limit queue rather than being rejected.
package gate

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ErrClosed is returned when the gate has been shut down.
var ErrClosed = errors.New("gate is closed")

// Config configures the call gate.
type Config struct {
	// MaxInFlight is the global cap on concurrent calls. Zero or negative
	// falls back to the default.
	MaxInFlight int `yaml:"max_in_flight" json:"max_in_flight"`

	// CallsPerSecond rate-limits call starts. Zero disables rate limiting.
	CallsPerSecond float64 `yaml:"calls_per_second" json:"calls_per_second"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxInFlight: 8}
}

// Gate is a semaphore plus optional rate limiter in front of the provider.
type Gate struct {
	slots   chan struct{}
	limiter *rate.Limiter
	closed  atomic.Bool

	// Stats
	started   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New creates a call gate.
func New(cfg Config) *Gate {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}
	g := &Gate{
		slots: make(chan struct{}, cfg.MaxInFlight),
	}
	if cfg.CallsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.CallsPerSecond), 1)
	}
	return g
}

// Do runs fn once a slot (and a rate token, when configured) is available.
// It blocks until the call finishes, the context is done, or the gate is
// closed.
func (g *Gate) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	if g.closed.Load() {
		return "", ErrClosed
	}

	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-g.slots }()

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	g.started.Add(1)
	out, err := fn(ctx)
	if err != nil {
		g.failed.Add(1)
		return out, err
	}
	g.completed.Add(1)
	return out, nil
}

// Close rejects future calls. In-flight calls finish naturally.
func (g *Gate) Close() {
	g.closed.Store(true)
}

// Stats is a point-in-time snapshot of gate counters.
type Stats struct {
	InFlight  int   `json:"in_flight"`
	Started   int64 `json:"started"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// Stats returns current counters.
func (g *Gate) Stats() Stats {
	return Stats{
		InFlight:  len(g.slots),
		Started:   g.started.Load(),
		Completed: g.completed.Load(),
		Failed:    g.failed.Load(),
	}
}

// WaitIdle blocks until no call is in flight or the timeout elapses. Test
// helper used by shutdown paths.
func (g *Gate) WaitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for len(g.slots) > 0 {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
	return true
}
