package gate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRunsFunction(t *testing.T) {
	g := New(DefaultConfig())
	defer g.Close()

	out, err := g.Do(context.Background(), func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, int64(1), g.Stats().Completed)
}

func TestDoPropagatesError(t *testing.T) {
	g := New(DefaultConfig())
	defer g.Close()

	boom := errors.New("boom")
	_, err := g.Do(context.Background(), func(ctx context.Context) (string, error) {
		return "", boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int64(1), g.Stats().Failed)
}

func TestDoBoundsConcurrency(t *testing.T) {
	g := New(Config{MaxInFlight: 2})
	defer g.Close()

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	release := make(chan struct{})

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Do(context.Background(), func(ctx context.Context) (string, error) {
				cur := inFlight.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				<-release
				inFlight.Add(-1)
				return "", nil
			})
		}()
	}

	// Let the first two acquire slots, then release everyone.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(6), g.Stats().Started)
}

func TestDoContextCancelledWhileQueued(t *testing.T) {
	g := New(Config{MaxInFlight: 1})
	defer g.Close()

	block := make(chan struct{})
	go func() {
		_, _ = g.Do(context.Background(), func(ctx context.Context) (string, error) {
			<-block
			return "", nil
		})
	}()
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Do(ctx, func(ctx context.Context) (string, error) { return "", nil })
	assert.ErrorIs(t, err, context.Canceled)

	close(block)
	assert.True(t, g.WaitIdle(time.Second))
}

func TestClosedGateRejects(t *testing.T) {
	g := New(DefaultConfig())
	g.Close()

	_, err := g.Do(context.Background(), func(ctx context.Context) (string, error) { return "", nil })
	assert.ErrorIs(t, err, ErrClosed)
}
