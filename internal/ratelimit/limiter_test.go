package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return nil
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestAcquire_SimulatedClock(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(DefaultMinInterval, clock)
	ctx := context.Background()

	start := clock.Now()
	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	assert.Equal(t, time.Duration(n-1)*DefaultMinInterval, clock.Now().Sub(start))
}

func TestAcquire_NoWaitAfterIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(DefaultMinInterval, clock)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.advance(2 * time.Second)

	before := clock.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, before, clock.Now(), "an idle limiter should not sleep")
}

func TestAcquire_PartialWait(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	l := NewWithClock(DefaultMinInterval, clock)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	clock.advance(200 * time.Millisecond)

	before := clock.Now()
	require.NoError(t, l.Acquire(ctx))
	assert.Equal(t, 400*time.Millisecond, clock.Now().Sub(before))
}

func TestAcquire_WallClock(t *testing.T) {
	interval := 20 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	const n = 5
	start := time.Now()
	for i := 0; i < n; i++ {
		require.NoError(t, l.Acquire(ctx))
	}

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n-1)*interval)
}

func TestAcquire_ConcurrentCallersShareLimiter(t *testing.T) {
	interval := 10 * time.Millisecond
	l := New(interval)
	ctx := context.Background()

	const n = 6
	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Acquire(ctx))
		}()
	}
	wg.Wait()

	assert.GreaterOrEqual(t, time.Since(start), time.Duration(n-1)*interval)
}

func TestAcquire_ContextCanceled(t *testing.T) {
	l := New(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Acquire(ctx))
	cancel()
	assert.ErrorIs(t, l.Acquire(ctx), context.Canceled)
}
