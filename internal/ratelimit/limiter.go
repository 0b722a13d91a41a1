// Package ratelimit throttles outbound upstream calls to a minimum gap
// between consecutive acquisitions, process wide.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// DefaultMinInterval is the gap the upstream tolerates without throttling us.
const DefaultMinInterval = 600 * time.Millisecond

// Clock abstracts time so tests can run on a simulated clock.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Limiter guarantees at least MinInterval between the return of one
// Acquire and the return of the next. Callers queue on the mutex, so
// the ordering is first come first served.
type Limiter struct {
	mu       sync.Mutex
	interval time.Duration
	clock    Clock
	last     time.Time
}

// New creates a limiter on the wall clock.
func New(interval time.Duration) *Limiter {
	return NewWithClock(interval, realClock{})
}

// NewWithClock creates a limiter on the given clock.
func NewWithClock(interval time.Duration, clock Clock) *Limiter {
	if interval < 0 {
		interval = 0
	}
	return &Limiter{interval: interval, clock: clock}
}

// Interval returns the configured minimum gap.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Acquire blocks until the caller may issue its request. The only error
// is the context's.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.last.IsZero() {
		wait := l.interval - l.clock.Now().Sub(l.last)
		if wait > 0 {
			if err := l.clock.Sleep(ctx, wait); err != nil {
				return err
			}
		}
	}

	l.last = l.clock.Now()
	return nil
}
