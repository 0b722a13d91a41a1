package publisher

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// Subscriber receives events in-process. Deliver must not block.
type Subscriber interface {
	Deliver(ev Event)
}

// Fanout publishes to an optional durable Publisher and then hands the
// event to every in-process subscriber.
type Fanout struct {
	primary Publisher

	mu   sync.RWMutex
	subs []Subscriber
}

// NewFanout creates a fanout in front of primary, which may be nil.
func NewFanout(primary Publisher, subs ...Subscriber) *Fanout {
	return &Fanout{primary: primary, subs: subs}
}

// Subscribe adds a subscriber.
func (f *Fanout) Subscribe(s Subscriber) {
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
}

// Publish implements Publisher. Subscribers are served even when the
// durable publish fails.
func (f *Fanout) Publish(ctx context.Context, ev Event) error {
	var err error
	if f.primary != nil {
		if perr := f.primary.Publish(ctx, ev); perr != nil {
			err = errors.Wrapf(perr, "publishing %s", ev.Type)
		}
	}

	f.mu.RLock()
	subs := f.subs
	f.mu.RUnlock()
	for _, s := range subs {
		s.Deliver(ev)
	}
	return err
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error { return nil }
