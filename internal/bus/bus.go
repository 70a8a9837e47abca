// Package bus implements the single-producer/multi-consumer broadcast
// channel from spec.md §4.3: every event published after a consumer
// subscribes is observable by that consumer, with bounded backpressure and
// a per-consumer oldest-drop policy when a consumer lags.
package bus

import (
	"context"
	"sync"

	"github.com/arbiq/marketfeed/internal/canon"
)

// DefaultCapacity is the reference bound from spec.md §4.3.
const DefaultCapacity = 50_000

// Bus fans one producer's events out to N independent subscribers.
type Bus struct {
	capacity int

	mu     sync.RWMutex
	subs   map[*Subscriber]struct{}
	closed bool

	// OnPublish and OnDrop, if set, are invoked synchronously from Publish
	// for metrics instrumentation; they must not block.
	OnPublish func()
	OnDrop    func()
}

// New creates a Bus with the given per-consumer channel capacity.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Bus{capacity: capacity, subs: make(map[*Subscriber]struct{})}
}

// Subscriber is one consumer's view of the bus.
type Subscriber struct {
	ch      chan canon.Event
	mu      sync.Mutex
	lagged  bool
}

// Subscribe registers a new subscriber that will observe every event
// published after this call returns.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{ch: make(chan canon.Event, b.capacity)}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub from the bus; further publishes will not reach
// it.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Publish delivers event to every current subscriber. A subscriber whose
// channel is full has its oldest undelivered event dropped to make room;
// that subscriber observes a lag signal on its next Recv.
func (b *Bus) Publish(event canon.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.subs {
		sub.send(event, b.OnDrop)
	}
	if b.OnPublish != nil {
		b.OnPublish()
	}
}

func (s *Subscriber) send(event canon.Event, onDrop func()) {
	select {
	case s.ch <- event:
		return
	default:
	}
	// Channel full: drop the oldest queued event and retry once.
	select {
	case <-s.ch:
		if onDrop != nil {
			onDrop()
		}
	default:
	}
	s.mu.Lock()
	s.lagged = true
	s.mu.Unlock()
	select {
	case s.ch <- event:
	default:
		// Another publisher raced us and refilled the channel; drop this
		// event rather than block the producer.
		if onDrop != nil {
			onDrop()
		}
	}
}

// Recv blocks until an event is available, ctx is cancelled, or the bus is
// closed. lagged reports whether events were dropped for this subscriber
// since the previous Recv call.
func (s *Subscriber) Recv(ctx context.Context) (event canon.Event, lagged bool, ok bool) {
	select {
	case e, open := <-s.ch:
		if !open {
			return canon.Event{}, false, false
		}
		s.mu.Lock()
		lagged = s.lagged
		s.lagged = false
		s.mu.Unlock()
		return e, lagged, true
	case <-ctx.Done():
		return canon.Event{}, false, false
	}
}

// Close closes the bus: no further events are accepted and every
// subscriber's channel is closed at once; events already buffered in a
// channel stay readable, so Recv reports closure after delivering them.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		close(sub.ch)
	}
	b.subs = make(map[*Subscriber]struct{})
}
