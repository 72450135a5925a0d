// Package eventbus implements the in-process broadcast bus that fans
// out OrchestratorEvents to every subscribed gateway connection.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/cratos-ai/orchestrator/internal/coretypes"
)

// DefaultSubscriberBuffer is the channel depth given to a subscriber
// that does not request one explicitly.
const DefaultSubscriberBuffer = 256

// Bus broadcasts OrchestratorEvents to every live subscriber. A slow
// or stalled subscriber never blocks the publisher or any other
// subscriber: a full subscriber channel drops the event and increments
// that subscriber's lag counter instead.
type Bus struct {
	mu   sync.RWMutex
	subs map[int64]*subscriber
	next int64
}

type subscriber struct {
	ch      chan coretypes.OrchestratorEvent
	dropped uint64
}

// New constructs an empty Bus.
func New() *Bus {
	return &Bus{subs: map[int64]*subscriber{}}
}

// Subscription is a live feed from the Bus. Events() yields broadcast
// events until Close is called; Dropped reports how many events this
// subscriber missed due to a full buffer.
type Subscription struct {
	bus *Bus
	id  int64
	sub *subscriber
}

// Subscribe registers a new subscriber with the given channel buffer
// depth (DefaultSubscriberBuffer if bufferSize <= 0) and returns its
// Subscription.
func (b *Bus) Subscribe(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	sub := &subscriber{ch: make(chan coretypes.OrchestratorEvent, bufferSize)}

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	return &Subscription{bus: b, id: id, sub: sub}
}

// Events returns the channel of broadcast events for this subscription.
func (s *Subscription) Events() <-chan coretypes.OrchestratorEvent {
	return s.sub.ch
}

// Dropped returns how many events this subscriber missed because its
// buffer was full when they were published.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.sub.dropped)
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	if _, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(s.sub.ch)
	}
	s.bus.mu.Unlock()
}

// Publish broadcasts ev to every current subscriber. It never blocks:
// a subscriber whose channel is full has the event dropped and its lag
// counter incremented, matching every other egress path in this module
// (the Event Store append path and the session save path) in treating
// observability as best-effort relative to the execution itself.
func (b *Bus) Publish(ev coretypes.OrchestratorEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			atomic.AddUint64(&sub.dropped, 1)
		}
	}
}

// SubscriberCount reports how many subscriptions are currently live.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
