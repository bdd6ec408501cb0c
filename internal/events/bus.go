package events

import (
	"sync"

	"conversation-service/internal/observability"
)

const subscriptionBuffer = 16

// Bus distributes domain events to registered subscriptions. It keeps no
// history: an event published before Subscribe is never delivered. Construct
// one per process (or per test) and pass it explicitly.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Kind]map[*Subscription]struct{}
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind]map[*Subscription]struct{})}
}

// Subscribe registers a live feed for one event kind.
func (b *Bus) Subscribe(kind Kind) *Subscription {
	sub := &Subscription{bus: b, kind: kind, ch: make(chan Event, subscriptionBuffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	if _, ok := b.subs[kind]; !ok {
		b.subs[kind] = make(map[*Subscription]struct{})
	}
	b.subs[kind][sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscription of its kind. A
// subscription whose queue is full loses its oldest queued event rather than
// stalling the publisher.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	targets := make([]*Subscription, 0, len(b.subs[e.Kind()]))
	for sub := range b.subs[e.Kind()] {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	observability.IncBusPublished(string(e.Kind()))
	for _, sub := range targets {
		sub.deliver(e)
	}
}

// SubscriberCount reports the number of live subscriptions for a kind.
func (b *Bus) SubscriberCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Close cancels every subscription and rejects future ones.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*Subscription
	for _, subs := range b.subs {
		for sub := range subs {
			all = append(all, sub)
		}
	}
	b.subs = make(map[Kind]map[*Subscription]struct{})
	b.mu.Unlock()

	for _, sub := range all {
		sub.finish()
	}
}

// Subscription is a live feed of one event kind.
type Subscription struct {
	bus  *Bus
	kind Kind
	ch   chan Event

	mu     sync.Mutex
	closed bool
}

// Events returns the delivery channel. It is closed by Cancel.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Cancel stops delivery and releases the bus registration. Safe to call more
// than once.
func (s *Subscription) Cancel() {
	s.bus.mu.Lock()
	if subs, ok := s.bus.subs[s.kind]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(s.bus.subs, s.kind)
		}
	}
	s.bus.mu.Unlock()

	s.finish()
}

func (s *Subscription) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

func (s *Subscription) deliver(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- e:
		return
	default:
	}

	// Queue full: drop the oldest queued event, then retry once.
	select {
	case <-s.ch:
		observability.IncBusDropped(string(s.kind))
	default:
	}
	select {
	case s.ch <- e:
	default:
	}
}
