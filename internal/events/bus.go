package events

import (
	"sync"
	"sync/atomic"
)

const defaultBufSize = 256

// Bus is a channel-based pub-sub bus. It is constructed once per process and
// passed to every component that publishes or observes; there is no global
// instance.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]map[*Subscription]struct{} // topic -> subscribers
	allSubs map[*Subscription]struct{}            // subscribed to all topics
	closed  bool
}

// Subscription is the handle returned by Subscribe and SubscribeAll.
type Subscription struct {
	bus     *Bus
	topic   string // empty for all-topic subscriptions
	ch      chan Event
	closed  bool // guarded by bus.mu
	dropped atomic.Uint64
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subs:    make(map[string]map[*Subscription]struct{}),
		allSubs: make(map[*Subscription]struct{}),
	}
}

// Subscribe registers for one topic. bufSize defaults to 256 if <= 0.
func (b *Bus) Subscribe(topic string, bufSize int) *Subscription {
	sub := b.newSubscription(topic, bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*Subscription]struct{})
	}
	b.subs[topic][sub] = struct{}{}
	return sub
}

// SubscribeAll registers for every topic. bufSize defaults to 256 if <= 0.
func (b *Bus) SubscribeAll(bufSize int) *Subscription {
	sub := b.newSubscription("", bufSize)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		sub.closed = true
		close(sub.ch)
		return sub
	}
	b.allSubs[sub] = struct{}{}
	return sub
}

func (b *Bus) newSubscription(topic string, bufSize int) *Subscription {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &Subscription{bus: b, topic: topic, ch: make(chan Event, bufSize)}
}

// Publish delivers events to every current subscriber of their topics.
// Non-blocking: a subscriber whose channel is full misses that event.
// Events of one call reach each subscriber in argument order.
func (b *Bus) Publish(events ...Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ev := range events {
		for sub := range b.subs[ev.Topic()] {
			sub.offer(ev)
		}
		for sub := range b.allSubs {
			sub.offer(ev)
		}
	}
}

// Close closes the bus and every subscriber channel.
// Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, set := range b.subs {
		for sub := range set {
			sub.closeLocked()
		}
	}
	for sub := range b.allSubs {
		sub.closeLocked()
	}
	b.subs = make(map[string]map[*Subscription]struct{})
	b.allSubs = make(map[*Subscription]struct{})
}

// Events returns the channel events are delivered on. It is closed by
// Close on either the subscription or the bus.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events this subscriber missed because its
// buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the channel. Safe to call multiple times and
// after the bus itself is closed.
func (s *Subscription) Close() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	if s.topic == "" {
		delete(b.allSubs, s)
	} else if set := b.subs[s.topic]; set != nil {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.topic)
		}
	}
	s.closeLocked()
}

// closeLocked must be called with bus.mu held for writing.
func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// offer must be called with bus.mu held for reading.
func (s *Subscription) offer(ev Event) {
	select {
	case s.ch <- ev:
	default:
		s.dropped.Add(1)
	}
}
