package inspector

import "sync"

// subscriberBuffer bounds how many unconsumed events a slow TUI
// subscriber may queue before new events are dropped for it, so a
// stalled subscriber can't block capture of live traffic.
const subscriberBuffer = 256

// Broker is an in-process fan-out of captured Events, replacing the
// teacher's gRPC TapService: the inspector TUI runs in the same
// process as the Tap that produces events, so there is no wire hop to
// model, just the same Subscribe/Publish/unsub shape the teacher's
// server.tapService.Watch method drives against its Broker.
type Broker struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroker returns an empty Broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must call exactly once when done.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if ch, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
}

// Publish fans ev out to every current subscriber. A subscriber whose
// buffer is full has the event dropped for it rather than blocking
// the publisher.
func (b *Broker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Close disconnects every current subscriber.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
