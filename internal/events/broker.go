// Package events provides the in-process event bus between the capture
// controller and its observers (agent event stream, journal, tests).
package events

import (
	"sync"

	"github.com/agentdesk/paycapture/internal/core/domain"
)

// subscriberBuffer bounds how far a slow subscriber may fall behind before
// events are dropped for it. The controller never blocks on publication.
const subscriberBuffer = 64

// Broker implements ports.EventPublisher with fan-out to channel subscribers.
// Publication order is preserved per subscriber.
type Broker struct {
	mu     sync.Mutex
	subs   map[int]chan domain.Event
	nextID int
	closed bool
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan domain.Event)}
}

// Publish delivers event to every subscriber. A subscriber whose buffer is
// full misses the event rather than stalling the controller.
func (b *Broker) Publish(event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a new subscriber and returns its event channel plus a
// cancel function. The channel is closed on cancel and on broker Close.
func (b *Broker) Subscribe() (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Close closes every subscriber channel and rejects further publications.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
