// Package events fans node events out to the subscribers of the event
// stream. A subscriber that doesn't keep up loses events, the sender never
// blocks.
package events

import (
	"fmt"
	"sync"
)

// subscriberBuffer is how many events a subscriber may fall behind before
// events are dropped for it.
const subscriberBuffer = 100

// Events maintains the channel of every subscriber by id.
type Events struct {
	mu   sync.RWMutex
	subs map[string]chan string
	shut bool
}

// New constructs an events value for subscribing to node events.
func New() *Events {
	return &Events{
		subs: make(map[string]chan string),
	}
}

// Subscribe returns the channel events for the id are delivered on. The
// channel is closed by Unsubscribe or Shutdown.
func (evt *Events) Subscribe(id string) (<-chan string, error) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if evt.shut {
		return nil, fmt.Errorf("subscribe %q: events are shut down", id)
	}

	if ch, exists := evt.subs[id]; exists {
		return ch, nil
	}

	ch := make(chan string, subscriberBuffer)
	evt.subs[id] = ch

	return ch, nil
}

// Unsubscribe closes and forgets the channel of the id.
func (evt *Events) Unsubscribe(id string) {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subs[id]; exists {
		delete(evt.subs, id)
		close(ch)
	}
}

// Subscribers returns the number of active subscribers.
func (evt *Events) Subscribers() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.subs)
}

// Send offers the event to every subscriber.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// Shutdown closes every subscriber channel and refuses new subscribers.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	evt.shut = true
	for id, ch := range evt.subs {
		delete(evt.subs, id)
		close(ch)
	}
}
