// Package events allows for the registering and receiving of events that
// nodes publish under a topic.
package events

import (
	"fmt"
	"sync"
)

// AllTopics subscribes a receiver to the events of every topic.
const AllTopics = ""

type receiver struct {
	topic string
	ch    chan string
}

// Events maintains a mapping of unique id and channels so goroutines
// can register and receive events.
type Events struct {
	m  map[string]receiver
	mu sync.RWMutex
}

// New constructs an events for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]receiver),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, r := range evt.m {
		delete(evt.m, id)
		close(r.ch)
	}
}

// Acquire takes a unique id and returns a channel that receives the events
// sent under the topic.
func (evt *Events) Acquire(id string, topic string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	r, exists := evt.m[id]
	if exists {
		return r.ch
	}

	// A message is dropped if the websocket receiver is not ready, this
	// buffer gives a slow receiver room.
	const messageBuffer = 100

	r = receiver{topic: topic, ch: make(chan string, messageBuffer)}
	evt.m[id] = r

	return r.ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	r, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(r.ch)
	return nil
}

// Send signals a message to every channel registered for the topic. Send
// will not block waiting for a receiver on any given channel.
func (evt *Events) Send(topic string, s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, r := range evt.m {
		if r.topic != AllTopics && r.topic != topic {
			continue
		}

		select {
		case r.ch <- s:
		default:
		}
	}
}
