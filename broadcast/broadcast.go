// Package broadcast carries session change notices between execution
// contexts, such as browser tabs or processes sharing a cookie jar.
//
// Messages are nudges, not data: they never carry session contents. A
// receiver reacts by refetching the session from the server, which stays
// the single source of truth. Delivery is best effort; a missed message
// costs a delay until the next refetch, never a wrong answer.
package broadcast

import (
	"sync"
	"time"
)

// Events a bus carries.
const (
	// EventSessionUpdated announces that a context obtained or refreshed a
	// session, after a sign-in or a poll that observed a change.
	EventSessionUpdated = "session_updated"

	// EventSignedOut announces that a context ended the shared session.
	EventSignedOut = "signed_out"
)

// Message is one session change notice.
type Message struct {
	// Event is one of the Event constants.
	Event string `json:"event"`

	// Origin identifies the sender, so it can skip its own messages.
	Origin string `json:"origin"`

	// SentAt is stamped at publish time.
	SentAt time.Time `json:"sent_at"`
}

// Bus fans session change notices out to subscribers. Implementations must
// deliver to every subscriber, including the sender; receivers filter by
// Origin.
type Bus interface {
	// Publish delivers msg to all current subscribers. It must not block on
	// slow subscribers.
	Publish(msg Message)

	// Subscribe registers fn for future messages and returns a cancel
	// function that unregisters it.
	Subscribe(fn func(Message)) (cancel func())
}

// LocalBus is an in-process Bus. It is the bridge between watchers living in
// the same process; cross-process transports implement Bus the same way.
type LocalBus struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Message)
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[int]func(Message))}
}

// Publish snapshots the subscriber list under the lock and delivers outside
// it, each subscriber on its own goroutine.
func (b *LocalBus) Publish(msg Message) {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now()
	}

	b.mu.Lock()
	handlers := make([]func(Message), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		go fn(msg)
	}
}

func (b *LocalBus) Subscribe(fn func(Message)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
