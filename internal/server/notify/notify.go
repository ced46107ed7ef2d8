// Package notify broadcasts list change events to in-process subscribers
// (the websocket watch handlers).
package notify

import (
	"log/slog"
	"sync"
)

// Event types.
const (
	EventListCreated   = "list.created"
	EventListDeleted   = "list.deleted"
	EventListCompacted = "list.compacted"
	EventItemInserted  = "item.inserted"
	EventItemMoved     = "item.moved"
	EventItemDeleted   = "item.deleted"
)

// Event describes a single change to a list.
type Event struct {
	Type     string `json:"type"`
	ListSlug string `json:"list_slug"`
	ItemID   string `json:"item_id,omitempty"`
	Position string `json:"position,omitempty"`
}

const subscriberBuffer = 64

// Broadcaster fans events out to subscribers. Slow subscribers drop
// events rather than block publishers.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// New creates a Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called when the subscriber is done; the channel is closed by cancel
// or by Close.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	subID := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[subID] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[subID]; ok {
			delete(b.subs, subID)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers ev to all current subscribers.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			slog.Warn("dropping event for slow watch subscriber", "subscriber", subID, "type", ev.Type)
		}
	}
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subs {
		delete(b.subs, subID)
		close(ch)
	}
}
