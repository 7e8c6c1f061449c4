// Package events fans workspace change notifications out to WebSocket
// clients and the tray.
package events

import (
	"sync"
	"time"
)

// Type names what changed.
type Type string

const (
	TypeConnected Type = "connected"
	TypeSelection Type = "selection-changed"
	TypeSession   Type = "session-changed"
	TypeClips     Type = "clips-changed"
	TypeMessage   Type = "message"
	TypeWindow    Type = "window-changed"
	// TypePlayer carries a command for the player page.
	TypePlayer Type = "player-command"
)

// Event is one notification.
type Event struct {
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Bus broadcasts events to every subscriber. Slow subscribers miss events
// rather than block the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	closed      bool
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[chan Event]struct{})}
}

// Subscribe returns an event channel and its unsubscribe function.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.subscribers[ch] = struct{}{}
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subscribers[ch]; ok {
			delete(b.subscribers, ch)
			close(ch)
		}
	}
	return ch, unsubscribe
}

// Publish delivers e to every subscriber with room in its buffer and
// reports how many received it.
func (b *Bus) Publish(e Event) int {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for ch := range b.subscribers {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Message publishes an operator-facing message.
func (b *Bus) Message(text string) {
	b.Publish(Event{Type: TypeMessage, Message: text})
}

// Close ends every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = make(map[chan Event]struct{})
}

func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
