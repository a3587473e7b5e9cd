// Package events provides the in-process pub/sub bus connecting the session
// engine to alert delivery, the save-state indicator, and status reporting.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened inside the session.
type EventType string

const (
	// EventAlert carries a rules.Alert produced by a control-row evaluation.
	EventAlert EventType = "alert"
	// EventDraftApplied fires when the poller replaces local state with a
	// newer remote draft.
	EventDraftApplied EventType = "draft_applied"
	// EventSaveState fires on every save indicator change (idle/saving/saved).
	EventSaveState EventType = "save_state"
	// EventFinalized fires after a draft commits to historical storage.
	EventFinalized EventType = "finalized"
)

// Event is one published occurrence. Payload types are owned by the
// publisher; subscribers type-assert.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Payload   any
}

// Subscriber receives events asynchronously.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe bus. Each subscriber gets a
// buffered channel; when the buffer is full the event is dropped for that
// subscriber rather than blocking the session.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a bus with the given per-subscriber buffer size.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for one event type and returns an unsubscribe
// function. Delivery happens on a dedicated goroutine per subscriber; a
// panicking subscriber is contained and does not disturb the bus.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			deliver(fn, event)
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

func deliver(fn Subscriber, event Event) {
	defer func() {
		_ = recover()
	}()
	fn(event)
}

// Publish sends an event to every subscriber of its type without blocking.
func (b *Bus) Publish(eventType EventType, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	for _, ch := range b.subscribers[eventType] {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop rather than stall the session.
		}
	}
}

// Close shuts down all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
