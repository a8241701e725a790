package service

import (
	"sync"
	"time"
)

// Event types pushed to board subscribers.
const (
	EventTick   = "tick"
	EventTender = "tender"
	EventHealth = "health"
)

type Event struct {
	Type     string    `json:"type"`
	TenderId string    `json:"tenderId,omitempty"`
	Action   string    `json:"action,omitempty"`
	At       time.Time `json:"at"`
}

// EventHub fans events out to live board subscribers. Publishing never
// blocks: a subscriber that stopped draining loses events, not the
// publisher, and the board resyncs on its next full read anyway.
type EventHub struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

func NewEventHub() *EventHub {
	return &EventHub{subs: map[int]chan Event{}}
}

func (h *EventHub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.next
	h.next++
	events := make(chan Event, 16)
	h.subs[id] = events

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[id]; ok {
			delete(h.subs, id)
			close(events)
		}
	}
	return events, cancel
}

func (h *EventHub) Publish(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, events := range h.subs {
		select {
		case events <- event:
		default:
		}
	}
}
