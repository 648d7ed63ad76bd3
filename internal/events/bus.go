package events

import "sync"

// Bus fans component events out to in-process subscribers. Delivery is
// best-effort: a subscriber whose buffer is full misses the event, so a slow
// websocket reader can never stall the trading loops publishing to it.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	topics map[Event]map[int]chan any
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{topics: make(map[Event]map[int]chan any)}
}

// Subscribe returns a receive channel for one event topic and a function that
// tears the subscription down. Unsubscribing closes the channel; doing it
// twice is harmless.
func (b *Bus) Subscribe(e Event, buffer int) (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.topics[e] == nil {
		b.topics[e] = make(map[int]chan any)
	}
	id := b.nextID
	b.nextID++

	ch := make(chan any, buffer)
	b.topics[e][id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.topics[e][id]; ok {
			delete(b.topics[e], id)
			close(c)
		}
	}
}

// Publish sends the payload to every subscriber of the topic without ever
// blocking the caller.
func (b *Bus) Publish(e Event, payload any) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.topics[e] {
		select {
		case ch <- payload:
		default:
		}
	}
}
