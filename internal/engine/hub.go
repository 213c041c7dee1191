package engine

import (
	"sync"
	"time"
)

// subscriberBuffer is the number of snapshots a slow subscriber may lag behind.
const subscriberBuffer = 4

// Hub distributes published status snapshots to passive readers such as
// the HTTP event stream. Publishing never blocks the cycle: a full
// subscriber loses its oldest snapshot.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	closed      bool

	published uint64
	dropped   uint64
}

// Subscriber represents a channel subscriber with metadata.
type Subscriber struct {
	ID           string
	Channel      chan Status
	DroppedCount int
	CreatedAt    time.Time
}

// HubMetrics contains hub counters.
type HubMetrics struct {
	Published   uint64
	Dropped     uint64
	Subscribers int
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]*Subscriber)}
}

// Subscribe registers id and returns its channel. A second subscription
// with the same id replaces the first, whose channel is closed.
func (h *Hub) Subscribe(id string) <-chan Status {
	ch := make(chan Status, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		close(ch)
		return ch
	}
	if old, ok := h.subscribers[id]; ok {
		close(old.Channel)
	}
	h.subscribers[id] = &Subscriber{ID: id, Channel: ch, CreatedAt: time.Now()}
	return ch
}

// Unsubscribe removes id and closes its channel.
func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subscribers[id]; ok {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Publish delivers s to every subscriber.
func (h *Hub) Publish(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.published++

	for _, sub := range h.subscribers {
		select {
		case sub.Channel <- s:
			continue
		default:
		}
		// Buffer full, drop oldest snapshot
		select {
		case <-sub.Channel:
			sub.DroppedCount++
			h.dropped++
		default:
		}
		select {
		case sub.Channel <- s:
		default:
		}
	}
}

// Close closes every subscriber channel. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subscribers {
		close(sub.Channel)
		delete(h.subscribers, id)
	}
}

// Metrics returns hub counters.
func (h *Hub) Metrics() HubMetrics {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubMetrics{Published: h.published, Dropped: h.dropped, Subscribers: len(h.subscribers)}
}
