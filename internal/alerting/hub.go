// internal/alerting/hub.go
package alerting

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"smart-home-gateway/internal/data"
)

const (
	defaultCapacity  = 10
	defaultQueueSize = 16
)

// Hub owns the notification buffer and fans alerts out to subscribers.
//
// The buffer is deliberately lossy: it keeps the newest `capacity` events
// and silently drops the rest. Alerting is best-effort observability, not a
// durable log, so old unread alerts are evicted rather than backpressuring
// the ingestion path. Fan-out is likewise non-blocking: a slow subscriber
// loses its own oldest queued events and never stalls Publish.
type Hub struct {
	mu        sync.Mutex
	capacity  int
	queueSize int
	events    []data.AlertEvent // newest first
	subs      map[*Subscriber]struct{}
}

// Subscriber is one live alert stream. Close releases it; the hub drops its
// queue immediately.
type Subscriber struct {
	hub  *Hub
	ch   chan data.AlertEvent
	once sync.Once
}

// Events is the live alert stream. It is closed when the subscriber is
// closed.
func (s *Subscriber) Events() <-chan data.AlertEvent { return s.ch }

func (s *Subscriber) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		close(s.ch)
		s.hub.mu.Unlock()
	})
}

func NewHub(capacity, queueSize int) *Hub {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		capacity:  capacity,
		queueSize: queueSize,
		events:    make([]data.AlertEvent, 0, capacity),
		subs:      make(map[*Subscriber]struct{}),
	}
}

// Publish stores the event newest-first, evicts beyond capacity, and fans it
// out. The hub assigns the ID and timestamp, and returns the stored event.
func (h *Hub) Publish(e data.AlertEvent) data.AlertEvent {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append([]data.AlertEvent{e}, h.events...)
	if len(h.events) > h.capacity {
		h.events = h.events[:h.capacity]
	}

	for sub := range h.subs {
		select {
		case sub.ch <- e:
		default:
			// Queue full: drop that subscriber's oldest event to make room.
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- e:
			default:
			}
			log.Printf("Alert subscriber queue full, dropped oldest event")
		}
	}
	return e
}

// Subscribe registers a live stream and returns the current snapshot
// (newest first) for replay-on-join. Events published after the snapshot
// arrive on the stream in publish order.
func (h *Hub) Subscribe() ([]data.AlertEvent, *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &Subscriber{hub: h, ch: make(chan data.AlertEvent, h.queueSize)}
	h.subs[sub] = struct{}{}
	snapshot := make([]data.AlertEvent, len(h.events))
	copy(snapshot, h.events)
	return snapshot, sub
}

// Snapshot returns the buffered events, newest first.
func (h *Hub) Snapshot() []data.AlertEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]data.AlertEvent, len(h.events))
	copy(out, h.events)
	return out
}

// Unread counts buffered events not yet marked read.
func (h *Hub) Unread() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if !e.Read {
			n++
		}
	}
	return n
}

// MarkAllRead flags every buffered event as read.
func (h *Hub) MarkAllRead() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.events {
		h.events[i].Read = true
	}
}

// ClearAll drops every buffered event. Cleared events are never replayed to
// later subscribers.
func (h *Hub) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = h.events[:0]
}
