// Package hub fans internal events out to any number of subscribers without
// letting a slow consumer stall the pipeline.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"

	"tickarb/internal/application/port"
)

// DefaultQueueSize bounds each subscriber's outbound queue.
const DefaultQueueSize = 256

// Subscription is one consumer's handle. Events() is closed when the consumer
// unregisters or is disconnected for falling behind on a non-droppable event;
// a closed channel is the disconnection signal, the hub never stalls silently.
type Subscription struct {
	ch     chan port.Event
	closed bool
}

// Events yields this subscriber's events in publish order.
func (s *Subscription) Events() <-chan port.Event { return s.ch }

// Hub broadcasts events to registered subscriptions. Publish never blocks:
// droppable events evict the oldest queued event of a full subscriber,
// non-droppable events disconnect the slow subscriber.
type Hub struct {
	mu        sync.Mutex
	subs      map[*Subscription]struct{}
	queueSize int
	snapshot  func() []port.Event
}

// New creates a hub. snapshot, if non-nil, produces the events pushed to every
// new subscriber before it sees any incremental event (market summary plus the
// full initial price table).
func New(queueSize int, snapshot func() []port.Event) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[*Subscription]struct{}),
		queueSize: queueSize,
		snapshot:  snapshot,
	}
}

// Register adds a subscriber and queues the snapshot events first, so a new
// consumer never observes a gap between the snapshot and the stream.
func (h *Hub) Register() *Subscription {
	sub := &Subscription{ch: make(chan port.Event, h.queueSize)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.snapshot != nil {
		for _, ev := range h.snapshot() {
			h.enqueue(sub, ev)
		}
	}
	h.subs[sub] = struct{}{}
	log.Debug().Int("subscribers", len(h.subs)).Msg("hub subscriber registered")
	return sub
}

// Unregister removes the subscription and closes its channel. Safe to call
// more than once.
func (h *Hub) Unregister(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(sub)
}

// Publish delivers the event to every live subscription.
func (h *Hub) Publish(ev port.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		h.enqueue(sub, ev)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// enqueue must be called with h.mu held.
func (h *Hub) enqueue(sub *Subscription, ev port.Event) {
	if sub.closed {
		return
	}
	select {
	case sub.ch <- ev:
		return
	default:
	}

	if !ev.Type.Droppable() {
		log.Warn().Str("type", string(ev.Type)).Msg("disconnecting slow subscriber")
		h.drop(sub)
		return
	}

	// Evict the oldest queued event, then retry once. Only Publish sends on
	// sub.ch, and always under h.mu, so the retry cannot race another send.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- ev:
	default:
	}
}

// drop must be called with h.mu held.
func (h *Hub) drop(sub *Subscription) {
	if sub.closed {
		return
	}
	sub.closed = true
	delete(h.subs, sub)
	close(sub.ch)
}
