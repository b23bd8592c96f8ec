package events

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultHubBuffer is the per-subscription queue length used when none is set.
const DefaultHubBuffer = 16

// Hub fans job events out to in-process subscribers keyed by owner. It
// backs the websocket endpoint. Delivery never blocks the publisher: when a
// subscriber's queue is full the event is dropped for that subscriber.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[*Subscription]struct{}
	buffer  int
	dropped atomic.Int64
	logger  *slog.Logger
}

// Subscription receives the events of one owner until closed.
type Subscription struct {
	OwnerID uuid.UUID

	ch   chan *JobEvent
	hub  *Hub
	once sync.Once
}

// NewHub creates a hub whose subscriptions queue up to buffer events.
func NewHub(buffer int, logger *slog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultHubBuffer
	}
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger.With("component", "event_hub"),
	}
}

// Subscribe registers a new subscription for owner's events.
func (h *Hub) Subscribe(owner uuid.UUID) *Subscription {
	sub := &Subscription{
		OwnerID: owner,
		ch:      make(chan *JobEvent, h.buffer),
		hub:     h,
	}

	h.mu.Lock()
	set, ok := h.subs[owner]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[owner] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("subscribed", "owner_id", owner)
	return sub
}

// Events returns the channel events are delivered on. It is closed by Close.
func (s *Subscription) Events() <-chan *JobEvent {
	return s.ch
}

// Close unregisters the subscription and closes its channel. It is safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.OwnerID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.OwnerID)
			}
		}
		close(s.ch)
		h.mu.Unlock()
	})
}

// HandleEvent delivers event to every subscription of its owner.
func (h *Hub) HandleEvent(_ context.Context, event *JobEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.OwnerID] {
		select {
		case sub.ch <- event:
		default:
			h.dropped.Add(1)
			h.logger.Warn("subscriber queue full, dropping event",
				"owner_id", event.OwnerID,
				"job_id", event.JobID,
				"status", event.Status)
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions for owner.
func (h *Hub) Subscribers(owner uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[owner])
}

// Dropped returns how many deliveries were dropped because a subscriber fell behind.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
