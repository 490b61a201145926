package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher publishes events and lets in-process consumers subscribe by type.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// Relay forwards events to other service instances.
type Relay interface {
	Publish(ctx context.Context, event Event) error
	NextSeq(ctx context.Context, branchID string) (int64, error)
}

// Broadcaster stamps events with an id and a per-branch sequence, fans them out
// to local subscribers and handlers, then hands them to the relay.
type Broadcaster struct {
	hub    *Hub
	relay  Relay
	logger *zap.Logger

	mu        sync.Mutex
	seq       map[string]int64
	listeners map[EventType][]EventHandler
	now       func() time.Time
}

// NewBroadcaster creates a broadcaster. relay may be nil for single-instance deployments.
func NewBroadcaster(hub *Hub, relay Relay, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		hub:       hub,
		relay:     relay,
		logger:    logger,
		seq:       make(map[string]int64),
		listeners: make(map[EventType][]EventHandler),
		now:       time.Now,
	}
}

// Hub exposes the local fan-out for stream endpoints.
func (b *Broadcaster) Hub() *Hub { return b.hub }

// Publish delivers event locally and to the relay. Local delivery never fails;
// the returned error reports a relay failure only.
func (b *Broadcaster) Publish(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = b.now().UTC()
	}
	event.Seq = b.nextSeq(ctx, event.BranchID)

	b.deliver(ctx, event)

	if b.relay == nil {
		return nil
	}
	return b.relay.Publish(ctx, event)
}

// Receive delivers an event that arrived from another instance.
func (b *Broadcaster) Receive(ctx context.Context, event Event) {
	b.mu.Lock()
	if event.Seq > b.seq[event.BranchID] {
		b.seq[event.BranchID] = event.Seq
	}
	b.mu.Unlock()
	b.deliver(ctx, event)
}

// Subscribe registers a handler for the given event type.
func (b *Broadcaster) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], handler)
}

func (b *Broadcaster) deliver(ctx context.Context, event Event) {
	if b.hub != nil {
		if dropped := b.hub.Broadcast(event); dropped > 0 {
			b.logger.Warn("slow subscribers dropped event",
				zap.String("event_id", event.ID),
				zap.String("branch_id", event.BranchID),
				zap.Int("dropped", dropped))
		}
	}

	b.mu.Lock()
	handlers := append([]EventHandler{}, b.listeners[event.Type]...)
	b.mu.Unlock()
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
		}
	}
}

func (b *Broadcaster) nextSeq(ctx context.Context, branchID string) int64 {
	if b.relay != nil {
		seq, err := b.relay.NextSeq(ctx, branchID)
		if err == nil {
			b.mu.Lock()
			if seq > b.seq[branchID] {
				b.seq[branchID] = seq
			}
			b.mu.Unlock()
			return seq
		}
		b.logger.Warn("shared event sequence unavailable; using local sequence", zap.String("branch_id", branchID), zap.Error(err))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq[branchID]++
	return b.seq[branchID]
}
