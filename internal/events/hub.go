package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscription receives events for one branch, or for every branch when
// BranchID is empty.
type Subscription struct {
	ID       string
	BranchID string
	send     chan Event
	dropped  atomic.Int64
}

// C is the receive side of the subscription. It is closed on unsubscribe.
func (s *Subscription) C() <-chan Event { return s.send }

// Dropped counts events discarded because the subscriber fell behind.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Hub fans events out to local subscribers without blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Subscription
	buffer  int
}

// NewHub creates a hub whose subscriber channels hold buffer events.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	return &Hub{clients: make(map[string]*Subscription), buffer: buffer}
}

// Subscribe registers a new subscriber for branchID.
func (h *Hub) Subscribe(branchID string) *Subscription {
	sub := &Subscription{ID: uuid.NewString(), BranchID: branchID, send: make(chan Event, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[sub.ID] = sub
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[sub.ID]; !ok {
		return
	}
	delete(h.clients, sub.ID)
	close(sub.send)
}

// Broadcast delivers event to every matching subscriber and returns how many
// subscribers dropped it.
func (h *Hub) Broadcast(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for _, sub := range h.clients {
		if !match(sub.BranchID, event.BranchID) {
			continue
		}
		select {
		case sub.send <- event:
		default:
			sub.dropped.Add(1)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Branchless events concern every branch.
func match(subBranch, eventBranch string) bool {
	return subBranch == "" || eventBranch == "" || subBranch == eventBranch
}
