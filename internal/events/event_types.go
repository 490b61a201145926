package events

import (
	"encoding/json"
	"time"

	"github.com/spec-kit/branch-queue/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated  EventType = "ticket.created"
	EventTicketUpdated  EventType = "ticket.updated"
	EventTicketCalled   EventType = "ticket.called"
	EventCounterUpdated EventType = "counter.updated"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID string           `json:"user_id,omitempty"`
	Name   string           `json:"name,omitempty"`
	Role   domain.StaffRole `json:"role,omitempty"`
}

// ActorFrom converts a request actor.
func ActorFrom(a domain.Actor) Actor {
	return Actor{UserID: a.UserID, Name: a.FullName, Role: a.Role}
}

// Event is a branch-scoped notification. Consumers treat events as hints and
// re-fetch authoritative state; Seq lets them detect gaps per branch.
type Event struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Type      EventType `json:"type"`
	BranchID  string    `json:"branch_id,omitempty"`
	TicketID  string    `json:"ticket_id,omitempty"`
	CounterID string    `json:"counter_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// TicketPayload describes a ticket after a create or update.
type TicketPayload struct {
	Number          string              `json:"number"`
	Status          domain.TicketStatus `json:"status"`
	StatusCode      int                 `json:"status_code"`
	PreviousStatus  domain.TicketStatus `json:"previous_status,omitempty"`
	ServiceType     domain.ServiceType  `json:"service_type"`
	ServiceTypeCode int                 `json:"service_type_code"`
	CounterID       *string             `json:"counter_id,omitempty"`
	PriorityScore   int                 `json:"priority_score"`
	RecallCount     int                 `json:"recall_count"`
	Action          domain.TicketAction `json:"action,omitempty"`
}

// TicketCalledPayload is what displays announce.
type TicketCalledPayload struct {
	Number      string `json:"number"`
	CounterID   string `json:"counter_id"`
	CounterName string `json:"counter_name"`
	RecallCount int    `json:"recall_count"`
	Recall      bool   `json:"recall"`
}

// CounterPayload describes a counter after a status, binding or assignment change.
type CounterPayload struct {
	Name             string               `json:"name"`
	Status           domain.CounterStatus `json:"status"`
	CurrentTicketID  *string              `json:"current_ticket_id,omitempty"`
	AssignedUserID   *string              `json:"assigned_user_id,omitempty"`
	AssignedUserName *string              `json:"assigned_user_name,omitempty"`
	Reason           string               `json:"reason,omitempty"`
}

// NewTicketPayload snapshots ticket for an event.
func NewTicketPayload(ticket *domain.Ticket, previous domain.TicketStatus, action domain.TicketAction) TicketPayload {
	return TicketPayload{
		Number:          ticket.Number,
		Status:          ticket.Status,
		StatusCode:      domain.TicketStatusCode(ticket.Status),
		PreviousStatus:  previous,
		ServiceType:     ticket.ServiceType,
		ServiceTypeCode: domain.ServiceTypeCode(ticket.ServiceType),
		CounterID:       ticket.CounterID,
		PriorityScore:   ticket.PriorityScore,
		RecallCount:     ticket.RecallCount,
		Action:          action,
	}
}

// NewCounterPayload snapshots counter for an event.
func NewCounterPayload(counter *domain.Counter, reason string) CounterPayload {
	return CounterPayload{
		Name:             counter.Name,
		Status:           counter.Status,
		CurrentTicketID:  counter.CurrentTicketID,
		AssignedUserID:   counter.AssignedUserID,
		AssignedUserName: counter.AssignedUserName,
		Reason:           reason,
	}
}

// DecodePayload returns the event payload as T. Events received from the relay
// carry generic JSON and are converted on demand.
func DecodePayload[T any](event Event) (T, error) {
	var out T
	switch p := event.Payload.(type) {
	case T:
		return p, nil
	case *T:
		if p != nil {
			return *p, nil
		}
		return out, nil
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return out, err
	}
	err = json.Unmarshal(raw, &out)
	return out, err
}
