package domain

import (
	"strings"
	"time"

	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// TicketAction names an edge of the ticket state machine.
type TicketAction string

const (
	ActionCall         TicketAction = "call"
	ActionBeginService TicketAction = "begin_service"
	ActionRecall       TicketAction = "recall"
	ActionComplete     TicketAction = "complete"
	ActionTransfer     TicketAction = "transfer"
	ActionMoveToEnd    TicketAction = "move_to_end"
	ActionMissed       TicketAction = "missed"
)

var transitionMap = map[TicketAction][]TicketStatus{
	ActionCall:         {TicketStatusWaiting},
	ActionBeginService: {TicketStatusCalled},
	ActionRecall:       {TicketStatusCalled, TicketStatusServing},
	ActionComplete:     {TicketStatusServing},
	ActionTransfer:     {TicketStatusCalled, TicketStatusServing},
	ActionMoveToEnd:    {TicketStatusCalled, TicketStatusServing},
	ActionMissed:       {TicketStatusWaiting},
}

// ValidTransition reports whether action may be applied to a ticket in status from.
func ValidTransition(action TicketAction, from TicketStatus) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}

func (t *Ticket) guard(action TicketAction) error {
	if ValidTransition(action, t.Status) {
		return nil
	}
	return apperrors.NewInvalidTransition("transition not allowed from current status", map[string]any{
		"ticket_id": t.ID,
		"status":    t.Status,
		"action":    action,
	})
}

// Call claims a waiting ticket for counterID.
func (t *Ticket) Call(counterID string, at time.Time) error {
	if err := t.guard(ActionCall); err != nil {
		return err
	}
	t.Status = TicketStatusCalled
	t.CounterID = &counterID
	if t.CalledAt == nil {
		t.CalledAt = &at
	}
	return nil
}

// BeginService marks the called customer as arrived at the counter.
func (t *Ticket) BeginService() error {
	if err := t.guard(ActionBeginService); err != nil {
		return err
	}
	t.Status = TicketStatusServing
	return nil
}

// Recall counts another announcement of an active ticket.
func (t *Ticket) Recall() error {
	if err := t.guard(ActionRecall); err != nil {
		return err
	}
	t.RecallCount++
	return nil
}

// Complete finishes service.
func (t *Ticket) Complete(at time.Time) error {
	if err := t.guard(ActionComplete); err != nil {
		return err
	}
	t.Status = TicketStatusCompleted
	t.CompletedAt = &at
	return nil
}

// Transfer returns the ticket to the pool under a new service category. A non-nil
// pinCounterID restricts eligibility to that counter.
func (t *Ticket) Transfer(service ServiceType, priority int, pinCounterID *string, at time.Time) error {
	if err := t.guard(ActionTransfer); err != nil {
		return err
	}
	t.Status = TicketStatusWaiting
	t.ServiceType = service
	t.PriorityScore = priority
	t.RecallCount = 0
	t.CounterID = cloneString(pinCounterID)
	t.RequeuedAt = &at
	return nil
}

// MoveToEnd returns the ticket to the queue with its wait restarting at at.
func (t *Ticket) MoveToEnd(reason string, author Remark, at time.Time) error {
	if err := t.guard(ActionMoveToEnd); err != nil {
		return err
	}
	t.Status = TicketStatusWaiting
	t.CounterID = nil
	t.RequeuedAt = &at
	if reason = strings.TrimSpace(reason); reason != "" {
		author.Text = reason
		author.CreatedAt = at
		t.Remarks = append(t.Remarks, author)
	}
	return nil
}

// Miss abandons a waiting ticket.
func (t *Ticket) Miss() error {
	if err := t.guard(ActionMissed); err != nil {
		return err
	}
	t.Status = TicketStatusMissed
	t.CounterID = nil
	return nil
}

// AppendRemark adds a staff note; terminal tickets are closed for notes.
func (t *Ticket) AppendRemark(remark Remark) error {
	if t.Status.Terminal() {
		return apperrors.NewInvalidTransition("remarks are closed for finished tickets", map[string]any{
			"ticket_id": t.ID,
			"status":    t.Status,
		})
	}
	remark.Text = strings.TrimSpace(remark.Text)
	if remark.Text == "" {
		return apperrors.NewValidationError("remark text required", map[string]any{"ticket_id": t.ID})
	}
	t.Remarks = append(t.Remarks, remark)
	return nil
}
