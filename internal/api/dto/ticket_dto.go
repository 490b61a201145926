package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/branch-queue/internal/domain"
)

// CustomerRequest is the optional customer profile captured at the kiosk.
type CustomerRequest struct {
	Name       string `json:"name" validate:"max=120"`
	Segment    string `json:"segment" validate:"omitempty,segment"`
	Phone      string `json:"phone" validate:"max=32"`
	Email      string `json:"email" validate:"omitempty,email"`
	CustomerNo string `json:"customer_no" validate:"max=64"`
}

// Domain converts the request.
func (r *CustomerRequest) Domain() *domain.Customer {
	if r == nil {
		return nil
	}
	return &domain.Customer{
		Name:       strings.TrimSpace(r.Name),
		Segment:    domain.CustomerSegment(strings.ToUpper(r.Segment)),
		Phone:      r.Phone,
		Email:      r.Email,
		CustomerNo: r.CustomerNo,
	}
}

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	ServiceType ServiceTypeField `json:"service_type" validate:"required,service_type"`
	BranchID    *string          `json:"branch_id" validate:"omitempty,min=1"`
	Customer    *CustomerRequest `json:"customer" validate:"omitempty"`
}

// CallTicketRequest calls a specific ticket to a counter.
type CallTicketRequest struct {
	CounterID string `json:"counter_id" validate:"required"`
}

// TransferRequest re-queues a ticket under another service.
type TransferRequest struct {
	ServiceType     ServiceTypeField `json:"service_type" validate:"required,service_type"`
	TargetCounterID *string          `json:"target_counter_id" validate:"omitempty,min=1"`
}

// MoveToEndRequest carries the reason recorded in the remarks.
type MoveToEndRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// RemarkRequest appends a staff note.
type RemarkRequest struct {
	Text string `json:"text" validate:"required,max=1000"`
}

// TicketResponse exposes statuses and services by name and wire code.
type TicketResponse struct {
	ID              string              `json:"id"`
	Number          string              `json:"number"`
	ServiceType     domain.ServiceType  `json:"service_type"`
	ServiceTypeCode int                 `json:"service_type_code"`
	Status          domain.TicketStatus `json:"status"`
	StatusCode      int                 `json:"status_code"`
	BranchID        *string             `json:"branch_id"`
	CounterID       *string             `json:"counter_id"`
	PriorityScore   int                 `json:"priority_score"`
	RecallCount     int                 `json:"recall_count"`
	Customer        *domain.Customer    `json:"customer,omitempty"`
	Remarks         []domain.Remark     `json:"remarks"`
	CreatedAt       time.Time           `json:"created_at"`
	CalledAt        *time.Time          `json:"called_at"`
	CompletedAt     *time.Time          `json:"completed_at"`
	RequeuedAt      *time.Time          `json:"requeued_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int64               `json:"version"`
}

// NewTicketResponse maps a ticket.
func NewTicketResponse(t *domain.Ticket) *TicketResponse {
	if t == nil {
		return nil
	}
	remarks := t.Remarks
	if remarks == nil {
		remarks = []domain.Remark{}
	}
	return &TicketResponse{
		ID:              t.ID,
		Number:          t.Number,
		ServiceType:     t.ServiceType,
		ServiceTypeCode: domain.ServiceTypeCode(t.ServiceType),
		Status:          t.Status,
		StatusCode:      domain.TicketStatusCode(t.Status),
		BranchID:        t.BranchID,
		CounterID:       t.CounterID,
		PriorityScore:   t.PriorityScore,
		RecallCount:     t.RecallCount,
		Customer:        t.Customer,
		Remarks:         remarks,
		CreatedAt:       t.CreatedAt,
		CalledAt:        t.CalledAt,
		CompletedAt:     t.CompletedAt,
		RequeuedAt:      t.RequeuedAt,
		UpdatedAt:       t.UpdatedAt,
		Version:         t.Version,
	}
}

// QueueEntryResponse is one row of a branch queue snapshot.
type QueueEntryResponse struct {
	Position int             `json:"position"`
	Ticket   *TicketResponse `json:"ticket"`
}
