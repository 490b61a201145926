package dto

import (
	"time"

	"github.com/spec-kit/branch-queue/internal/domain"
)

// SetCounterStatusRequest payload.
type SetCounterStatusRequest struct {
	Status domain.CounterStatus `json:"status" validate:"required,oneof=ONLINE OFFLINE PAUSED"`
}

// AssignStaffRequest binds a staff member; a null user_id unassigns.
type AssignStaffRequest struct {
	UserID *string `json:"user_id" validate:"omitempty,min=1"`
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// CounterResponse describes a counter.
type CounterResponse struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	BranchID           string               `json:"branch_id"`
	Status             domain.CounterStatus `json:"status"`
	ServiceTags        []domain.ServiceType `json:"service_tags"`
	ServiceTagCodes    []int                `json:"service_tag_codes"`
	CurrentTicketID    *string              `json:"current_ticket_id"`
	LastServedTicketID *string              `json:"last_served_ticket_id"`
	AssignedUserID     *string              `json:"assigned_user_id"`
	AssignedUserName   *string              `json:"assigned_user_name"`
	UpdatedAt          time.Time            `json:"updated_at"`
	Version            int64                `json:"version"`
}

// NewCounterResponse maps a counter.
func NewCounterResponse(c *domain.Counter) *CounterResponse {
	if c == nil {
		return nil
	}
	tags := append([]domain.ServiceType{}, c.ServiceTags...)
	codes := make([]int, 0, len(tags))
	for _, tag := range tags {
		codes = append(codes, domain.ServiceTypeCode(tag))
	}
	return &CounterResponse{
		ID:                 c.ID,
		Name:               c.Name,
		BranchID:           c.BranchID,
		Status:             c.Status,
		ServiceTags:        tags,
		ServiceTagCodes:    codes,
		CurrentTicketID:    c.CurrentTicketID,
		LastServedTicketID: c.LastServedTicketID,
		AssignedUserID:     c.AssignedUserID,
		AssignedUserName:   c.AssignedUserName,
		UpdatedAt:          c.UpdatedAt,
		Version:            c.Version,
	}
}

// CallResultResponse is returned by call-next; ticket is null when idle.
type CallResultResponse struct {
	Counter *CounterResponse `json:"counter"`
	Ticket  *TicketResponse  `json:"ticket"`
}

// AuditEntryResponse is one assignment audit row.
type AuditEntryResponse struct {
	ID                  string                  `json:"id"`
	CounterID           string                  `json:"counter_id"`
	CounterName         string                  `json:"counter_name"`
	BranchID            string                  `json:"branch_id"`
	Action              domain.AssignmentAction `json:"action"`
	UserID              *string                 `json:"user_id"`
	UserName            *string                 `json:"user_name"`
	UserEmail           *string                 `json:"user_email"`
	PreviousUserID      *string                 `json:"previous_user_id"`
	PreviousUserName    *string                 `json:"previous_user_name"`
	PerformedByUserID   string                  `json:"performed_by_user_id"`
	PerformedByUserName string                  `json:"performed_by_user_name"`
	Reason              *string                 `json:"reason"`
	IPAddress           *string                 `json:"ip_address"`
	Timestamp           time.Time               `json:"timestamp"`
}

// NewAuditEntryResponse maps an audit entry.
func NewAuditEntryResponse(e *domain.CounterAssignmentAuditEntry) AuditEntryResponse {
	return AuditEntryResponse{
		ID:                  e.ID,
		CounterID:           e.CounterID,
		CounterName:         e.CounterName,
		BranchID:            e.BranchID,
		Action:              e.Action,
		UserID:              e.UserID,
		UserName:            e.UserName,
		UserEmail:           e.UserEmail,
		PreviousUserID:      e.PreviousUserID,
		PreviousUserName:    e.PreviousUserName,
		PerformedByUserID:   e.PerformedByUserID,
		PerformedByUserName: e.PerformedByUserName,
		Reason:              e.Reason,
		IPAddress:           e.IPAddress,
		Timestamp:           e.Timestamp,
	}
}

// AssignmentResponse reports the counters and audit rows an assignment touched.
type AssignmentResponse struct {
	Counter         *CounterResponse     `json:"counter"`
	ReleasedCounter *CounterResponse     `json:"released_counter,omitempty"`
	Entries         []AuditEntryResponse `json:"entries"`
}
