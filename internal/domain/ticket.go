package domain

import "time"

// ServiceType enumerates the branch services a ticket can be issued for.
type ServiceType string

const (
	ServiceDeposit      ServiceType = "DEPOSIT"
	ServiceWithdrawal   ServiceType = "WITHDRAWAL"
	ServiceLoan         ServiceType = "LOAN"
	ServiceConsultation ServiceType = "CONSULTATION"
	ServiceVIP          ServiceType = "VIP"
)

// ServiceTypes lists every service type in wire-code order.
var ServiceTypes = []ServiceType{ServiceDeposit, ServiceWithdrawal, ServiceLoan, ServiceConsultation, ServiceVIP}

// Valid reports whether s is a known service type.
func (s ServiceType) Valid() bool {
	for _, candidate := range ServiceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusWaiting     TicketStatus = "WAITING"
	TicketStatusCalled      TicketStatus = "CALLED"
	TicketStatusServing     TicketStatus = "SERVING"
	TicketStatusCompleted   TicketStatus = "COMPLETED"
	TicketStatusMissed      TicketStatus = "MISSED"
	TicketStatusTransferred TicketStatus = "TRANSFERRED"
)

// TicketStatuses lists every status in wire-code order.
var TicketStatuses = []TicketStatus{
	TicketStatusWaiting,
	TicketStatusCalled,
	TicketStatusServing,
	TicketStatusCompleted,
	TicketStatusMissed,
	TicketStatusTransferred,
}

// Valid reports whether s is a known status.
func (s TicketStatus) Valid() bool {
	for _, candidate := range TicketStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition leaves s.
func (s TicketStatus) Terminal() bool {
	return s == TicketStatusCompleted || s == TicketStatusMissed
}

// Active reports whether a ticket in s occupies a counter.
func (s TicketStatus) Active() bool {
	return s == TicketStatusCalled || s == TicketStatusServing
}

// CustomerSegment classifies customers for priority bonuses.
type CustomerSegment string

const (
	SegmentStandard CustomerSegment = "STANDARD"
	SegmentSenior   CustomerSegment = "SENIOR"
	SegmentPremium  CustomerSegment = "PREMIUM"
	SegmentPrivate  CustomerSegment = "PRIVATE"
)

// Valid reports whether s is a known segment. The empty segment is treated as STANDARD.
func (s CustomerSegment) Valid() bool {
	switch s {
	case "", SegmentStandard, SegmentSenior, SegmentPremium, SegmentPrivate:
		return true
	}
	return false
}

// Customer is the optional profile attached to a ticket.
type Customer struct {
	Name       string          `json:"name,omitempty"`
	Segment    CustomerSegment `json:"segment,omitempty"`
	Phone      string          `json:"phone,omitempty"`
	Email      string          `json:"email,omitempty"`
	CustomerNo string          `json:"customer_no,omitempty"`
}

// Remark is one append-only note left by serving staff.
type Remark struct {
	Text       string    `json:"text"`
	AuthorID   string    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Ticket is a customer's place in line for a specific service.
type Ticket struct {
	ID            string
	Number        string
	ServiceType   ServiceType
	Status        TicketStatus
	BranchID      *string
	CounterID     *string
	PriorityScore int
	RecallCount   int
	Customer      *Customer
	Remarks       []Remark
	CreatedAt     time.Time
	CalledAt      *time.Time
	CompletedAt   *time.Time
	RequeuedAt    *time.Time
	UpdatedAt     time.Time
	Version       int64
}

// WaitStart is the instant the ticket's current wait began; re-queued tickets use RequeuedAt.
func (t *Ticket) WaitStart() time.Time {
	if t.RequeuedAt != nil {
		return *t.RequeuedAt
	}
	return t.CreatedAt
}

// Segment returns the customer segment or STANDARD for anonymous tickets.
func (t *Ticket) Segment() CustomerSegment {
	if t.Customer == nil || t.Customer.Segment == "" {
		return SegmentStandard
	}
	return t.Customer.Segment
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	out := *t
	out.BranchID = cloneString(t.BranchID)
	out.CounterID = cloneString(t.CounterID)
	out.CalledAt = cloneTime(t.CalledAt)
	out.CompletedAt = cloneTime(t.CompletedAt)
	out.RequeuedAt = cloneTime(t.RequeuedAt)
	if t.Customer != nil {
		customer := *t.Customer
		out.Customer = &customer
	}
	if t.Remarks != nil {
		out.Remarks = append([]Remark(nil), t.Remarks...)
	}
	return &out
}

func cloneString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
