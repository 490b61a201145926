package domain

import "time"

// AssignmentAction captures what an assignment mutation did to a counter.
type AssignmentAction string

const (
	AssignmentAssigned   AssignmentAction = "ASSIGNED"
	AssignmentReassigned AssignmentAction = "REASSIGNED"
	AssignmentUnassigned AssignmentAction = "UNASSIGNED"
)

// CounterAssignmentAuditEntry is an immutable audit trail entry.
type CounterAssignmentAuditEntry struct {
	ID                  string
	CounterID           string
	CounterName         string
	UserID              *string
	UserName            *string
	UserEmail           *string
	PreviousUserID      *string
	PreviousUserName    *string
	Action              AssignmentAction
	BranchID            string
	PerformedByUserID   string
	PerformedByUserName string
	Timestamp           time.Time
	Reason              *string
	IPAddress           *string
}
