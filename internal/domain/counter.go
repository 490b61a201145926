package domain

import "time"

// CounterStatus enumerates counter availability.
type CounterStatus string

const (
	CounterStatusOnline  CounterStatus = "ONLINE"
	CounterStatusOffline CounterStatus = "OFFLINE"
	CounterStatusPaused  CounterStatus = "PAUSED"
)

// Valid reports whether s is a known counter status.
func (s CounterStatus) Valid() bool {
	switch s {
	case CounterStatusOnline, CounterStatusOffline, CounterStatusPaused:
		return true
	}
	return false
}

// Counter is a physical service point staffed by one teller at a time.
type Counter struct {
	ID                 string
	Name               string
	BranchID           string
	Status             CounterStatus
	ServiceTags        []ServiceType
	CurrentTicketID    *string
	LastServedTicketID *string
	AssignedUserID     *string
	AssignedUserName   *string
	UpdatedAt          time.Time
	Version            int64
}

// HasTag reports whether the counter is tagged for s.
func (c *Counter) HasTag(s ServiceType) bool {
	for _, tag := range c.ServiceTags {
		if tag == s {
			return true
		}
	}
	return false
}

// Bind records ticketID as the counter's active ticket.
func (c *Counter) Bind(ticketID string) {
	c.CurrentTicketID = &ticketID
}

// Unbind clears the active ticket. When served is true the ticket is kept as
// the last served one for feedback flows.
func (c *Counter) Unbind(served bool) {
	if served && c.CurrentTicketID != nil {
		last := *c.CurrentTicketID
		c.LastServedTicketID = &last
	}
	c.CurrentTicketID = nil
}

// Clone returns a deep copy.
func (c *Counter) Clone() *Counter {
	if c == nil {
		return nil
	}
	out := *c
	out.ServiceTags = append([]ServiceType(nil), c.ServiceTags...)
	out.CurrentTicketID = cloneString(c.CurrentTicketID)
	out.LastServedTicketID = cloneString(c.LastServedTicketID)
	out.AssignedUserID = cloneString(c.AssignedUserID)
	out.AssignedUserName = cloneString(c.AssignedUserName)
	return &out
}
