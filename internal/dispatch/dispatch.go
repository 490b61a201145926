// Package dispatch holds the matching rules that decide which waiting ticket a
// counter serves next. It is pure: callers supply tickets and counters and
// apply the resulting claim inside their own transaction.
package dispatch

import (
	"sort"
	"strconv"

	"github.com/spec-kit/branch-queue/internal/domain"
)

// Eligible reports whether counter may serve ticket right now.
func Eligible(counter *domain.Counter, ticket *domain.Ticket) bool {
	if counter == nil || ticket == nil {
		return false
	}
	if ticket.Status != domain.TicketStatusWaiting {
		return false
	}
	if ticket.BranchID != nil && *ticket.BranchID != counter.BranchID {
		return false
	}
	if ticket.CounterID != nil && *ticket.CounterID != counter.ID {
		return false
	}
	return CanServe(counter, ticket.ServiceType)
}

// CanServe reports whether the counter's tags cover service. A VIP tag makes the
// counter eligible for VIP tickets regardless of its other tags.
func CanServe(counter *domain.Counter, service domain.ServiceType) bool {
	if service == domain.ServiceVIP {
		return counter.HasTag(domain.ServiceVIP)
	}
	return counter.HasTag(service)
}

// Before orders two waiting tickets: higher priority first, then the one whose
// current wait started earlier. Number and ID break remaining ties so the order
// is total.
func Before(a, b *domain.Ticket) bool {
	if a.PriorityScore != b.PriorityScore {
		return a.PriorityScore > b.PriorityScore
	}
	aw, bw := a.WaitStart(), b.WaitStart()
	if !aw.Equal(bw) {
		return aw.Before(bw)
	}
	as, aok := sequenceOf(a.Number)
	bs, bok := sequenceOf(b.Number)
	if aok && bok && as != bs {
		return as < bs
	}
	if a.Number != b.Number {
		return a.Number < b.Number
	}
	return a.ID < b.ID
}

// sequenceOf parses the trailing digits of a displayed number, so A1000
// follows A999.
func sequenceOf(number string) (int64, bool) {
	i := len(number)
	for i > 0 && number[i-1] >= '0' && number[i-1] <= '9' {
		i--
	}
	if i == len(number) {
		return 0, false
	}
	n, err := strconv.ParseInt(number[i:], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Candidates filters tickets down to those counter may serve, in dispatch order.
func Candidates(counter *domain.Counter, tickets []*domain.Ticket) []*domain.Ticket {
	out := make([]*domain.Ticket, 0, len(tickets))
	for _, ticket := range tickets {
		if Eligible(counter, ticket) {
			out = append(out, ticket)
		}
	}
	Sort(out)
	return out
}

// Sort orders tickets in place by dispatch priority.
func Sort(tickets []*domain.Ticket) {
	sort.SliceStable(tickets, func(i, j int) bool {
		return Before(tickets[i], tickets[j])
	})
}

// Next returns the ticket counter should be offered, or nil when none is eligible.
func Next(counter *domain.Counter, tickets []*domain.Ticket) *domain.Ticket {
	var best *domain.Ticket
	for _, ticket := range tickets {
		if !Eligible(counter, ticket) {
			continue
		}
		if best == nil || Before(ticket, best) {
			best = ticket
		}
	}
	return best
}
