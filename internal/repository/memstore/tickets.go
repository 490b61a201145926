package memstore

import (
	"context"
	"time"

	"github.com/spec-kit/branch-queue/internal/dispatch"
	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

type ticketRepo struct{ v view }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.tickets[ticket.ID]; exists {
			return apperrors.NewConflict("ticket already exists", map[string]any{"ticket_id": ticket.ID})
		}
		ticket.UpdatedAt = ticket.CreatedAt
		ticket.Version = 1
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.v.write(func(st *state) error {
		stored, ok := st.tickets[ticket.ID]
		if !ok {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		if stored.Version != ticket.Version {
			return apperrors.NewConflict("ticket was modified concurrently", map[string]any{"id": ticket.ID, "version": ticket.Version})
		}
		ticket.Version++
		ticket.UpdatedAt = time.Now().UTC()
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.v.read(func(st *state) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		out = ticket.Clone()
		return nil
	})
	return out, err
}

func (r ticketRepo) ListWaiting(_ context.Context, q repository.WaitingQuery) ([]*domain.Ticket, error) {
	var out []*domain.Ticket
	err := r.v.read(func(st *state) error {
		for _, ticket := range st.tickets {
			if matchWaiting(ticket, q) {
				out = append(out, ticket.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dispatch.Sort(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r ticketRepo) LowestWaitingPriority(_ context.Context, q repository.WaitingQuery) (lowest int, ok bool, err error) {
	err = r.v.read(func(st *state) error {
		for _, ticket := range st.tickets {
			if !matchWaiting(ticket, q) {
				continue
			}
			if !ok || ticket.PriorityScore < lowest {
				lowest, ok = ticket.PriorityScore, true
			}
		}
		return nil
	})
	return lowest, ok, err
}

func matchWaiting(ticket *domain.Ticket, q repository.WaitingQuery) bool {
	if ticket.Status != domain.TicketStatusWaiting {
		return false
	}
	if ticket.BranchID != nil && *ticket.BranchID != q.BranchID {
		return false
	}
	if ticket.CounterID != nil && *ticket.CounterID != q.CounterID {
		return false
	}
	return len(q.ServiceTypes) == 0 || containsService(q.ServiceTypes, ticket.ServiceType)
}

func (r ticketRepo) List(_ context.Context, filter repository.TicketFilter) ([]*domain.Ticket, error) {
	var out []*domain.Ticket
	err := r.v.read(func(st *state) error {
		for _, ticket := range st.tickets {
			if matchTicket(ticket, filter) {
				out = append(out, ticket.Clone())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	dispatch.Sort(out)
	return page(out, filter.Offset, filter.Limit, 50), nil
}

func matchTicket(ticket *domain.Ticket, filter repository.TicketFilter) bool {
	if filter.BranchID != nil {
		switch {
		case ticket.BranchID == nil:
			if !filter.IncludeBranchless {
				return false
			}
		case *ticket.BranchID != *filter.BranchID:
			return false
		}
	}
	if filter.CounterID != nil && (ticket.CounterID == nil || *ticket.CounterID != *filter.CounterID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if status == ticket.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(filter.ServiceTypes) > 0 && !containsService(filter.ServiceTypes, ticket.ServiceType) {
		return false
	}
	if filter.CreatedFrom != nil && ticket.CreatedAt.Before(*filter.CreatedFrom) {
		return false
	}
	if filter.CreatedTo != nil && ticket.CreatedAt.After(*filter.CreatedTo) {
		return false
	}
	return true
}

func containsService(types []domain.ServiceType, s domain.ServiceType) bool {
	for _, t := range types {
		if t == s {
			return true
		}
	}
	return false
}

func page[T any](items []T, offset, limit, fallback int) []T {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = fallback
	}
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
