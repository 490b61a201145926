package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// CounterService manages counter availability and lookups.
type CounterService struct {
	core
}

// CounterDependencies bundles collaborators.
type CounterDependencies struct {
	Runtime Runtime
}

// NewCounterService constructs the service.
func NewCounterService(deps CounterDependencies) *CounterService {
	return &CounterService{core: newCore(deps.Runtime)}
}

// SetStatus changes counter availability. Moving into or out of OFFLINE needs
// a supervisor. An in-progress ticket stays bound.
func (s *CounterService) SetStatus(ctx context.Context, counterID string, status domain.CounterStatus, actor domain.Actor) (counter *domain.Counter, err error) {
	ctx, span, cancel := s.begin(ctx, "counters.SetStatus",
		attribute.String("counter.id", counterID), attribute.String("status", string(status)))
	defer cancel()
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown counter status", map[string]any{
			"counter_id": counterID,
			"status":     status,
		})
	}

	unlock, err := s.locks.Lock(ctx, counterKey(counterID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlock()

	var previous domain.CounterStatus
	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if counter, err = repos.Counters.GetByID(ctx, counterID); err != nil {
			return err
		}
		previous = counter.Status
		if previous == status {
			return nil
		}
		if (previous == domain.CounterStatusOffline || status == domain.CounterStatusOffline) && !actor.Role.Supervises() {
			return apperrors.NewForbidden("only supervisors may take counters offline or back")
		}
		if !actor.Role.Supervises() && actor.BranchID != nil && *actor.BranchID != counter.BranchID {
			return apperrors.NewForbidden("counter belongs to another branch")
		}
		counter.Status = status
		return repos.Counters.Update(ctx, counter)
	})
	if err != nil {
		return nil, err
	}
	if previous == status {
		return counter, nil
	}

	s.publish(ctx, counterEvent(counter, actor, "status"))
	s.logger.Info("counter status changed",
		zap.String("counter_id", counter.ID),
		zap.String("branch_id", counter.BranchID),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	return counter, nil
}

// GetCounter fetches one counter.
func (s *CounterService) GetCounter(ctx context.Context, id string) (*domain.Counter, error) {
	counter, err := s.store.Repositories().Counters.GetByID(ctx, id)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return counter, nil
}

// ListByBranch lists a branch's counters by name.
func (s *CounterService) ListByBranch(ctx context.Context, branchID string) ([]*domain.Counter, error) {
	counters, err := s.store.Repositories().Counters.ListByBranch(ctx, branchID)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return counters, nil
}

// CurrentTicket returns the ticket the counter is serving, or nil when free.
func (s *CounterService) CurrentTicket(ctx context.Context, counterID string) (*domain.Ticket, error) {
	return s.boundTicket(ctx, counterID, func(c *domain.Counter) *string { return c.CurrentTicketID })
}

// LastServedTicket returns the most recently completed ticket of the counter.
func (s *CounterService) LastServedTicket(ctx context.Context, counterID string) (*domain.Ticket, error) {
	return s.boundTicket(ctx, counterID, func(c *domain.Counter) *string { return c.LastServedTicketID })
}

func (s *CounterService) boundTicket(ctx context.Context, counterID string, pick func(*domain.Counter) *string) (*domain.Ticket, error) {
	repos := s.store.Repositories()
	counter, err := repos.Counters.GetByID(ctx, counterID)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	id := pick(counter)
	if id == nil {
		return nil, nil
	}
	ticket, err := repos.Tickets.GetByID(ctx, *id)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return ticket, nil
}
