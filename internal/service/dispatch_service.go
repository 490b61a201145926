package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/dispatch"
	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/observability"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// DispatchService matches counters with waiting tickets and drives every
// ticket transition that touches a counter binding.
type DispatchService struct {
	core
	catalog   *registry.Catalog
	batchSize int
}

// DispatchDependencies bundles collaborators for the dispatch engine.
type DispatchDependencies struct {
	Runtime            Runtime
	Catalog            *registry.Catalog
	CandidateBatchSize int
}

// CallResult is the outcome of a call. Ticket is nil when the counter is idle.
type CallResult struct {
	Counter *domain.Counter
	Ticket  *domain.Ticket
}

// TransferInput describes where a ticket is transferred to.
type TransferInput struct {
	ServiceType     domain.ServiceType
	TargetCounterID *string
}

// NewDispatchService constructs the engine.
func NewDispatchService(deps DispatchDependencies) *DispatchService {
	batch := deps.CandidateBatchSize
	if batch <= 0 {
		batch = 20
	}
	catalog := deps.Catalog
	if catalog == nil {
		catalog = registry.DefaultCatalog()
	}
	return &DispatchService{core: newCore(deps.Runtime), catalog: catalog, batchSize: batch}
}

// CallNext claims the best eligible waiting ticket for counterID. The counter
// must be ONLINE and free. Candidates are read without row locks; a claim lost
// to another dispatcher fails the version check in Update and is retried.
func (s *DispatchService) CallNext(ctx context.Context, counterID string, actor domain.Actor) (result *CallResult, err error) {
	ctx, span, cancel := s.begin(ctx, "dispatch.CallNext", attribute.String("counter.id", counterID))
	defer cancel()
	defer func() { endSpan(span, err) }()

	unlockCounter, err := s.locks.Lock(ctx, counterKey(counterID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlockCounter()

	branchID := ""
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		var (
			claimed       *domain.Ticket
			counter       *domain.Counter
			unlockTicket  func()
			skippedLocked bool
		)
		err = s.store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			var err error
			counter, err = repos.Counters.GetByID(ctx, counterID)
			if err != nil {
				return err
			}
			branchID = counter.BranchID
			if err := ensureCounterFree(counter); err != nil {
				return err
			}

			waiting, err := repos.Tickets.ListWaiting(ctx, repository.WaitingQuery{
				BranchID:     counter.BranchID,
				CounterID:    counter.ID,
				ServiceTypes: counter.ServiceTags,
				Limit:        s.batchSize,
			})
			if err != nil {
				return err
			}
			for _, candidate := range dispatch.Candidates(counter, waiting) {
				unlock, ok := s.locks.TryLock(ticketKey(candidate.ID))
				if !ok {
					skippedLocked = true
					continue
				}
				if err := s.claim(ctx, repos, counter, candidate); err != nil {
					unlock()
					return err
				}
				claimed, unlockTicket = candidate, unlock
				return nil
			}
			return nil
		})
		if err != nil {
			if unlockTicket != nil {
				unlockTicket()
			}
			if apperrors.IsConflict(err) {
				s.metrics.RecordDispatch(branchID, observability.DispatchConflict)
				if waitErr := backoff(ctx, attempt); waitErr != nil {
					return nil, wrapTimeout(waitErr)
				}
				continue
			}
			return nil, wrapTimeout(err)
		}

		if claimed == nil {
			if skippedLocked {
				s.metrics.RecordDispatch(branchID, observability.DispatchConflict)
				if waitErr := backoff(ctx, attempt); waitErr != nil {
					return nil, wrapTimeout(waitErr)
				}
				continue
			}
			s.metrics.RecordDispatch(branchID, observability.DispatchIdle)
			return &CallResult{Counter: counter}, nil
		}

		s.publish(ctx, calledEvents(counter, claimed, actor, false)...)
		unlockTicket()
		s.metrics.RecordDispatch(branchID, observability.DispatchClaimed)
		s.logger.Info("ticket called",
			zap.String("ticket_id", claimed.ID),
			zap.String("number", claimed.Number),
			zap.String("counter_id", counter.ID),
			zap.String("branch_id", counter.BranchID))
		span.SetAttributes(attribute.String("ticket.id", claimed.ID))
		return &CallResult{Counter: counter, Ticket: claimed}, nil
	}

	s.metrics.RecordDispatch(branchID, observability.DispatchGaveUp)
	return nil, apperrors.NewConflict("dispatch contention, retry the call", map[string]any{"counter_id": counterID})
}

// CallTicket calls one specific waiting ticket to counterID, bypassing queue
// order but not eligibility.
func (s *DispatchService) CallTicket(ctx context.Context, ticketID, counterID string, actor domain.Actor) (result *CallResult, err error) {
	ctx, span, cancel := s.begin(ctx, "dispatch.CallTicket",
		attribute.String("ticket.id", ticketID), attribute.String("counter.id", counterID))
	defer cancel()
	defer func() { endSpan(span, err) }()

	unlockTicket, err := s.locks.Lock(ctx, ticketKey(ticketID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlockTicket()
	unlockCounter, err := s.locks.Lock(ctx, counterKey(counterID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlockCounter()

	var counter *domain.Counter
	var ticket *domain.Ticket
	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByID(ctx, ticketID); err != nil {
			return err
		}
		if counter, err = repos.Counters.GetByID(ctx, counterID); err != nil {
			return err
		}
		if err := ensureCounterFree(counter); err != nil {
			return err
		}
		if ticket.Status != domain.TicketStatusWaiting {
			return apperrors.NewInvalidTransition("ticket is not waiting", map[string]any{
				"ticket_id": ticket.ID,
				"status":    ticket.Status,
			})
		}
		if !dispatch.Eligible(counter, ticket) {
			return apperrors.NewValidationError("counter cannot serve this ticket", map[string]any{
				"ticket_id":  ticket.ID,
				"counter_id": counter.ID,
			})
		}
		return s.claim(ctx, repos, counter, ticket)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, calledEvents(counter, ticket, actor, false)...)
	return &CallResult{Counter: counter, Ticket: ticket}, nil
}

func (s *DispatchService) claim(ctx context.Context, repos repository.Repositories, counter *domain.Counter, ticket *domain.Ticket) error {
	if err := ticket.Call(counter.ID, s.clock()); err != nil {
		return err
	}
	if err := repos.Tickets.Update(ctx, ticket); err != nil {
		return err
	}
	counter.Bind(ticket.ID)
	return repos.Counters.Update(ctx, counter)
}

func ensureCounterFree(counter *domain.Counter) error {
	if counter.Status != domain.CounterStatusOnline {
		return apperrors.NewInvalidTransition("counter is not online", map[string]any{
			"counter_id": counter.ID,
			"status":     counter.Status,
		})
	}
	if counter.CurrentTicketID != nil {
		return apperrors.NewInvalidTransition("counter already holds a ticket", map[string]any{
			"counter_id": counter.ID,
			"ticket_id":  *counter.CurrentTicketID,
		})
	}
	return nil
}

// Recall announces an active ticket again.
func (s *DispatchService) Recall(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionRecall, func(_ context.Context, _ repository.Repositories, m *mutation) error {
		return m.ticket.Recall()
	})
}

// BeginService marks the called customer as being served.
func (s *DispatchService) BeginService(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionBeginService, func(_ context.Context, _ repository.Repositories, m *mutation) error {
		return m.ticket.BeginService()
	})
}

// Complete finishes service and frees the counter.
func (s *DispatchService) Complete(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionComplete, func(_ context.Context, _ repository.Repositories, m *mutation) error {
		if err := m.ticket.Complete(s.clock()); err != nil {
			return err
		}
		m.release(true)
		return nil
	})
}

// Transfer re-queues the ticket under another service, optionally pinned to a counter.
func (s *DispatchService) Transfer(ctx context.Context, ticketID string, input TransferInput, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionTransfer, func(ctx context.Context, repos repository.Repositories, m *mutation) error {
		priority, err := s.catalog.Priority(input.ServiceType, m.ticket.Segment())
		if err != nil {
			return err
		}
		if input.TargetCounterID != nil {
			if err := s.checkTransferTarget(ctx, repos, m, *input.TargetCounterID, input.ServiceType); err != nil {
				return err
			}
		}
		if err := m.ticket.Transfer(input.ServiceType, priority, input.TargetCounterID, s.clock()); err != nil {
			return err
		}
		m.release(false)
		return nil
	})
}

func (s *DispatchService) checkTransferTarget(ctx context.Context, repos repository.Repositories, m *mutation, targetID string, service domain.ServiceType) error {
	target, err := repos.Counters.GetByID(ctx, targetID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.NewValidationError("target counter does not exist", map[string]any{"counter_id": targetID})
		}
		return err
	}
	branch := deref(m.ticket.BranchID)
	if branch == "" && m.counter != nil {
		branch = m.counter.BranchID
	}
	if branch != "" && target.BranchID != branch {
		return apperrors.NewValidationError("target counter belongs to another branch", map[string]any{
			"counter_id": targetID,
			"branch_id":  branch,
		})
	}
	if !dispatch.CanServe(target, service) {
		return apperrors.NewValidationError("target counter does not serve this service", map[string]any{
			"counter_id":   targetID,
			"service_type": service,
		})
	}
	return nil
}

// MoveToEnd demotes the ticket behind every ticket already waiting for a
// counter that could serve it: its score drops to the lowest score among them
// and its wait restarts now.
func (s *DispatchService) MoveToEnd(ctx context.Context, ticketID, reason string, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionMoveToEnd, func(ctx context.Context, repos repository.Repositories, m *mutation) error {
		floor, ok, err := s.demotionFloor(ctx, repos, m)
		if err != nil {
			return err
		}
		author := domain.Remark{AuthorID: actor.UserID, AuthorName: actor.FullName}
		if err := m.ticket.MoveToEnd(strings.TrimSpace(reason), author, s.clock()); err != nil {
			return err
		}
		if ok && floor < m.ticket.PriorityScore {
			m.ticket.PriorityScore = floor
		}
		m.release(false)
		return nil
	})
}

// demotionFloor is the lowest score among waiting tickets that compete with
// m.ticket at any counter of its branch able to serve it.
func (s *DispatchService) demotionFloor(ctx context.Context, repos repository.Repositories, m *mutation) (int, bool, error) {
	branchID := deref(m.ticket.BranchID)
	if branchID == "" && m.counter != nil {
		branchID = m.counter.BranchID
	}
	var scopes []*domain.Counter
	if branchID != "" {
		counters, err := repos.Counters.ListByBranch(ctx, branchID)
		if err != nil {
			return 0, false, err
		}
		for _, counter := range counters {
			if dispatch.CanServe(counter, m.ticket.ServiceType) {
				scopes = append(scopes, counter)
			}
		}
	}
	if len(scopes) == 0 && m.counter != nil {
		scopes = append(scopes, m.counter)
	}

	lowest, found := 0, false
	for _, counter := range scopes {
		score, ok, err := repos.Tickets.LowestWaitingPriority(ctx, repository.WaitingQuery{
			BranchID:     counter.BranchID,
			CounterID:    counter.ID,
			ServiceTypes: counter.ServiceTags,
		})
		if err != nil {
			return 0, false, err
		}
		if ok && (!found || score < lowest) {
			lowest, found = score, true
		}
	}
	return lowest, found, nil
}

// MarkMissed abandons a waiting ticket. Nothing in the service schedules this.
func (s *DispatchService) MarkMissed(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error) {
	return s.mutate(ctx, ticketID, actor, domain.ActionMissed, func(_ context.Context, _ repository.Repositories, m *mutation) error {
		return m.ticket.Miss()
	})
}

// mutation is the working set of one ticket transition.
type mutation struct {
	ticket         *domain.Ticket
	counter        *domain.Counter
	counterChanged bool
}

// release unbinds the ticket from the counter it occupies.
func (m *mutation) release(served bool) {
	if m.counter == nil || m.counter.CurrentTicketID == nil || *m.counter.CurrentTicketID != m.ticket.ID {
		return
	}
	m.counter.Unbind(served)
	m.counterChanged = true
}

func (s *DispatchService) mutate(ctx context.Context, ticketID string, actor domain.Actor, action domain.TicketAction, apply func(ctx context.Context, repos repository.Repositories, m *mutation) error) (ticket *domain.Ticket, err error) {
	ctx, span, cancel := s.begin(ctx, "dispatch."+string(action), attribute.String("ticket.id", ticketID))
	defer cancel()
	defer func() { endSpan(span, err) }()

	unlockTicket, err := s.locks.Lock(ctx, ticketKey(ticketID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlockTicket()

	current, err := s.store.Repositories().Tickets.GetByID(ctx, ticketID)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	if current.Status.Active() && current.CounterID != nil {
		unlockCounter, err := s.locks.Lock(ctx, counterKey(*current.CounterID))
		if err != nil {
			return nil, wrapTimeout(err)
		}
		defer unlockCounter()
	}

	var m *mutation
	var previous domain.TicketStatus
	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		t, err := repos.Tickets.GetByID(ctx, ticketID)
		if err != nil {
			return err
		}
		previous = t.Status
		m = &mutation{ticket: t}
		if t.Status.Active() && t.CounterID != nil {
			counter, err := repos.Counters.GetByID(ctx, *t.CounterID)
			if err != nil && !apperrors.IsNotFound(err) {
				return err
			}
			m.counter = counter
		}
		if err := apply(ctx, repos, m); err != nil {
			return err
		}
		if err := repos.Tickets.Update(ctx, m.ticket); err != nil {
			return err
		}
		if m.counterChanged {
			return repos.Counters.Update(ctx, m.counter)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, s.transitionEvents(m, previous, action, actor)...)
	s.logger.Info("ticket transitioned",
		zap.String("ticket_id", m.ticket.ID),
		zap.String("action", string(action)),
		zap.String("from", string(previous)),
		zap.String("to", string(m.ticket.Status)))
	return m.ticket, nil
}

func (s *DispatchService) transitionEvents(m *mutation, previous domain.TicketStatus, action domain.TicketAction, actor domain.Actor) []events.Event {
	branchID := deref(m.ticket.BranchID)
	if branchID == "" && m.counter != nil {
		branchID = m.counter.BranchID
	}
	if action == domain.ActionRecall && m.counter != nil {
		return calledEvents(m.counter, m.ticket, actor, true)
	}

	out := []events.Event{{
		Type:      events.EventTicketUpdated,
		BranchID:  branchID,
		TicketID:  m.ticket.ID,
		CounterID: deref(m.ticket.CounterID),
		Actor:     events.ActorFrom(actor),
		Payload:   events.NewTicketPayload(m.ticket, previous, action),
	}}
	if m.counterChanged {
		out = append(out, counterEvent(m.counter, actor, string(action)))
	}
	return out
}

func calledEvents(counter *domain.Counter, ticket *domain.Ticket, actor domain.Actor, recall bool) []events.Event {
	branchID := deref(ticket.BranchID)
	if branchID == "" {
		branchID = counter.BranchID
	}
	out := []events.Event{{
		Type:      events.EventTicketCalled,
		BranchID:  branchID,
		TicketID:  ticket.ID,
		CounterID: counter.ID,
		Actor:     events.ActorFrom(actor),
		Payload: events.TicketCalledPayload{
			Number:      ticket.Number,
			CounterID:   counter.ID,
			CounterName: counter.Name,
			RecallCount: ticket.RecallCount,
			Recall:      recall,
		},
	}}
	if !recall {
		out = append(out, counterEvent(counter, actor, string(domain.ActionCall)))
	}
	return out
}

func counterEvent(counter *domain.Counter, actor domain.Actor, reason string) events.Event {
	return events.Event{
		Type:      events.EventCounterUpdated,
		BranchID:  counter.BranchID,
		CounterID: counter.ID,
		TicketID:  deref(counter.CurrentTicketID),
		Actor:     events.ActorFrom(actor),
		Payload:   events.NewCounterPayload(counter, reason),
	}
}
