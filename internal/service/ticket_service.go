package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/dispatch"
	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/numbering"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// BranchLookup resolves branch reference data.
type BranchLookup interface {
	Get(ctx context.Context, id string) (*domain.Branch, error)
}

type repoBranches struct{ repo repository.BranchRepository }

func (r repoBranches) Get(ctx context.Context, id string) (*domain.Branch, error) {
	return r.repo.GetByID(ctx, id)
}

// TicketService coordinates ticket issuance and lookups.
type TicketService struct {
	core
	catalog   *registry.Catalog
	sequencer *numbering.Sequencer
	branches  BranchLookup
	engine    *DispatchService
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Runtime   Runtime
	Catalog   *registry.Catalog
	Sequencer *numbering.Sequencer
	// Branches defaults to the store's branch repository.
	Branches BranchLookup
	Engine   *DispatchService
}

// CreateTicketInput describes a kiosk ticket request.
type CreateTicketInput struct {
	ServiceType domain.ServiceType
	BranchID    *string
	Customer    *domain.Customer
}

// TicketListFilter describes ticket listing filters.
type TicketListFilter struct {
	BranchID     *string
	CounterID    *string
	Statuses     []domain.TicketStatus
	ServiceTypes []domain.ServiceType
	Limit        int
	Offset       int
}

// TransitionRequest names one state machine edge and its arguments.
type TransitionRequest struct {
	Action      domain.TicketAction
	CounterID   *string
	ServiceType domain.ServiceType
	Reason      string
}

// QueueEntry is a waiting ticket with its position in dispatch order.
type QueueEntry struct {
	Position int
	Ticket   *domain.Ticket
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	catalog := deps.Catalog
	if catalog == nil {
		catalog = registry.DefaultCatalog()
	}
	sequencer := deps.Sequencer
	if sequencer == nil {
		sequencer = numbering.NewSequencer(catalog, nil)
	}
	branches := deps.Branches
	if branches == nil && deps.Runtime.Store != nil {
		branches = repoBranches{deps.Runtime.Store.Repositories().Branches}
	}
	return &TicketService{
		core:      newCore(deps.Runtime),
		catalog:   catalog,
		sequencer: sequencer,
		branches:  branches,
		engine:    deps.Engine,
	}
}

// CreateTicket issues a WAITING ticket with its number and priority score.
func (s *TicketService) CreateTicket(ctx context.Context, actor domain.Actor, input CreateTicketInput) (ticket *domain.Ticket, err error) {
	ctx, span, cancel := s.begin(ctx, "tickets.Create", attribute.String("service_type", string(input.ServiceType)))
	defer cancel()
	defer func() { endSpan(span, err) }()

	if !input.ServiceType.Valid() {
		return nil, apperrors.NewValidationError("unknown service type", map[string]any{"service_type": input.ServiceType})
	}
	segment := domain.SegmentStandard
	if input.Customer != nil {
		if !input.Customer.Segment.Valid() {
			return nil, apperrors.NewValidationError("unknown customer segment", map[string]any{"segment": input.Customer.Segment})
		}
		if input.Customer.Segment != "" {
			segment = input.Customer.Segment
		}
	}
	priority, err := s.catalog.Priority(input.ServiceType, segment)
	if err != nil {
		return nil, err
	}

	var branch *domain.Branch
	if input.BranchID != nil {
		if branch, err = s.resolveBranch(ctx, *input.BranchID); err != nil {
			return nil, wrapTimeout(err)
		}
	}

	ticket = &domain.Ticket{
		ID:            uuid.NewString(),
		ServiceType:   input.ServiceType,
		Status:        domain.TicketStatusWaiting,
		BranchID:      input.BranchID,
		PriorityScore: priority,
		Customer:      input.Customer,
		CreatedAt:     s.clock(),
	}
	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		number, err := s.sequencer.NextNumber(ctx, repos, input.ServiceType, branch)
		if err != nil {
			return err
		}
		ticket.Number = number
		return repos.Tickets.Create(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.Event{
		Type:     events.EventTicketCreated,
		BranchID: deref(ticket.BranchID),
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(actor),
		Payload:  events.NewTicketPayload(ticket, "", ""),
	})
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.ID),
		zap.String("number", ticket.Number),
		zap.String("branch_id", deref(ticket.BranchID)),
		zap.Int("priority", ticket.PriorityScore))
	return ticket, nil
}

func (s *TicketService) resolveBranch(ctx context.Context, id string) (*domain.Branch, error) {
	if s.branches == nil {
		return nil, apperrors.NewValidationError("branch registry unavailable", map[string]any{"branch_id": id})
	}
	branch, err := s.branches.Get(ctx, id)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.NewValidationError("unknown branch", map[string]any{"branch_id": id})
		}
		return nil, err
	}
	if !branch.Active {
		return nil, apperrors.NewValidationError("branch is inactive", map[string]any{"branch_id": id})
	}
	return branch, nil
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.store.Repositories().Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return ticket, nil
}

// ListTickets returns tickets matching filter.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]*domain.Ticket, error) {
	tickets, err := s.store.Repositories().Tickets.List(ctx, repository.TicketFilter{
		BranchID:     filter.BranchID,
		CounterID:    filter.CounterID,
		Statuses:     filter.Statuses,
		ServiceTypes: filter.ServiceTypes,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return tickets, nil
}

// QueueSnapshot lists a branch's waiting tickets in dispatch order. Branchless
// tickets are included since any branch may serve them.
func (s *TicketService) QueueSnapshot(ctx context.Context, branchID string, limit int) ([]QueueEntry, error) {
	waiting, err := s.store.Repositories().Tickets.List(ctx, repository.TicketFilter{
		BranchID:          &branchID,
		IncludeBranchless: true,
		Statuses:          []domain.TicketStatus{domain.TicketStatusWaiting},
		Limit:             500,
	})
	if err != nil {
		return nil, wrapTimeout(err)
	}
	dispatch.Sort(waiting)
	if limit > 0 && len(waiting) > limit {
		waiting = waiting[:limit]
	}
	out := make([]QueueEntry, 0, len(waiting))
	for i, ticket := range waiting {
		out = append(out, QueueEntry{Position: i + 1, Ticket: ticket})
	}
	return out, nil
}

// Transition applies one state machine edge through the dispatch engine so
// counter bindings stay consistent.
func (s *TicketService) Transition(ctx context.Context, ticketID string, req TransitionRequest, actor domain.Actor) (*domain.Ticket, error) {
	if s.engine == nil {
		return nil, apperrors.NewInternalError(errEngineMissing)
	}
	switch req.Action {
	case domain.ActionCall:
		if req.CounterID == nil || strings.TrimSpace(*req.CounterID) == "" {
			return nil, apperrors.NewValidationError("counter id required", map[string]any{"ticket_id": ticketID})
		}
		result, err := s.engine.CallTicket(ctx, ticketID, *req.CounterID, actor)
		if err != nil {
			return nil, err
		}
		return result.Ticket, nil
	case domain.ActionBeginService:
		return s.engine.BeginService(ctx, ticketID, actor)
	case domain.ActionRecall:
		return s.engine.Recall(ctx, ticketID, actor)
	case domain.ActionComplete:
		return s.engine.Complete(ctx, ticketID, actor)
	case domain.ActionTransfer:
		if !req.ServiceType.Valid() {
			return nil, apperrors.NewValidationError("unknown service type", map[string]any{
				"ticket_id":    ticketID,
				"service_type": req.ServiceType,
			})
		}
		return s.engine.Transfer(ctx, ticketID, TransferInput{ServiceType: req.ServiceType, TargetCounterID: req.CounterID}, actor)
	case domain.ActionMoveToEnd:
		return s.engine.MoveToEnd(ctx, ticketID, req.Reason, actor)
	case domain.ActionMissed:
		return s.engine.MarkMissed(ctx, ticketID, actor)
	default:
		return nil, apperrors.NewInvalidTransition("unknown action", map[string]any{
			"ticket_id": ticketID,
			"action":    req.Action,
		})
	}
}

// AppendRemark adds a staff note to a non-terminal ticket.
func (s *TicketService) AppendRemark(ctx context.Context, ticketID, text string, actor domain.Actor) (ticket *domain.Ticket, err error) {
	ctx, span, cancel := s.begin(ctx, "tickets.AppendRemark", attribute.String("ticket.id", ticketID))
	defer cancel()
	defer func() { endSpan(span, err) }()

	unlock, err := s.locks.Lock(ctx, ticketKey(ticketID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlock()

	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		var err error
		if ticket, err = repos.Tickets.GetByID(ctx, ticketID); err != nil {
			return err
		}
		remark := domain.Remark{Text: text, AuthorID: actor.UserID, AuthorName: actor.FullName, CreatedAt: s.clock()}
		if err := ticket.AppendRemark(remark); err != nil {
			return err
		}
		return repos.Tickets.Update(ctx, ticket)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.Event{
		Type:      events.EventTicketUpdated,
		BranchID:  deref(ticket.BranchID),
		TicketID:  ticket.ID,
		CounterID: deref(ticket.CounterID),
		Actor:     events.ActorFrom(actor),
		Payload:   events.NewTicketPayload(ticket, ticket.Status, ""),
	})
	return ticket, nil
}
