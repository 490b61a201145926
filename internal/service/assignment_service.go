package service

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

// AssignmentService binds staff members to counters and keeps the audit trail.
type AssignmentService struct {
	core
}

// AssignmentDependencies bundles collaborators.
type AssignmentDependencies struct {
	Runtime Runtime
}

// AssignStaffInput describes an assignment mutation. A nil UserID unassigns.
type AssignStaffInput struct {
	CounterID   string
	UserID      *string
	PerformedBy domain.Actor
	Reason      *string
	IPAddress   *string
}

// AssignmentResult reports what changed. Entries is empty for a no-op.
type AssignmentResult struct {
	Counter         *domain.Counter
	ReleasedCounter *domain.Counter
	Entries         []*domain.CounterAssignmentAuditEntry
}

// AuditListFilter narrows audit listings.
type AuditListFilter = repository.AuditFilter

// NewAssignmentService creates the service.
func NewAssignmentService(deps AssignmentDependencies) *AssignmentService {
	return &AssignmentService{core: newCore(deps.Runtime)}
}

// AssignStaff assigns, reassigns or unassigns the staff member of a counter.
// A user bound elsewhere is released from that counter in the same transaction.
func (s *AssignmentService) AssignStaff(ctx context.Context, input AssignStaffInput) (result *AssignmentResult, err error) {
	ctx, span, cancel := s.begin(ctx, "assignment.AssignStaff", attribute.String("counter.id", input.CounterID))
	defer cancel()
	defer func() { endSpan(span, err) }()

	if err := authorizeAssignment(input); err != nil {
		return nil, err
	}

	// Staff before counter: a user moving between counters holds one counter at a time.
	if input.UserID != nil {
		unlockStaff, err := s.locks.Lock(ctx, staffKey(*input.UserID))
		if err != nil {
			return nil, wrapTimeout(err)
		}
		defer unlockStaff()
	}
	unlock, err := s.locks.Lock(ctx, counterKey(input.CounterID))
	if err != nil {
		return nil, wrapTimeout(err)
	}
	defer unlock()

	err = s.withRetry(ctx, func(ctx context.Context, repos repository.Repositories) error {
		result = &AssignmentResult{}
		counter, err := repos.Counters.GetByID(ctx, input.CounterID)
		if err != nil {
			return err
		}
		result.Counter = counter
		if scope := input.PerformedBy.BranchID; scope != nil && input.PerformedBy.Role != domain.StaffRoleAdmin && *scope != counter.BranchID {
			return apperrors.NewForbidden("counter belongs to another branch")
		}
		if input.UserID == nil {
			return s.unassign(ctx, repos, counter, input, result)
		}
		return s.assign(ctx, repos, counter, input, result)
	})
	if err != nil {
		return nil, err
	}

	if len(result.Entries) == 0 {
		return result, nil
	}
	var evts []events.Event
	if result.ReleasedCounter != nil {
		evts = append(evts, counterEvent(result.ReleasedCounter, input.PerformedBy, string(domain.AssignmentUnassigned)))
	}
	last := result.Entries[len(result.Entries)-1]
	evts = append(evts, counterEvent(result.Counter, input.PerformedBy, string(last.Action)))
	s.publish(ctx, evts...)
	for _, entry := range result.Entries {
		s.logger.Info("counter assignment changed",
			zap.String("counter_id", entry.CounterID),
			zap.String("branch_id", entry.BranchID),
			zap.String("action", string(entry.Action)),
			zap.String("user_id", deref(entry.UserID)),
			zap.String("previous_user_id", deref(entry.PreviousUserID)),
			zap.String("performed_by", entry.PerformedByUserID))
	}
	return result, nil
}

func authorizeAssignment(input AssignStaffInput) error {
	actor := input.PerformedBy
	if strings.TrimSpace(actor.UserID) == "" {
		return apperrors.NewUnauthorized("actor required")
	}
	if actor.Role.Supervises() {
		return nil
	}
	if actor.Role != domain.StaffRoleTeller {
		return apperrors.NewForbidden("insufficient role for assignment")
	}
	if input.UserID != nil && *input.UserID != actor.UserID {
		return apperrors.NewForbidden("tellers may only assign themselves")
	}
	return nil
}

func (s *AssignmentService) assign(ctx context.Context, repos repository.Repositories, counter *domain.Counter, input AssignStaffInput, result *AssignmentResult) error {
	userID := *input.UserID
	user, err := repos.Staff.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Active {
		return apperrors.NewValidationError("staff member is inactive", map[string]any{"user_id": userID})
	}
	if counter.AssignedUserID != nil && *counter.AssignedUserID == userID {
		return nil
	}
	if counter.AssignedUserID != nil && !input.PerformedBy.Role.Supervises() {
		return apperrors.NewForbidden("counter is staffed by another user")
	}

	other, err := repos.Counters.FindByAssignedUser(ctx, userID)
	switch {
	case err == nil && other.ID != counter.ID:
		prevName := other.AssignedUserName
		other.AssignedUserID = nil
		other.AssignedUserName = nil
		if err := repos.Counters.Update(ctx, other); err != nil {
			return err
		}
		entry := s.newEntry(other, input)
		entry.Action = domain.AssignmentUnassigned
		entry.PreviousUserID = strPtr(userID)
		entry.PreviousUserName = prevName
		if err := repos.Audit.Create(ctx, entry); err != nil {
			return err
		}
		result.ReleasedCounter = other
		result.Entries = append(result.Entries, entry)
	case err != nil && !apperrors.IsNotFound(err):
		return err
	}

	entry := s.newEntry(counter, input)
	entry.Action = domain.AssignmentAssigned
	if counter.AssignedUserID != nil {
		entry.Action = domain.AssignmentReassigned
		entry.PreviousUserID = counter.AssignedUserID
		entry.PreviousUserName = counter.AssignedUserName
	}
	entry.UserID = strPtr(user.ID)
	entry.UserName = strPtr(user.Name)
	if user.Email != "" {
		entry.UserEmail = strPtr(user.Email)
	}

	counter.AssignedUserID = strPtr(user.ID)
	counter.AssignedUserName = strPtr(user.Name)
	if err := repos.Counters.Update(ctx, counter); err != nil {
		return err
	}
	if err := repos.Audit.Create(ctx, entry); err != nil {
		return err
	}
	result.Entries = append(result.Entries, entry)
	return nil
}

func (s *AssignmentService) unassign(ctx context.Context, repos repository.Repositories, counter *domain.Counter, input AssignStaffInput, result *AssignmentResult) error {
	if counter.AssignedUserID == nil {
		return nil
	}
	if !input.PerformedBy.Role.Supervises() && *counter.AssignedUserID != input.PerformedBy.UserID {
		return apperrors.NewForbidden("tellers may only unassign themselves")
	}
	entry := s.newEntry(counter, input)
	entry.Action = domain.AssignmentUnassigned
	entry.PreviousUserID = counter.AssignedUserID
	entry.PreviousUserName = counter.AssignedUserName

	counter.AssignedUserID = nil
	counter.AssignedUserName = nil
	if err := repos.Counters.Update(ctx, counter); err != nil {
		return err
	}
	if err := repos.Audit.Create(ctx, entry); err != nil {
		return err
	}
	result.Entries = append(result.Entries, entry)
	return nil
}

func (s *AssignmentService) newEntry(counter *domain.Counter, input AssignStaffInput) *domain.CounterAssignmentAuditEntry {
	return &domain.CounterAssignmentAuditEntry{
		ID:                  uuid.NewString(),
		CounterID:           counter.ID,
		CounterName:         counter.Name,
		BranchID:            counter.BranchID,
		PerformedByUserID:   input.PerformedBy.UserID,
		PerformedByUserName: input.PerformedBy.FullName,
		Timestamp:           s.clock(),
		Reason:              input.Reason,
		IPAddress:           input.IPAddress,
	}
}

// ListAudit returns audit entries newest first.
func (s *AssignmentService) ListAudit(ctx context.Context, filter AuditListFilter) ([]*domain.CounterAssignmentAuditEntry, error) {
	entries, err := s.store.Repositories().Audit.List(ctx, filter)
	if err != nil {
		return nil, wrapTimeout(err)
	}
	return entries, nil
}
