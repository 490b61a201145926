package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

type counterRepo struct{ v view }

func (r counterRepo) Create(_ context.Context, counter *domain.Counter) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.counters[counter.ID]; exists {
			return apperrors.NewConflict("counter already exists", map[string]any{"counter_id": counter.ID})
		}
		if err := checkAssignee(st, counter); err != nil {
			return err
		}
		counter.UpdatedAt = time.Now().UTC()
		counter.Version = 1
		st.counters[counter.ID] = counter.Clone()
		return nil
	})
}

func (r counterRepo) Update(_ context.Context, counter *domain.Counter) error {
	return r.v.write(func(st *state) error {
		stored, ok := st.counters[counter.ID]
		if !ok {
			return apperrors.NewNotFound("counter", map[string]any{"counter_id": counter.ID})
		}
		if stored.Version != counter.Version {
			return apperrors.NewConflict("counter was modified concurrently", map[string]any{"id": counter.ID, "version": counter.Version})
		}
		if err := checkAssignee(st, counter); err != nil {
			return err
		}
		counter.Version++
		counter.UpdatedAt = time.Now().UTC()
		st.counters[counter.ID] = counter.Clone()
		return nil
	})
}

// checkAssignee mirrors the unique index on counters.assigned_user_id.
func checkAssignee(st *state, counter *domain.Counter) error {
	if counter.AssignedUserID == nil {
		return nil
	}
	for id, other := range st.counters {
		if id == counter.ID || other.AssignedUserID == nil {
			continue
		}
		if *other.AssignedUserID == *counter.AssignedUserID {
			return apperrors.NewConflict("counter already exists", map[string]any{
				"constraint": "counters_assigned_user_id_key",
				"counter_id": counter.ID,
			})
		}
	}
	return nil
}

func (r counterRepo) GetByID(_ context.Context, id string) (*domain.Counter, error) {
	var out *domain.Counter
	err := r.v.read(func(st *state) error {
		counter, ok := st.counters[id]
		if !ok {
			return apperrors.NewNotFound("counter", map[string]any{"counter_id": id})
		}
		out = counter.Clone()
		return nil
	})
	return out, err
}

func (r counterRepo) ListByBranch(_ context.Context, branchID string) ([]*domain.Counter, error) {
	var out []*domain.Counter
	err := r.v.read(func(st *state) error {
		for _, counter := range st.counters {
			if counter.BranchID == branchID {
				out = append(out, counter.Clone())
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r counterRepo) FindByAssignedUser(_ context.Context, userID string) (*domain.Counter, error) {
	var out *domain.Counter
	err := r.v.read(func(st *state) error {
		for _, counter := range st.counters {
			if counter.AssignedUserID != nil && *counter.AssignedUserID == userID {
				out = counter.Clone()
				return nil
			}
		}
		return apperrors.NewNotFound("counter assignment", map[string]any{"user_id": userID})
	})
	return out, err
}

type auditRepo struct{ v view }

func (r auditRepo) Create(_ context.Context, entry *domain.CounterAssignmentAuditEntry) error {
	return r.v.write(func(st *state) error {
		copied := *entry
		st.audit = append(st.audit, &copied)
		return nil
	})
}

func (r auditRepo) List(_ context.Context, filter repository.AuditFilter) ([]*domain.CounterAssignmentAuditEntry, error) {
	var out []*domain.CounterAssignmentAuditEntry
	err := r.v.read(func(st *state) error {
		// newest first
		for i := len(st.audit) - 1; i >= 0; i-- {
			entry := st.audit[i]
			if !matchAudit(entry, filter) {
				continue
			}
			copied := *entry
			out = append(out, &copied)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page(out, filter.Offset, filter.Limit, 50), nil
}

func matchAudit(entry *domain.CounterAssignmentAuditEntry, filter repository.AuditFilter) bool {
	if filter.BranchID != nil && entry.BranchID != *filter.BranchID {
		return false
	}
	if filter.CounterID != nil && entry.CounterID != *filter.CounterID {
		return false
	}
	if filter.UserID != nil {
		user := *filter.UserID
		if !(entry.UserID != nil && *entry.UserID == user) && !(entry.PreviousUserID != nil && *entry.PreviousUserID == user) {
			return false
		}
	}
	if filter.From != nil && entry.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.Timestamp.After(*filter.To) {
		return false
	}
	return true
}
