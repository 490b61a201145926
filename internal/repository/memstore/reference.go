package memstore

import (
	"context"
	"sort"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

type staffRepo struct{ v view }

func (r staffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.staff[staff.ID]; exists {
			return apperrors.NewConflict("staff member already exists", map[string]any{"user_id": staff.ID})
		}
		member := *staff
		st.staff[staff.ID] = &member
		return nil
	})
}

func (r staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	var out *domain.StaffMember
	err := r.v.read(func(st *state) error {
		member, ok := st.staff[id]
		if !ok {
			return apperrors.NewNotFound("staff member", map[string]any{"user_id": id})
		}
		copied := *member
		out = &copied
		return nil
	})
	return out, err
}

type branchRepo struct{ v view }

func (r branchRepo) Create(_ context.Context, branch *domain.Branch) error {
	return r.v.write(func(st *state) error {
		if _, exists := st.branches[branch.ID]; exists {
			return apperrors.NewConflict("branch already exists", map[string]any{"branch_id": branch.ID})
		}
		copied := *branch
		st.branches[branch.ID] = &copied
		return nil
	})
}

func (r branchRepo) GetByID(_ context.Context, id string) (*domain.Branch, error) {
	var out *domain.Branch
	err := r.v.read(func(st *state) error {
		branch, ok := st.branches[id]
		if !ok {
			return apperrors.NewNotFound("branch", map[string]any{"branch_id": id})
		}
		copied := *branch
		out = &copied
		return nil
	})
	return out, err
}

func (r branchRepo) List(_ context.Context) ([]*domain.Branch, error) {
	var out []*domain.Branch
	err := r.v.read(func(st *state) error {
		for _, branch := range st.branches {
			copied := *branch
			out = append(out, &copied)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

type sequenceRepo struct{ v view }

func (r sequenceRepo) Next(_ context.Context, key repository.SequenceKey) (int64, error) {
	var next int64
	err := r.v.write(func(st *state) error {
		st.sequences[key]++
		next = st.sequences[key]
		return nil
	})
	return next, err
}
