package repository

import (
	"context"

	"github.com/spec-kit/branch-queue/internal/domain"
)

type staffRepository struct {
	db querier
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(db querier) StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (id, name, email, role, branch_id, active_flag)
        VALUES ($1,$2,$3,$4,$5,$6)`
	_, err := r.db.Exec(ctx, query,
		staff.ID,
		staff.Name,
		staff.Email,
		staff.Role,
		staff.BranchID,
		staff.Active,
	)
	return mapError(err, "staff member", map[string]any{"user_id": staff.ID})
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, name, email, role, branch_id, active_flag
        FROM staff_members WHERE id=$1`

	var staff domain.StaffMember
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.Role,
		&staff.BranchID,
		&staff.Active,
	); err != nil {
		return nil, mapError(err, "staff member", map[string]any{"user_id": id})
	}
	return &staff, nil
}
