package repository

import (
	"context"

	"github.com/spec-kit/branch-queue/internal/domain"
)

type branchRepository struct {
	db querier
}

// NewBranchRepository builds the repository.
func NewBranchRepository(db querier) BranchRepository {
	return &branchRepository{db: db}
}

func (r *branchRepository) Create(ctx context.Context, branch *domain.Branch) error {
	const query = `
        INSERT INTO branches (id, name, timezone, is_active)
        VALUES ($1,$2,$3,$4)`
	_, err := r.db.Exec(ctx, query, branch.ID, branch.Name, branch.Timezone, branch.Active)
	return mapError(err, "branch", map[string]any{"branch_id": branch.ID})
}

func (r *branchRepository) GetByID(ctx context.Context, id string) (*domain.Branch, error) {
	const query = `SELECT id, name, timezone, is_active FROM branches WHERE id=$1`
	var branch domain.Branch
	if err := r.db.QueryRow(ctx, query, id).Scan(&branch.ID, &branch.Name, &branch.Timezone, &branch.Active); err != nil {
		return nil, mapError(err, "branch", map[string]any{"branch_id": id})
	}
	return &branch, nil
}

func (r *branchRepository) List(ctx context.Context) ([]*domain.Branch, error) {
	const query = `SELECT id, name, timezone, is_active FROM branches ORDER BY name ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, mapError(err, "branch", nil)
	}
	defer rows.Close()

	var result []*domain.Branch
	for rows.Next() {
		var branch domain.Branch
		if err := rows.Scan(&branch.ID, &branch.Name, &branch.Timezone, &branch.Active); err != nil {
			return nil, mapError(err, "branch", nil)
		}
		result = append(result, &branch)
	}
	return result, mapError(rows.Err(), "branch", nil)
}
