package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/branch-queue/internal/domain"
)

const counterColumns = `id, name, branch_id, status, service_tags, current_ticket_id, last_served_ticket_id,
       assigned_user_id, assigned_user_name, updated_at, version`

type counterRepository struct {
	db querier
}

// NewCounterRepository instantiates the repository.
func NewCounterRepository(db querier) CounterRepository {
	return &counterRepository{db: db}
}

func (r *counterRepository) Create(ctx context.Context, counter *domain.Counter) error {
	const query = `
        INSERT INTO counters (id, name, branch_id, status, service_tags, current_ticket_id, last_served_ticket_id,
                              assigned_user_id, assigned_user_name, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),1)
        RETURNING updated_at, version`
	err := r.db.QueryRow(ctx, query,
		counter.ID,
		counter.Name,
		counter.BranchID,
		counter.Status,
		serviceTypeStrings(counter.ServiceTags),
		counter.CurrentTicketID,
		counter.LastServedTicketID,
		counter.AssignedUserID,
		counter.AssignedUserName,
	).Scan(&counter.UpdatedAt, &counter.Version)
	return mapError(err, "counter", map[string]any{"counter_id": counter.ID})
}

// Update is guarded by the optimistic version column. The partial unique index
// on assigned_user_id turns a double assignment into a Conflict.
func (r *counterRepository) Update(ctx context.Context, counter *domain.Counter) error {
	const query = `
        UPDATE counters
        SET name=$1, status=$2, service_tags=$3, current_ticket_id=$4, last_served_ticket_id=$5,
            assigned_user_id=$6, assigned_user_name=$7, updated_at=$8, version=version+1
        WHERE id=$9 AND version=$10
        RETURNING version`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		counter.Name,
		counter.Status,
		serviceTypeStrings(counter.ServiceTags),
		counter.CurrentTicketID,
		counter.LastServedTicketID,
		counter.AssignedUserID,
		counter.AssignedUserName,
		now,
		counter.ID,
		counter.Version,
	).Scan(&counter.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return staleVersion("counter", counter.ID, counter.Version)
	}
	if err != nil {
		return mapError(err, "counter", map[string]any{"counter_id": counter.ID})
	}
	counter.UpdatedAt = now
	return nil
}

func (r *counterRepository) GetByID(ctx context.Context, id string) (*domain.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE id=$1`
	counter, err := scanCounter(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "counter", map[string]any{"counter_id": id})
	}
	return counter, nil
}

func (r *counterRepository) FindByAssignedUser(ctx context.Context, userID string) (*domain.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE assigned_user_id=$1`
	counter, err := scanCounter(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		return nil, mapError(err, "counter assignment", map[string]any{"user_id": userID})
	}
	return counter, nil
}

func (r *counterRepository) ListByBranch(ctx context.Context, branchID string) ([]*domain.Counter, error) {
	query := `SELECT ` + counterColumns + ` FROM counters WHERE branch_id=$1 ORDER BY name ASC, id ASC`
	rows, err := r.db.Query(ctx, query, branchID)
	if err != nil {
		return nil, mapError(err, "counter", nil)
	}
	defer rows.Close()

	var result []*domain.Counter
	for rows.Next() {
		counter, err := scanCounter(rows)
		if err != nil {
			return nil, mapError(err, "counter", nil)
		}
		result = append(result, counter)
	}
	return result, mapError(rows.Err(), "counter", nil)
}

func scanCounter(row pgx.Row) (*domain.Counter, error) {
	var counter domain.Counter
	var tags []string
	if err := row.Scan(
		&counter.ID,
		&counter.Name,
		&counter.BranchID,
		&counter.Status,
		&tags,
		&counter.CurrentTicketID,
		&counter.LastServedTicketID,
		&counter.AssignedUserID,
		&counter.AssignedUserName,
		&counter.UpdatedAt,
		&counter.Version,
	); err != nil {
		return nil, err
	}
	counter.ServiceTags = make([]domain.ServiceType, len(tags))
	for i, tag := range tags {
		counter.ServiceTags[i] = domain.ServiceType(tag)
	}
	return &counter, nil
}
