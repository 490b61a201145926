package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"

	"github.com/spec-kit/branch-queue/internal/domain"
)

const auditColumns = `id, counter_id, counter_name, user_id, user_name, user_email, previous_user_id, previous_user_name,
       action, branch_id, performed_by_user_id, performed_by_user_name, created_at, reason, ip_address`

type assignmentAuditRepository struct {
	db querier
}

// NewAssignmentAuditRepository builds repository.
func NewAssignmentAuditRepository(db querier) AssignmentAuditRepository {
	return &assignmentAuditRepository{db: db}
}

func (r *assignmentAuditRepository) Create(ctx context.Context, entry *domain.CounterAssignmentAuditEntry) error {
	const query = `
        INSERT INTO counter_assignment_audit (id, counter_id, counter_name, user_id, user_name, user_email,
            previous_user_id, previous_user_name, action, branch_id, performed_by_user_id, performed_by_user_name,
            created_at, reason, ip_address)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`
	_, err := r.db.Exec(ctx, query,
		entry.ID,
		entry.CounterID,
		entry.CounterName,
		entry.UserID,
		entry.UserName,
		entry.UserEmail,
		entry.PreviousUserID,
		entry.PreviousUserName,
		entry.Action,
		entry.BranchID,
		entry.PerformedByUserID,
		entry.PerformedByUserName,
		entry.Timestamp,
		entry.Reason,
		entry.IPAddress,
	)
	return mapError(err, "assignment audit entry", map[string]any{"counter_id": entry.CounterID})
}

func (r *assignmentAuditRepository) List(ctx context.Context, filter AuditFilter) ([]*domain.CounterAssignmentAuditEntry, error) {
	builder := psql.Select(auditColumns).From("counter_assignment_audit")
	if filter.BranchID != nil {
		builder = builder.Where(sq.Eq{"branch_id": *filter.BranchID})
	}
	if filter.CounterID != nil {
		builder = builder.Where(sq.Eq{"counter_id": *filter.CounterID})
	}
	if filter.UserID != nil {
		builder = builder.Where(sq.Or{
			sq.Eq{"user_id": *filter.UserID},
			sq.Eq{"previous_user_id": *filter.UserID},
		})
	}
	if filter.From != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.To})
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder = builder.OrderBy("created_at DESC", "id DESC").
		Limit(uint64(normalizeLimit(filter.Limit, 50, 500))).
		Offset(uint64(offset))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "assignment audit entry", nil)
	}
	defer rows.Close()

	var result []*domain.CounterAssignmentAuditEntry
	for rows.Next() {
		var entry domain.CounterAssignmentAuditEntry
		if err := rows.Scan(
			&entry.ID,
			&entry.CounterID,
			&entry.CounterName,
			&entry.UserID,
			&entry.UserName,
			&entry.UserEmail,
			&entry.PreviousUserID,
			&entry.PreviousUserName,
			&entry.Action,
			&entry.BranchID,
			&entry.PerformedByUserID,
			&entry.PerformedByUserName,
			&entry.Timestamp,
			&entry.Reason,
			&entry.IPAddress,
		); err != nil {
			return nil, mapError(err, "assignment audit entry", nil)
		}
		result = append(result, &entry)
	}
	return result, mapError(rows.Err(), "assignment audit entry", nil)
}
