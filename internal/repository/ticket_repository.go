package repository

import (
	"context"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/branch-queue/internal/domain"
)

const ticketColumns = `id, number, service_type, status, branch_id, counter_id, priority_score, recall_count,
       customer, remarks, created_at, called_at, completed_at, requeued_at, updated_at, version`

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type ticketRepository struct {
	db querier
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db querier) TicketRepository {
	return &ticketRepository{db: db}
}

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (id, number, service_type, status, branch_id, counter_id, priority_score, recall_count,
                             customer, remarks, created_at, requeued_at, updated_at, version)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$11,1)
        RETURNING updated_at, version`
	err := r.db.QueryRow(ctx, query,
		ticket.ID,
		ticket.Number,
		ticket.ServiceType,
		ticket.Status,
		ticket.BranchID,
		ticket.CounterID,
		ticket.PriorityScore,
		ticket.RecallCount,
		ticket.Customer,
		remarksOrEmpty(ticket.Remarks),
		ticket.CreatedAt,
		ticket.RequeuedAt,
	).Scan(&ticket.UpdatedAt, &ticket.Version)
	return mapError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets
        SET service_type=$1, status=$2, counter_id=$3, priority_score=$4, recall_count=$5, customer=$6, remarks=$7,
            called_at=$8, completed_at=$9, requeued_at=$10, updated_at=$11, version=version+1
        WHERE id=$12 AND version=$13
        RETURNING version`
	now := time.Now().UTC()
	err := r.db.QueryRow(ctx, query,
		ticket.ServiceType,
		ticket.Status,
		ticket.CounterID,
		ticket.PriorityScore,
		ticket.RecallCount,
		ticket.Customer,
		remarksOrEmpty(ticket.Remarks),
		ticket.CalledAt,
		ticket.CompletedAt,
		ticket.RequeuedAt,
		now,
		ticket.ID,
		ticket.Version,
	).Scan(&ticket.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return staleVersion("ticket", ticket.ID, ticket.Version)
	}
	if err != nil {
		return mapError(err, "ticket", map[string]any{"ticket_id": ticket.ID})
	}
	ticket.UpdatedAt = now
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "ticket", map[string]any{"ticket_id": id})
	}
	return ticket, nil
}

// ListWaiting returns waiting tickets the counter could serve, best first.
// Rows are read without locks so concurrent dispatchers see the same
// candidates; the one whose versioned update lands first wins the claim.
func (r *ticketRepository) ListWaiting(ctx context.Context, q WaitingQuery) ([]*domain.Ticket, error) {
	builder := waitingWhere(psql.Select(ticketColumns).From("tickets"), q).
		OrderBy("priority_score DESC", "COALESCE(requeued_at, created_at) ASC", "LENGTH(number) ASC", "number ASC", "id ASC").
		Limit(uint64(normalizeLimit(q.Limit, 20, 200)))
	return r.query(ctx, builder)
}

func (r *ticketRepository) LowestWaitingPriority(ctx context.Context, q WaitingQuery) (int, bool, error) {
	query, args, err := waitingWhere(psql.Select("MIN(priority_score)").From("tickets"), q).ToSql()
	if err != nil {
		return 0, false, err
	}
	var lowest *int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&lowest); err != nil {
		return 0, false, mapError(err, "ticket", nil)
	}
	if lowest == nil {
		return 0, false, nil
	}
	return *lowest, true, nil
}

func waitingWhere(builder sq.SelectBuilder, q WaitingQuery) sq.SelectBuilder {
	builder = builder.
		Where(sq.Eq{"status": domain.TicketStatusWaiting}).
		Where(sq.Or{sq.Eq{"branch_id": q.BranchID}, sq.Eq{"branch_id": nil}}).
		Where(sq.Or{sq.Eq{"counter_id": nil}, sq.Eq{"counter_id": q.CounterID}})
	if len(q.ServiceTypes) > 0 {
		builder = builder.Where(sq.Eq{"service_type": serviceTypeStrings(q.ServiceTypes)})
	}
	return builder
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, error) {
	builder := psql.Select(ticketColumns).From("tickets")
	if filter.BranchID != nil {
		if filter.IncludeBranchless {
			builder = builder.Where(sq.Or{sq.Eq{"branch_id": *filter.BranchID}, sq.Eq{"branch_id": nil}})
		} else {
			builder = builder.Where(sq.Eq{"branch_id": *filter.BranchID})
		}
	}
	if filter.CounterID != nil {
		builder = builder.Where(sq.Eq{"counter_id": *filter.CounterID})
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		builder = builder.Where(sq.Eq{"status": statuses})
	}
	if len(filter.ServiceTypes) > 0 {
		builder = builder.Where(sq.Eq{"service_type": serviceTypeStrings(filter.ServiceTypes)})
	}
	if filter.CreatedFrom != nil {
		builder = builder.Where(sq.GtOrEq{"created_at": *filter.CreatedFrom})
	}
	if filter.CreatedTo != nil {
		builder = builder.Where(sq.LtOrEq{"created_at": *filter.CreatedTo})
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder = builder.
		OrderBy("priority_score DESC", "COALESCE(requeued_at, created_at) ASC", "id ASC").
		Limit(uint64(normalizeLimit(filter.Limit, 50, 500))).
		Offset(uint64(offset))
	return r.query(ctx, builder)
}

func (r *ticketRepository) query(ctx context.Context, builder sq.SelectBuilder) ([]*domain.Ticket, error) {
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, "ticket", nil)
	}
	defer rows.Close()

	var result []*domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, mapError(err, "ticket", nil)
		}
		result = append(result, ticket)
	}
	return result, mapError(rows.Err(), "ticket", nil)
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Number,
		&ticket.ServiceType,
		&ticket.Status,
		&ticket.BranchID,
		&ticket.CounterID,
		&ticket.PriorityScore,
		&ticket.RecallCount,
		&ticket.Customer,
		&ticket.Remarks,
		&ticket.CreatedAt,
		&ticket.CalledAt,
		&ticket.CompletedAt,
		&ticket.RequeuedAt,
		&ticket.UpdatedAt,
		&ticket.Version,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func remarksOrEmpty(remarks []domain.Remark) []domain.Remark {
	if remarks == nil {
		return []domain.Remark{}
	}
	return remarks
}

func serviceTypeStrings(types []domain.ServiceType) []string {
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}
