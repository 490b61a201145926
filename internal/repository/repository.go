package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/branch-queue/internal/domain"
)

// TicketFilter captures lookup parameters for ticket listings.
type TicketFilter struct {
	BranchID *string
	// IncludeBranchless widens a BranchID filter to tickets issued without a
	// branch, which any branch may serve.
	IncludeBranchless bool
	CounterID         *string
	Statuses          []domain.TicketStatus
	ServiceTypes      []domain.ServiceType
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
	Limit             int
	Offset            int
}

// WaitingQuery selects dispatch candidates: waiting tickets of the branch or
// without one, unpinned or pinned to CounterID, of one of ServiceTypes. Rows
// come back in dispatch order and are not locked; claims rely on the version
// check in Update.
type WaitingQuery struct {
	BranchID     string
	CounterID    string
	ServiceTypes []domain.ServiceType
	Limit        int
}

// AuditFilter narrows assignment audit listings.
type AuditFilter struct {
	BranchID  *string
	CounterID *string
	UserID    *string
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// SequenceKey scopes a ticket number sequence to one branch, prefix and day.
type SequenceKey struct {
	BranchID string
	Prefix   string
	Day      string
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	// Update writes ticket if its Version still matches the stored row and
	// bumps Version. A stale version yields a Conflict error.
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	ListWaiting(ctx context.Context, query WaitingQuery) ([]*domain.Ticket, error)
	// LowestWaitingPriority returns the smallest priority score among the
	// tickets query selects; ok is false when there are none. Limit is ignored.
	LowestWaitingPriority(ctx context.Context, query WaitingQuery) (score int, ok bool, err error)
	List(ctx context.Context, filter TicketFilter) ([]*domain.Ticket, error)
}

// CounterRepository encapsulates counter persistence.
type CounterRepository interface {
	Create(ctx context.Context, counter *domain.Counter) error
	Update(ctx context.Context, counter *domain.Counter) error
	GetByID(ctx context.Context, id string) (*domain.Counter, error)
	ListByBranch(ctx context.Context, branchID string) ([]*domain.Counter, error)
	FindByAssignedUser(ctx context.Context, userID string) (*domain.Counter, error)
}

// AssignmentAuditRepository stores the append-only counter assignment trail.
type AssignmentAuditRepository interface {
	Create(ctx context.Context, entry *domain.CounterAssignmentAuditEntry) error
	List(ctx context.Context, filter AuditFilter) ([]*domain.CounterAssignmentAuditEntry, error)
}

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

// BranchRepository handles persistence for branches.
type BranchRepository interface {
	Create(ctx context.Context, branch *domain.Branch) error
	GetByID(ctx context.Context, id string) (*domain.Branch, error)
	List(ctx context.Context) ([]*domain.Branch, error)
}

// SequenceRepository hands out ticket numbers.
type SequenceRepository interface {
	Next(ctx context.Context, key SequenceKey) (int64, error)
}

// Repositories groups every repository bound to the same connection or transaction.
type Repositories struct {
	Tickets   TicketRepository
	Counters  CounterRepository
	Audit     AssignmentAuditRepository
	Staff     StaffRepository
	Branches  BranchRepository
	Sequences SequenceRepository
}

// Store opens units of work over the repositories.
type Store interface {
	// Repositories returns repositories that run outside any transaction.
	Repositories() Repositories
	// RunInTx runs fn in one transaction. Any error returned by fn rolls every
	// write back.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func normalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
