package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore runs repositories against a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func bind(db querier) Repositories {
	return Repositories{
		Tickets:   NewTicketRepository(db),
		Counters:  NewCounterRepository(db),
		Audit:     NewAssignmentAuditRepository(db),
		Staff:     NewStaffRepository(db),
		Branches:  NewBranchRepository(db),
		Sequences: NewSequenceRepository(db),
	}
}

func (s *PostgresStore) Repositories() Repositories {
	return bind(s.pool)
}

func (s *PostgresStore) RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return mapError(err, "transaction", nil)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, rbErr)
			}
		}
	}()

	if err = fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return mapError(err, "transaction", nil)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return mapError(s.pool.Ping(ctx), "postgres", nil)
}
