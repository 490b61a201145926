package repository

import "context"

type sequenceRepository struct {
	db querier
}

// NewSequenceRepository builds the ticket number sequence repository.
func NewSequenceRepository(db querier) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next increments and returns the counter for key. The upsert takes a row lock,
// so concurrent callers on the same key are serialized by Postgres.
func (r *sequenceRepository) Next(ctx context.Context, key SequenceKey) (int64, error) {
	const query = `
        INSERT INTO ticket_sequences (branch_id, prefix, business_day, next_number)
        VALUES ($1, $2, $3, 1)
        ON CONFLICT (branch_id, prefix, business_day)
        DO UPDATE SET next_number = ticket_sequences.next_number + 1
        RETURNING next_number`
	var next int64
	if err := r.db.QueryRow(ctx, query, key.BranchID, key.Prefix, key.Day).Scan(&next); err != nil {
		return 0, mapError(err, "ticket sequence", map[string]any{"branch_id": key.BranchID, "prefix": key.Prefix})
	}
	return next, nil
}
