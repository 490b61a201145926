// Package memstore is an in-process implementation of repository.Store used
// when no database is configured and in tests. A transaction holds the store's
// write lock for its whole duration, so transactions are fully serialized and a
// failed one restores the snapshot taken when it began.
package memstore

import (
	"context"
	"sync"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
)

type state struct {
	tickets   map[string]*domain.Ticket
	counters  map[string]*domain.Counter
	audit     []*domain.CounterAssignmentAuditEntry
	staff     map[string]*domain.StaffMember
	branches  map[string]*domain.Branch
	sequences map[repository.SequenceKey]int64
}

func newState() *state {
	return &state{
		tickets:   map[string]*domain.Ticket{},
		counters:  map[string]*domain.Counter{},
		staff:     map[string]*domain.StaffMember{},
		branches:  map[string]*domain.Branch{},
		sequences: map[repository.SequenceKey]int64{},
	}
}

func (s *state) clone() *state {
	out := newState()
	for id, t := range s.tickets {
		out.tickets[id] = t.Clone()
	}
	for id, c := range s.counters {
		out.counters[id] = c.Clone()
	}
	out.audit = append(out.audit, s.audit...)
	for id, m := range s.staff {
		member := *m
		out.staff[id] = &member
	}
	for id, b := range s.branches {
		branch := *b
		out.branches[id] = &branch
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	return out
}

// Store keeps every entity in memory.
type Store struct {
	mu   sync.RWMutex
	data *state
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newState()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Repositories() repository.Repositories {
	return s.bind(false)
}

func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(ctx, s.bind(true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) bind(inTx bool) repository.Repositories {
	v := view{store: s, inTx: inTx}
	return repository.Repositories{
		Tickets:   ticketRepo{v},
		Counters:  counterRepo{v},
		Audit:     auditRepo{v},
		Staff:     staffRepo{v},
		Branches:  branchRepo{v},
		Sequences: sequenceRepo{v},
	}
}

// view gives repositories access to the state, taking the store lock unless it
// is already held by the enclosing transaction.
type view struct {
	store *Store
	inTx  bool
}

func (v view) read(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.RLock()
		defer v.store.mu.RUnlock()
	}
	return fn(v.store.data)
}

func (v view) write(fn func(st *state) error) error {
	if !v.inTx {
		v.store.mu.Lock()
		defer v.store.mu.Unlock()
	}
	return fn(v.store.data)
}
