package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func strPtr(v string) *string { return &v }

func TestRunInTxRollsBackOnError(t *testing.T) {
	store := New()
	ctx := context.Background()
	ticket := &domain.Ticket{ID: "t1", Status: domain.TicketStatusWaiting, CreatedAt: time.Now()}
	require.NoError(t, store.Repositories().Tickets.Create(ctx, ticket))

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		current, err := repos.Tickets.GetByID(ctx, "t1")
		require.NoError(t, err)
		require.NoError(t, current.Call("c1", time.Now()))
		require.NoError(t, repos.Tickets.Update(ctx, current))
		_, err = repos.Sequences.Next(ctx, repository.SequenceKey{BranchID: "b1", Prefix: "A", Day: "2026-03-02"})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	stored, err := store.Repositories().Tickets.GetByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusWaiting, stored.Status)
	assert.Nil(t, stored.CounterID)

	next, err := store.Repositories().Sequences.Next(ctx, repository.SequenceKey{BranchID: "b1", Prefix: "A", Day: "2026-03-02"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, next)
}

func TestUpdateRejectsStaleVersion(t *testing.T) {
	store := New()
	ctx := context.Background()
	repos := store.Repositories()
	require.NoError(t, repos.Tickets.Create(ctx, &domain.Ticket{ID: "t1", Status: domain.TicketStatusWaiting}))

	first, err := repos.Tickets.GetByID(ctx, "t1")
	require.NoError(t, err)
	second, err := repos.Tickets.GetByID(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, first.Call("c1", time.Now()))
	require.NoError(t, repos.Tickets.Update(ctx, first))

	require.NoError(t, second.Call("c2", time.Now()))
	err = repos.Tickets.Update(ctx, second)
	assert.True(t, apperrors.IsConflict(err))
}

func TestCounterAssigneeIsUnique(t *testing.T) {
	store := New()
	ctx := context.Background()
	repos := store.Repositories()
	require.NoError(t, repos.Counters.Create(ctx, &domain.Counter{ID: "c1", BranchID: "b1", AssignedUserID: strPtr("u1")}))
	require.NoError(t, repos.Counters.Create(ctx, &domain.Counter{ID: "c2", BranchID: "b1"}))

	c2, err := repos.Counters.GetByID(ctx, "c2")
	require.NoError(t, err)
	c2.AssignedUserID = strPtr("u1")
	assert.True(t, apperrors.IsConflict(repos.Counters.Update(ctx, c2)))

	found, err := repos.Counters.FindByAssignedUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "c1", found.ID)

	_, err = repos.Counters.FindByAssignedUser(ctx, "u2")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestListWaitingFiltersAndOrders(t *testing.T) {
	store := New()
	ctx := context.Background()
	repos := store.Repositories()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	tickets := []*domain.Ticket{
		{ID: "a", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), PriorityScore: 5, CreatedAt: base.Add(time.Minute)},
		{ID: "b", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), PriorityScore: 5, CreatedAt: base},
		{ID: "c", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b2"), PriorityScore: 9, CreatedAt: base},
		{ID: "d", ServiceType: domain.ServiceLoan, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), PriorityScore: 9, CreatedAt: base},
		{ID: "e", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusCompleted, BranchID: strPtr("b1"), PriorityScore: 9, CreatedAt: base},
		{ID: "f", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), CounterID: strPtr("c9"), PriorityScore: 9, CreatedAt: base},
	}
	for _, ticket := range tickets {
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
	}

	got, err := repos.Tickets.ListWaiting(ctx, repository.WaitingQuery{
		BranchID:     "b1",
		CounterID:    "c1",
		ServiceTypes: []domain.ServiceType{domain.ServiceDeposit},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestLowestWaitingPriorityUsesDispatchScope(t *testing.T) {
	store := New()
	ctx := context.Background()
	repos := store.Repositories()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, ticket := range []*domain.Ticket{
		{ID: "a", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), PriorityScore: 30, CreatedAt: base},
		{ID: "b", ServiceType: domain.ServiceLoan, Status: domain.TicketStatusWaiting, PriorityScore: 12, CreatedAt: base},
		{ID: "c", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b2"), PriorityScore: 1, CreatedAt: base},
		{ID: "d", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusServing, BranchID: strPtr("b1"), PriorityScore: 2, CreatedAt: base},
		{ID: "e", ServiceType: domain.ServiceWithdrawal, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), PriorityScore: 3, CreatedAt: base},
	} {
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
	}

	lowest, ok, err := repos.Tickets.LowestWaitingPriority(ctx, repository.WaitingQuery{
		BranchID:     "b1",
		CounterID:    "c1",
		ServiceTypes: []domain.ServiceType{domain.ServiceDeposit, domain.ServiceLoan},
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 12, lowest)

	_, ok, err = repos.Tickets.LowestWaitingPriority(ctx, repository.WaitingQuery{
		BranchID:     "b1",
		CounterID:    "c1",
		ServiceTypes: []domain.ServiceType{domain.ServiceVIP},
	})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListIncludeBranchless(t *testing.T) {
	store := New()
	ctx := context.Background()
	repos := store.Repositories()
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for _, ticket := range []*domain.Ticket{
		{ID: "a", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b1"), CreatedAt: base},
		{ID: "b", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, CreatedAt: base},
		{ID: "c", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting, BranchID: strPtr("b2"), CreatedAt: base},
	} {
		require.NoError(t, repos.Tickets.Create(ctx, ticket))
	}

	strict, err := repos.Tickets.List(ctx, repository.TicketFilter{BranchID: strPtr("b1")})
	require.NoError(t, err)
	require.Len(t, strict, 1)
	assert.Equal(t, "a", strict[0].ID)

	wide, err := repos.Tickets.List(ctx, repository.TicketFilter{BranchID: strPtr("b1"), IncludeBranchless: true})
	require.NoError(t, err)
	require.Len(t, wide, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{wide[0].ID, wide[1].ID})
}

func TestSequenceIsMonotonicUnderContention(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := repository.SequenceKey{BranchID: "b1", Prefix: "A", Day: "2026-03-02"}

	const workers = 50
	seen := make(chan int64, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := store.Repositories().Sequences.Next(ctx, key)
			assert.NoError(t, err)
			seen <- n
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[int64]bool{}
	for n := range seen {
		assert.False(t, unique[n], "duplicate %d", n)
		unique[n] = true
	}
	assert.Len(t, unique, workers)
}
