package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func TestSetStatusPermissions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline, domain.ServiceDeposit)

	paused, err := h.counters.SetStatus(ctx, "c1", domain.CounterStatusPaused, teller)
	require.NoError(t, err)
	assert.Equal(t, domain.CounterStatusPaused, paused.Status)

	_, err = h.counters.SetStatus(ctx, "c1", domain.CounterStatusOffline, teller)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	offline, err := h.counters.SetStatus(ctx, "c1", domain.CounterStatusOffline, supervisor)
	require.NoError(t, err)
	assert.Equal(t, domain.CounterStatusOffline, offline.Status)

	_, err = h.counters.SetStatus(ctx, "c1", domain.CounterStatusOnline, teller)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeForbidden))

	_, err = h.counters.SetStatus(ctx, "c1", "BROKEN", supervisor)
	assert.True(t, apperrors.IsValidation(err))
}

func TestSetStatusKeepsActiveTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline, domain.ServiceDeposit)
	h.ticket(t, "A001", domain.ServiceDeposit, 10, 0)
	_, err := h.engine.CallNext(ctx, "c1", teller)
	require.NoError(t, err)

	sub := h.hub.Subscribe("b1")
	defer h.hub.Unsubscribe(sub)

	counter, err := h.counters.SetStatus(ctx, "c1", domain.CounterStatusOffline, supervisor)
	require.NoError(t, err)
	require.NotNil(t, counter.CurrentTicketID)
	assert.Equal(t, "A001", *counter.CurrentTicketID)
	assert.Equal(t, domain.TicketStatusCalled, h.getTicket(t, "A001").Status)
	assert.Len(t, ofType(drain(sub), events.EventCounterUpdated), 1)

	_, err = h.counters.SetStatus(ctx, "c1", domain.CounterStatusOffline, supervisor)
	require.NoError(t, err)
	assert.Empty(t, drain(sub), "unchanged status emits nothing")

	_, err = h.engine.BeginService(ctx, "A001", teller)
	require.NoError(t, err)
	_, err = h.engine.Complete(ctx, "A001", teller)
	require.NoError(t, err)
	assert.Nil(t, h.getCounter(t, "c1").CurrentTicketID)
}

func TestListCountersByBranch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c2", "b1", domain.CounterStatusOnline)
	h.counter(t, "c1", "b1", domain.CounterStatusPaused)
	h.counter(t, "c9", "b2", domain.CounterStatusOnline)

	counters, err := h.counters.ListByBranch(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, counters, 2)
	assert.Equal(t, "c1", counters[0].ID)

	_, err = h.counters.GetCounter(ctx, "nope")
	assert.True(t, apperrors.IsNotFound(err))
}
