package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

func TestCreateTicketNumbersAndPrioritises(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sub := h.hub.Subscribe("b1")
	defer h.hub.Unsubscribe(sub)

	first, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{ServiceType: domain.ServiceDeposit, BranchID: strPtr("b1")})
	require.NoError(t, err)
	assert.Equal(t, "A001", first.Number)
	assert.Equal(t, domain.TicketStatusWaiting, first.Status)
	assert.Equal(t, 10, first.PriorityScore)
	assert.Nil(t, first.CalledAt)

	second, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{
		ServiceType: domain.ServiceDeposit,
		BranchID:    strPtr("b1"),
		Customer:    &domain.Customer{Name: "Ada", Segment: domain.SegmentSenior},
	})
	require.NoError(t, err)
	assert.Equal(t, "A002", second.Number)
	assert.Equal(t, 25, second.PriorityScore)

	loan, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{ServiceType: domain.ServiceLoan, BranchID: strPtr("b1")})
	require.NoError(t, err)
	assert.Equal(t, "L001", loan.Number)

	other, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{ServiceType: domain.ServiceDeposit, BranchID: strPtr("b2")})
	require.NoError(t, err)
	assert.Equal(t, "A001", other.Number, "sequences are per branch")

	created := ofType(drain(sub), events.EventTicketCreated)
	assert.Len(t, created, 3)
}

func TestCreateTicketValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	cases := []struct {
		name  string
		input CreateTicketInput
	}{
		{"unknown service", CreateTicketInput{ServiceType: "CASH", BranchID: strPtr("b1")}},
		{"unknown branch", CreateTicketInput{ServiceType: domain.ServiceDeposit, BranchID: strPtr("nowhere")}},
		{"inactive branch", CreateTicketInput{ServiceType: domain.ServiceDeposit, BranchID: strPtr("b3")}},
		{"unknown segment", CreateTicketInput{ServiceType: domain.ServiceDeposit, Customer: &domain.Customer{Segment: "GOLD"}}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.tickets.CreateTicket(ctx, kiosk, tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), "%v", err)
		})
	}

	branchless, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{ServiceType: domain.ServiceVIP})
	require.NoError(t, err)
	assert.Nil(t, branchless.BranchID)
	assert.Equal(t, "#V001", branchless.Number)
}

func TestTransitionRoutesThroughEngine(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline, domain.ServiceDeposit)
	h.counter(t, "c2", "b1", domain.CounterStatusOnline, domain.ServiceLoan)
	ticket, err := h.tickets.CreateTicket(ctx, kiosk, CreateTicketInput{ServiceType: domain.ServiceDeposit, BranchID: strPtr("b1")})
	require.NoError(t, err)

	_, err = h.tickets.Transition(ctx, ticket.ID, TransitionRequest{Action: domain.ActionCall}, teller)
	assert.True(t, apperrors.IsValidation(err))

	steps := []TransitionRequest{
		{Action: domain.ActionCall, CounterID: strPtr("c1")},
		{Action: domain.ActionBeginService},
		{Action: domain.ActionRecall},
		{Action: domain.ActionTransfer, ServiceType: domain.ServiceLoan},
		{Action: domain.ActionCall, CounterID: strPtr("c2")},
		{Action: domain.ActionBeginService},
		{Action: domain.ActionComplete},
	}
	for _, step := range steps {
		_, err := h.tickets.Transition(ctx, ticket.ID, step, teller)
		require.NoError(t, err, "action %s", step.Action)
	}

	final, err := h.tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusCompleted, final.Status)
	assert.Equal(t, domain.ServiceLoan, final.ServiceType)

	_, err = h.tickets.Transition(ctx, ticket.ID, TransitionRequest{Action: domain.ActionMoveToEnd}, teller)
	assert.True(t, apperrors.IsInvalidTransition(err))
	_, err = h.tickets.Transition(ctx, ticket.ID, TransitionRequest{Action: "teleport"}, teller)
	assert.True(t, apperrors.IsInvalidTransition(err))
	_, err = h.tickets.Transition(ctx, "missing", TransitionRequest{Action: domain.ActionRecall}, teller)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestQueueSnapshotPositions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ticket(t, "A001", domain.ServiceDeposit, 10, time.Minute)
	h.ticket(t, "L001", domain.ServiceLoan, 20, 2*time.Minute)
	h.ticket(t, "A002", domain.ServiceDeposit, 10, 0)
	require.NoError(t, h.store.Repositories().Tickets.Create(ctx, &domain.Ticket{
		ID: "X001", Number: "X001", ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting,
		BranchID: strPtr("b2"), PriorityScore: 99, CreatedAt: h.base,
	}))

	queue, err := h.tickets.QueueSnapshot(ctx, "b1", 0)
	require.NoError(t, err)
	require.Len(t, queue, 3)
	assert.Equal(t, "L001", queue[0].Ticket.ID)
	assert.Equal(t, "A002", queue[1].Ticket.ID)
	assert.Equal(t, "A001", queue[2].Ticket.ID)
	assert.Equal(t, 3, queue[2].Position)

	top, err := h.tickets.QueueSnapshot(ctx, "b1", 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestQueueSnapshotIgnoresBusyOtherBranch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	repos := h.store.Repositories()
	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("H%03d", i)
		require.NoError(t, repos.Tickets.Create(ctx, &domain.Ticket{
			ID: id, Number: id, ServiceType: domain.ServiceDeposit, Status: domain.TicketStatusWaiting,
			BranchID: strPtr("b2"), PriorityScore: 50, CreatedAt: h.base,
		}))
	}
	h.ticket(t, "A001", domain.ServiceDeposit, 10, 0)
	require.NoError(t, repos.Tickets.Create(ctx, &domain.Ticket{
		ID: "V001", Number: "#V001", ServiceType: domain.ServiceVIP, Status: domain.TicketStatusWaiting,
		PriorityScore: 5, CreatedAt: h.base,
	}))

	queue, err := h.tickets.QueueSnapshot(ctx, "b1", 0)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, "A001", queue[0].Ticket.ID)
	assert.Equal(t, "V001", queue[1].Ticket.ID)
}

func TestListTicketsFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.counter(t, "c1", "b1", domain.CounterStatusOnline, domain.ServiceDeposit)
	h.ticket(t, "A001", domain.ServiceDeposit, 10, 0)
	h.ticket(t, "L001", domain.ServiceLoan, 20, 0)
	_, err := h.engine.CallNext(ctx, "c1", teller)
	require.NoError(t, err)

	called, err := h.tickets.ListTickets(ctx, TicketListFilter{Statuses: []domain.TicketStatus{domain.TicketStatusCalled}})
	require.NoError(t, err)
	require.Len(t, called, 1)
	assert.Equal(t, "A001", called[0].ID)

	loans, err := h.tickets.ListTickets(ctx, TicketListFilter{BranchID: strPtr("b1"), ServiceTypes: []domain.ServiceType{domain.ServiceLoan}})
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, "L001", loans[0].ID)
}

func TestAppendRemark(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.ticket(t, "A001", domain.ServiceDeposit, 10, 0)

	updated, err := h.tickets.AppendRemark(ctx, "A001", "brought passport", teller)
	require.NoError(t, err)
	require.Len(t, updated.Remarks, 1)
	assert.Equal(t, "Tina Teller", updated.Remarks[0].AuthorName)

	_, err = h.tickets.AppendRemark(ctx, "A001", "  ", teller)
	assert.True(t, apperrors.IsValidation(err))

	_, err = h.engine.MarkMissed(ctx, "A001", teller)
	require.NoError(t, err)
	_, err = h.tickets.AppendRemark(ctx, "A001", "too late", teller)
	assert.True(t, apperrors.IsInvalidTransition(err))
	assert.Len(t, h.getTicket(t, "A001").Remarks, 1)
}
