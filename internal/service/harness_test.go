package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/observability"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository/memstore"
)

var (
	teller     = domain.Actor{UserID: "u1", FullName: "Tina Teller", Role: domain.StaffRoleTeller}
	otherTell  = domain.Actor{UserID: "u2", FullName: "Omar Teller", Role: domain.StaffRoleTeller}
	supervisor = domain.Actor{UserID: "s1", FullName: "Sam Supervisor", Role: domain.StaffRoleSupervisor}
	kiosk      = domain.Actor{UserID: "k1", FullName: "Lobby kiosk", Role: domain.StaffRoleKiosk}
)

type harness struct {
	store       *memstore.Store
	hub         *events.Hub
	broadcaster *events.Broadcaster
	metrics     *observability.Metrics
	engine      *DispatchService
	tickets     *TicketService
	counters    *CounterService
	assignments *AssignmentService
	base        time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   memstore.New(),
		hub:     events.NewHub(256),
		metrics: observability.NewMetrics(),
		base:    time.Now().UTC().Add(-time.Hour),
	}
	h.broadcaster = events.NewBroadcaster(h.hub, nil, nil)
	h.wire(h.broadcaster)
	h.seedReference(t)
	return h
}

func (h *harness) wire(dispatcher events.Dispatcher) {
	rt := Runtime{
		Store:            h.store,
		Dispatcher:       dispatcher,
		Locks:            NewLockSet(),
		Metrics:          h.metrics,
		OperationTimeout: 5 * time.Second,
		MaxClaimAttempts: 10,
	}
	catalog := registry.DefaultCatalog()
	h.engine = NewDispatchService(DispatchDependencies{Runtime: rt, Catalog: catalog, CandidateBatchSize: 5})
	h.tickets = NewTicketService(TicketDependencies{Runtime: rt, Catalog: catalog, Engine: h.engine})
	h.counters = NewCounterService(CounterDependencies{Runtime: rt})
	h.assignments = NewAssignmentService(AssignmentDependencies{Runtime: rt})
}

func (h *harness) seedReference(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	repos := h.store.Repositories()
	for _, branch := range []*domain.Branch{
		{ID: "b1", Name: "Downtown", Timezone: "UTC", Active: true},
		{ID: "b2", Name: "Harbour", Timezone: "Europe/London", Active: true},
		{ID: "b3", Name: "Closed", Timezone: "UTC", Active: false},
	} {
		require.NoError(t, repos.Branches.Create(ctx, branch))
	}
	for _, staff := range []*domain.StaffMember{
		{ID: "u1", Name: "Tina Teller", Email: "tina@example.com", Role: domain.StaffRoleTeller, Active: true},
		{ID: "u2", Name: "Omar Teller", Email: "omar@example.com", Role: domain.StaffRoleTeller, Active: true},
		{ID: "u3", Name: "Retired", Role: domain.StaffRoleTeller, Active: false},
	} {
		require.NoError(t, repos.Staff.Create(ctx, staff))
	}
}

func (h *harness) counter(t *testing.T, id, branch string, status domain.CounterStatus, tags ...domain.ServiceType) {
	t.Helper()
	require.NoError(t, h.store.Repositories().Counters.Create(context.Background(), &domain.Counter{
		ID:          id,
		Name:        "Counter " + id,
		BranchID:    branch,
		Status:      status,
		ServiceTags: tags,
	}))
}

func (h *harness) ticket(t *testing.T, id string, service domain.ServiceType, priority int, offset time.Duration) {
	t.Helper()
	branch := "b1"
	require.NoError(t, h.store.Repositories().Tickets.Create(context.Background(), &domain.Ticket{
		ID:            id,
		Number:        id,
		ServiceType:   service,
		Status:        domain.TicketStatusWaiting,
		BranchID:      &branch,
		PriorityScore: priority,
		CreatedAt:     h.base.Add(offset),
	}))
}

func (h *harness) getTicket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := h.store.Repositories().Tickets.GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (h *harness) getCounter(t *testing.T, id string) *domain.Counter {
	t.Helper()
	counter, err := h.store.Repositories().Counters.GetByID(context.Background(), id)
	require.NoError(t, err)
	return counter
}

// drain returns every event already buffered on sub.
func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case event := <-sub.C():
			out = append(out, event)
		default:
			return out
		}
	}
}

func ofType(evts []events.Event, eventType events.EventType) []events.Event {
	var out []events.Event
	for _, event := range evts {
		if event.Type == eventType {
			out = append(out, event)
		}
	}
	return out
}
