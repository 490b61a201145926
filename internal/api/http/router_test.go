package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/api/http/handlers"
	"github.com/spec-kit/branch-queue/internal/auth"
	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/observability"
	"github.com/spec-kit/branch-queue/internal/registry"
	"github.com/spec-kit/branch-queue/internal/repository/memstore"
	"github.com/spec-kit/branch-queue/internal/service"
)

type testServer struct {
	app     *fiber.App
	tokens  *auth.TokenManager
	store   *memstore.Store
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	repos := store.Repositories()
	require.NoError(t, repos.Branches.Create(ctx, &domain.Branch{ID: "b1", Name: "Downtown", Timezone: "UTC", Active: true}))
	require.NoError(t, repos.Staff.Create(ctx, &domain.StaffMember{ID: "u1", Name: "Tina", Role: domain.StaffRoleTeller, Active: true}))
	require.NoError(t, repos.Counters.Create(ctx, &domain.Counter{
		ID: "c1", Name: "Counter 1", BranchID: "b1", Status: domain.CounterStatusOnline,
		ServiceTags: []domain.ServiceType{domain.ServiceDeposit, domain.ServiceLoan},
	}))

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	broadcaster := events.NewBroadcaster(events.NewHub(16), nil, logger)
	rt := service.Runtime{Store: store, Dispatcher: broadcaster, Logger: logger, Metrics: metrics}
	catalog := registry.DefaultCatalog()
	engine := service.NewDispatchService(service.DispatchDependencies{Runtime: rt, Catalog: catalog})
	tickets := service.NewTicketService(service.TicketDependencies{Runtime: rt, Catalog: catalog, Engine: engine})
	counters := service.NewCounterService(service.CounterDependencies{Runtime: rt})
	assignments := service.NewAssignmentService(service.AssignmentDependencies{Runtime: rt})

	tokens := auth.NewTokenManager("test-secret", "branch-queue", time.Hour)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("branch-queue", "test", map[string]handlers.Pinger{"store": store}),
		Metrics:        handlers.NewMetricsHandler(metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, engine),
		Counters:       handlers.NewCountersHandler(counters, engine, assignments),
		Audit:          handlers.NewAuditHandler(assignments),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})
	return &testServer{app: app, tokens: tokens, store: store, metrics: metrics}
}

func (s *testServer) token(t *testing.T, subject string, role domain.StaffRole) string {
	t.Helper()
	tok, _, err := s.tokens.GenerateToken(subject, auth.Claims{Name: subject, Role: role})
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, token, body string) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	out, ok := body["data"].(map[string]any)
	require.True(t, ok, "body: %v", body)
	return out
}

func errorCode(body map[string]any) string {
	errObj, _ := body["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestTicketFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	kiosk := s.token(t, "k1", domain.StaffRoleKiosk)
	teller := s.token(t, "u1", domain.StaffRoleTeller)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/tickets", kiosk, `{"service_type":0,"branch_id":"b1","customer":{"segment":"senior"}}`)
	require.Equal(t, nethttp.StatusCreated, status, body)
	created := data(t, body)
	assert.Equal(t, "A001", created["number"])
	assert.Equal(t, "DEPOSIT", created["service_type"])
	assert.EqualValues(t, 0, created["status_code"])
	assert.EqualValues(t, 25, created["priority_score"])
	id := created["id"].(string)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/counters/c1/call-next", teller, "")
	require.Equal(t, nethttp.StatusOK, status, body)
	called := data(t, body)["ticket"].(map[string]any)
	assert.Equal(t, id, called["id"])
	assert.Equal(t, "CALLED", called["status"])

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+id+"/complete", teller, "")
	assert.Equal(t, nethttp.StatusConflict, status)
	assert.Equal(t, "INVALID_TRANSITION", errorCode(body))

	status, _ = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+id+"/begin", teller, "")
	require.Equal(t, nethttp.StatusOK, status)
	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets/"+id+"/transfer", teller, `{"service_type":"LOAN"}`)
	require.Equal(t, nethttp.StatusOK, status, body)
	assert.Equal(t, "WAITING", data(t, body)["status"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/branches/b1/queue", teller, "")
	require.Equal(t, nethttp.StatusOK, status)
	queue := body["data"].([]any)
	require.Len(t, queue, 1)
	assert.EqualValues(t, 1, queue[0].(map[string]any)["position"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets?status=0&service_type=LOAN", teller, "")
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestIdleCallNextReturnsNullTicket(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, nethttp.MethodPost, "/api/v1/counters/c1/call-next", s.token(t, "u1", domain.StaffRoleTeller), "")
	require.Equal(t, nethttp.StatusOK, status)
	result := data(t, body)
	assert.Nil(t, result["ticket"])
	assert.Equal(t, "c1", result["counter"].(map[string]any)["id"])
}

func TestAuthAndRoleChecks(t *testing.T) {
	s := newTestServer(t)
	display := s.token(t, "d1", domain.StaffRoleDisplay)

	status, body := s.do(t, nethttp.MethodGet, "/api/v1/counters/c1", "", "")
	assert.Equal(t, nethttp.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/counters/c1", display, "")
	assert.Equal(t, nethttp.StatusOK, status)

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/counters/c1/call-next", display, "")
	assert.Equal(t, nethttp.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))

	status, _ = s.do(t, nethttp.MethodGet, "/api/v1/audit/assignments", s.token(t, "u1", domain.StaffRoleTeller), "")
	assert.Equal(t, nethttp.StatusForbidden, status)
}

func TestValidationAndNotFound(t *testing.T) {
	s := newTestServer(t)
	kiosk := s.token(t, "k1", domain.StaffRoleKiosk)

	status, body := s.do(t, nethttp.MethodPost, "/api/v1/tickets", kiosk, `{"service_type":"CASH"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets", kiosk, `{"service_type":9}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodPost, "/api/v1/tickets", kiosk, `{"service_type":"DEPOSIT","branch_id":"nowhere"}`)
	assert.Equal(t, nethttp.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/tickets/missing", kiosk, "")
	assert.Equal(t, nethttp.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestAssignmentAndAuditOverHTTP(t *testing.T) {
	s := newTestServer(t)
	supervisor := s.token(t, "s1", domain.StaffRoleSupervisor)

	status, body := s.do(t, nethttp.MethodPut, "/api/v1/counters/c1/assignment", supervisor, `{"user_id":"u1","reason":"morning shift"}`)
	require.Equal(t, nethttp.StatusOK, status, body)
	entries := data(t, body)["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "ASSIGNED", entries[0].(map[string]any)["action"])

	status, body = s.do(t, nethttp.MethodGet, "/api/v1/audit/assignments?counter_id=c1", supervisor, "")
	require.Equal(t, nethttp.StatusOK, status)
	assert.Len(t, body["data"].([]any), 1)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, nethttp.MethodGet, "/health/ready", "", "")
	assert.Equal(t, nethttp.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	req := httptest.NewRequest(nethttp.MethodGet, "/metrics", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "health/ready")
}
