package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/api/dto"
	"github.com/spec-kit/branch-queue/internal/service"
)

// CountersHandler exposes counter status, dispatch and staffing endpoints.
type CountersHandler struct {
	counters    *service.CounterService
	engine      *service.DispatchService
	assignments *service.AssignmentService
}

// NewCountersHandler constructs handler.
func NewCountersHandler(counters *service.CounterService, engine *service.DispatchService, assignments *service.AssignmentService) *CountersHandler {
	return &CountersHandler{counters: counters, engine: engine, assignments: assignments}
}

// ListByBranch GET /branches/:branchId/counters.
func (h *CountersHandler) ListByBranch(c *fiber.Ctx) error {
	counters, err := h.counters.ListByBranch(c.UserContext(), c.Params("branchId"))
	if err != nil {
		return err
	}
	items := make([]*dto.CounterResponse, 0, len(counters))
	for _, counter := range counters {
		items = append(items, dto.NewCounterResponse(counter))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetCounter GET /counters/:id.
func (h *CountersHandler) GetCounter(c *fiber.Ctx) error {
	counter, err := h.counters.GetCounter(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCounterResponse(counter)})
}

// SetStatus POST /counters/:id/status.
func (h *CountersHandler) SetStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.SetCounterStatusRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	counter, err := h.counters.SetStatus(c.UserContext(), c.Params("id"), req.Status, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCounterResponse(counter)})
}

// CallNext POST /counters/:id/call-next.
func (h *CountersHandler) CallNext(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	result, err := h.engine.CallNext(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CallResultResponse{
		Counter: dto.NewCounterResponse(result.Counter),
		Ticket:  dto.NewTicketResponse(result.Ticket),
	}})
}

// CurrentTicket GET /counters/:id/current.
func (h *CountersHandler) CurrentTicket(c *fiber.Ctx) error {
	ticket, err := h.counters.CurrentTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// LastServedTicket GET /counters/:id/last-served.
func (h *CountersHandler) LastServedTicket(c *fiber.Ctx) error {
	ticket, err := h.counters.LastServedTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AssignStaff PUT /counters/:id/assignment.
func (h *CountersHandler) AssignStaff(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.AssignStaffRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.assignments.AssignStaff(c.UserContext(), service.AssignStaffInput{
		CounterID:   c.Params("id"),
		UserID:      req.UserID,
		PerformedBy: actor,
		Reason:      req.Reason,
		IPAddress:   optional(c.IP()),
	})
	if err != nil {
		return err
	}
	entries := make([]dto.AuditEntryResponse, 0, len(result.Entries))
	for _, entry := range result.Entries {
		entries = append(entries, dto.NewAuditEntryResponse(entry))
	}
	return c.JSON(fiber.Map{"data": dto.AssignmentResponse{
		Counter:         dto.NewCounterResponse(result.Counter),
		ReleasedCounter: dto.NewCounterResponse(result.ReleasedCounter),
		Entries:         entries,
	}})
}
