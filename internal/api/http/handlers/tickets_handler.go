package handlers

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/api/dto"
	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/service"
)

// TicketsHandler exposes ticket issuance, lookups and lifecycle transitions.
type TicketsHandler struct {
	tickets *service.TicketService
	engine  *service.DispatchService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, engine *service.DispatchService) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, engine: engine}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.CreateTicket(c.UserContext(), actor, service.CreateTicketInput{
		ServiceType: req.ServiceType.Value(),
		BranchID:    req.BranchID,
		Customer:    req.Customer.Domain(),
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.tickets.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// ListTickets GET /tickets?branch_id=&counter_id=&status=&service_type=.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter := service.TicketListFilter{
		BranchID:  optional(c.Query("branch_id")),
		CounterID: optional(c.Query("counter_id")),
	}
	for _, raw := range splitList(c.Query("status")) {
		status, err := dto.ParseTicketStatus(raw)
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	for _, raw := range splitList(c.Query("service_type")) {
		svc, err := dto.ParseServiceType(raw)
		if err != nil {
			return err
		}
		filter.ServiceTypes = append(filter.ServiceTypes, svc)
	}
	filter.Limit, filter.Offset = pagination(c)

	tickets, err := h.tickets.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]*dto.TicketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		items = append(items, dto.NewTicketResponse(ticket))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Queue GET /branches/:branchId/queue.
func (h *TicketsHandler) Queue(c *fiber.Ctx) error {
	entries, err := h.tickets.QueueSnapshot(c.UserContext(), c.Params("branchId"), parseInt(c.Query("limit"), 0))
	if err != nil {
		return err
	}
	items := make([]dto.QueueEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.QueueEntryResponse{Position: entry.Position, Ticket: dto.NewTicketResponse(entry.Ticket)})
	}
	return c.JSON(fiber.Map{"data": items})
}

// CallTicket POST /tickets/:id/call.
func (h *TicketsHandler) CallTicket(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CallTicketRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	result, err := h.engine.CallTicket(c.UserContext(), c.Params("id"), req.CounterID, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.CallResultResponse{
		Counter: dto.NewCounterResponse(result.Counter),
		Ticket:  dto.NewTicketResponse(result.Ticket),
	}})
}

// Recall POST /tickets/:id/recall.
func (h *TicketsHandler) Recall(c *fiber.Ctx) error {
	return h.transition(c, h.engine.Recall)
}

// BeginService POST /tickets/:id/begin.
func (h *TicketsHandler) BeginService(c *fiber.Ctx) error {
	return h.transition(c, h.engine.BeginService)
}

// Complete POST /tickets/:id/complete.
func (h *TicketsHandler) Complete(c *fiber.Ctx) error {
	return h.transition(c, h.engine.Complete)
}

// MarkMissed POST /tickets/:id/missed.
func (h *TicketsHandler) MarkMissed(c *fiber.Ctx) error {
	return h.transition(c, h.engine.MarkMissed)
}

// Transfer POST /tickets/:id/transfer.
func (h *TicketsHandler) Transfer(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.TransferRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.Transfer(c.UserContext(), c.Params("id"), service.TransferInput{
		ServiceType:     req.ServiceType.Value(),
		TargetCounterID: req.TargetCounterID,
	}, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// MoveToEnd POST /tickets/:id/move-to-end.
func (h *TicketsHandler) MoveToEnd(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.MoveToEndRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.engine.MoveToEnd(c.UserContext(), c.Params("id"), req.Reason, actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

// AddRemark POST /tickets/:id/remarks.
func (h *TicketsHandler) AddRemark(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.RemarkRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	ticket, err := h.tickets.AppendRemark(c.UserContext(), c.Params("id"), req.Text, actor)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}

type transitionFunc func(ctx context.Context, ticketID string, actor domain.Actor) (*domain.Ticket, error)

func (h *TicketsHandler) transition(c *fiber.Ctx, fn transitionFunc) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	ticket, err := fn(c.UserContext(), c.Params("id"), actor)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(ticket)})
}
