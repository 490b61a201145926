package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/api/dto"
	"github.com/spec-kit/branch-queue/internal/service"
)

// AuditHandler lists counter assignment history.
type AuditHandler struct {
	assignments *service.AssignmentService
}

// NewAuditHandler constructs handler.
func NewAuditHandler(assignments *service.AssignmentService) *AuditHandler {
	return &AuditHandler{assignments: assignments}
}

// List GET /audit/assignments?branch_id=&counter_id=&user_id=&from=&to=.
func (h *AuditHandler) List(c *fiber.Ctx) error {
	from, err := parseTime(c.Query("from"))
	if err != nil {
		return err
	}
	to, err := parseTime(c.Query("to"))
	if err != nil {
		return err
	}
	filter := service.AuditListFilter{
		BranchID:  optional(c.Query("branch_id")),
		CounterID: optional(c.Query("counter_id")),
		UserID:    optional(c.Query("user_id")),
		From:      from,
		To:        to,
	}
	filter.Limit, filter.Offset = pagination(c)

	entries, err := h.assignments.ListAudit(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.NewAuditEntryResponse(entry))
	}
	return c.JSON(fiber.Map{"data": items})
}
