package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/api/http/handlers"
	"github.com/spec-kit/branch-queue/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Metrics        *handlers.MetricsHandler
	Tickets        *handlers.TicketsHandler
	Counters       *handlers.CountersHandler
	Audit          *handlers.AuditHandler
	Events         *handlers.EventsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", cfg.Metrics.Render)
	}

	api := app.Group("/api/v1", cfg.AuthMiddleware.Handle, auth.RequireAnyRole())
	counterStaff := auth.RequireStaffRole(auth.CounterStaff...)

	tickets := api.Group("/tickets")
	tickets.Post("", auth.RequireStaffRole(auth.TicketIssuers...), cfg.Tickets.CreateTicket)
	tickets.Get("", cfg.Tickets.ListTickets)
	tickets.Get("/:id", cfg.Tickets.GetTicket)
	tickets.Post("/:id/call", counterStaff, cfg.Tickets.CallTicket)
	tickets.Post("/:id/recall", counterStaff, cfg.Tickets.Recall)
	tickets.Post("/:id/begin", counterStaff, cfg.Tickets.BeginService)
	tickets.Post("/:id/complete", counterStaff, cfg.Tickets.Complete)
	tickets.Post("/:id/transfer", counterStaff, cfg.Tickets.Transfer)
	tickets.Post("/:id/move-to-end", counterStaff, cfg.Tickets.MoveToEnd)
	tickets.Post("/:id/missed", counterStaff, cfg.Tickets.MarkMissed)
	tickets.Post("/:id/remarks", counterStaff, cfg.Tickets.AddRemark)

	branches := api.Group("/branches/:branchId")
	branches.Get("/queue", cfg.Tickets.Queue)
	branches.Get("/counters", cfg.Counters.ListByBranch)
	if cfg.Events != nil {
		branches.Get("/events", cfg.Events.Stream)
	}

	counters := api.Group("/counters")
	counters.Get("/:id", cfg.Counters.GetCounter)
	counters.Get("/:id/current", cfg.Counters.CurrentTicket)
	counters.Get("/:id/last-served", cfg.Counters.LastServedTicket)
	counters.Post("/:id/status", counterStaff, cfg.Counters.SetStatus)
	counters.Post("/:id/call-next", counterStaff, cfg.Counters.CallNext)
	counters.Put("/:id/assignment", counterStaff, cfg.Counters.AssignStaff)

	api.Get("/audit/assignments", auth.RequireStaffRole(auth.Supervisors...), cfg.Audit.List)
}
