package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/branch-queue/internal/observability"
)

// MetricsHandler serves in-process counters in the Prometheus text format.
type MetricsHandler struct {
	metrics *observability.Metrics
}

// NewMetricsHandler constructs handler.
func NewMetricsHandler(metrics *observability.Metrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

// Render GET /metrics.
func (h *MetricsHandler) Render(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/plain; version=0.0.4")
	return c.SendString(h.metrics.Render())
}
