package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/events"
)

// EventsHandler streams branch events to displays and teller screens as
// server-sent events.
type EventsHandler struct {
	hub       *events.Hub
	heartbeat time.Duration
	done      <-chan struct{}
	logger    *zap.Logger
}

// NewEventsHandler constructs handler. Streams end when done closes.
func NewEventsHandler(hub *events.Hub, heartbeat time.Duration, done <-chan struct{}, logger *zap.Logger) *EventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventsHandler{hub: hub, heartbeat: heartbeat, done: done, logger: logger}
}

// Stream GET /branches/:branchId/events.
func (h *EventsHandler) Stream(c *fiber.Ctx) error {
	branchID := c.Params("branchId")
	sub := h.hub.Subscribe(branchID)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.hub.Unsubscribe(sub)
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		fmt.Fprintf(w, "retry: 3000\n\n")
		if err := w.Flush(); err != nil {
			return
		}
		for {
			select {
			case <-h.done:
				return
			case event, ok := <-sub.C():
				if !ok {
					return
				}
				if err := writeEvent(w, event); err != nil {
					h.logger.Warn("dropping event stream", zap.String("branch_id", branchID), zap.Error(err))
					return
				}
			case <-ticker.C:
				fmt.Fprintf(w, ": ping %d\n\n", sub.Dropped())
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event events.Event) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Seq, event.Type, raw)
	return err
}
