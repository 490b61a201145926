package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/events"
)

// Announcement is one "now serving" call for branch displays and audio.
type Announcement struct {
	BranchID    string
	TicketID    string
	Number      string
	CounterID   string
	CounterName string
	Recall      bool
	RecallCount int
}

// Text renders the spoken form of the announcement.
func (a Announcement) Text() string {
	counter := a.CounterName
	if counter == "" {
		counter = a.CounterID
	}
	return fmt.Sprintf("Ticket %s, please proceed to %s", a.Number, counter)
}

// Announcer delivers announcements to an output such as a text-to-speech device.
type Announcer interface {
	Announce(ctx context.Context, a Announcement) error
}

// LogAnnouncer writes announcements to the log.
type LogAnnouncer struct {
	logger *zap.Logger
}

// NewLogAnnouncer creates a log-backed announcer.
func NewLogAnnouncer(logger *zap.Logger) *LogAnnouncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAnnouncer{logger: logger}
}

func (l *LogAnnouncer) Announce(_ context.Context, a Announcement) error {
	l.logger.Info(a.Text(),
		zap.String("branch_id", a.BranchID),
		zap.String("ticket_id", a.TicketID),
		zap.String("counter_id", a.CounterID),
		zap.Bool("recall", a.Recall),
		zap.Int("recall_count", a.RecallCount))
	return nil
}

// AnnouncementService turns ticket.called events into announcements.
type AnnouncementService struct {
	dispatcher events.Dispatcher
	announcer  Announcer
	logger     *zap.Logger
}

// NewAnnouncementService creates the service.
func NewAnnouncementService(dispatcher events.Dispatcher, announcer Announcer, logger *zap.Logger) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if announcer == nil {
		announcer = NewLogAnnouncer(logger)
	}
	return &AnnouncementService{dispatcher: dispatcher, announcer: announcer, logger: logger}
}

// RegisterHandlers subscribes to events.
func (n *AnnouncementService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketCalled, n.handleTicketCalled)
}

func (n *AnnouncementService) handleTicketCalled(ctx context.Context, event events.Event) error {
	payload, err := events.DecodePayload[events.TicketCalledPayload](event)
	if err != nil {
		return fmt.Errorf("decode ticket.called payload: %w", err)
	}
	n.logger.Debug("TicketCalled", zap.String("ticket_id", event.TicketID), zap.Int64("seq", event.Seq))
	return n.announcer.Announce(ctx, Announcement{
		BranchID:    event.BranchID,
		TicketID:    event.TicketID,
		Number:      payload.Number,
		CounterID:   payload.CounterID,
		CounterName: payload.CounterName,
		Recall:      payload.Recall,
		RecallCount: payload.RecallCount,
	})
}
