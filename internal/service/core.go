package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/events"
	"github.com/spec-kit/branch-queue/internal/observability"
	"github.com/spec-kit/branch-queue/internal/repository"
	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

const tracerName = "github.com/spec-kit/branch-queue/internal/service"

// Runtime carries the collaborators every service shares.
type Runtime struct {
	Store            repository.Store
	Dispatcher       events.Dispatcher
	Locks            *LockSet
	Logger           *zap.Logger
	Metrics          *observability.Metrics
	OperationTimeout time.Duration
	MaxClaimAttempts int
	Now              func() time.Time
}

type core struct {
	store       repository.Store
	dispatcher  events.Dispatcher
	locks       *LockSet
	logger      *zap.Logger
	metrics     *observability.Metrics
	timeout     time.Duration
	maxAttempts int
	now         func() time.Time
	tracer      trace.Tracer
}

func newCore(rt Runtime) core {
	c := core{
		store:       rt.Store,
		dispatcher:  rt.Dispatcher,
		locks:       rt.Locks,
		logger:      rt.Logger,
		metrics:     rt.Metrics,
		timeout:     rt.OperationTimeout,
		maxAttempts: rt.MaxClaimAttempts,
		now:         rt.Now,
		tracer:      otel.Tracer(tracerName),
	}
	if c.locks == nil {
		c.locks = NewLockSet()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.timeout <= 0 {
		c.timeout = 5 * time.Second
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 5
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

func (c *core) clock() time.Time {
	return c.now().UTC()
}

// begin bounds ctx by the operation timeout and opens a span.
func (c *core) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	ctx, span := c.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
	return ctx, span, cancel
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// withRetry re-runs fn while it fails with a Conflict, up to maxAttempts.
func (c *core) withRetry(ctx context.Context, fn func(ctx context.Context, repos repository.Repositories) error) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.store.RunInTx(ctx, fn)
		if err == nil || !apperrors.IsConflict(err) {
			return wrapTimeout(err)
		}
		c.logger.Debug("retrying after conflict", zap.Int("attempt", attempt), zap.Error(err))
		if waitErr := backoff(ctx, attempt); waitErr != nil {
			return wrapTimeout(waitErr)
		}
	}
	return err
}

func backoff(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * 2 * time.Millisecond)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !apperrors.HasCode(err, apperrors.CodeDependencyUnavailable) {
		return apperrors.NewDependencyUnavailable("operation deadline", err)
	}
	return err
}

// publish emits events after commit. Broadcast failures never fail the
// operation: consumers reconcile by re-fetching.
func (c *core) publish(ctx context.Context, evts ...events.Event) {
	if c.dispatcher == nil {
		return
	}
	for _, event := range evts {
		if err := c.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
			c.metrics.RecordBroadcastFailure()
			c.logger.Warn("event broadcast failed",
				zap.String("event_type", string(event.Type)),
				zap.String("branch_id", event.BranchID),
				zap.String("ticket_id", event.TicketID),
				zap.String("counter_id", event.CounterID),
				zap.Error(err))
		}
	}
}

func strPtr(v string) *string { return &v }

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

var errEngineMissing = errors.New("dispatch engine not configured")
