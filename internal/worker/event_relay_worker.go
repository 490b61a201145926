package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/events"
)

// RelaySource is the subscribing half of a cross-instance relay.
type RelaySource interface {
	Run(ctx context.Context, deliver func(context.Context, events.Event)) error
}

// Receiver accepts events that originated on another instance.
type Receiver interface {
	Receive(ctx context.Context, event events.Event)
}

const (
	relayMinBackoff = 500 * time.Millisecond
	relayMaxBackoff = 30 * time.Second
)

// StartEventRelay forwards relayed events to receiver until ctx ends,
// resubscribing with exponential backoff after failures. The returned channel
// closes when the worker stops.
func StartEventRelay(ctx context.Context, source RelaySource, receiver Receiver, logger *zap.Logger) <-chan struct{} {
	done := make(chan struct{})
	if source == nil || receiver == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	go func() {
		defer close(done)
		wait := relayMinBackoff
		for {
			started := time.Now()
			err := source.Run(ctx, receiver.Receive)
			if ctx.Err() != nil {
				return
			}
			if time.Since(started) > relayMaxBackoff {
				wait = relayMinBackoff
			}
			logger.Warn("event relay stopped; resubscribing", zap.Duration("backoff", wait), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			wait *= 2
			if wait > relayMaxBackoff {
				wait = relayMaxBackoff
			}
		}
	}()
	return done
}
