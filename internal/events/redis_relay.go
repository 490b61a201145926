package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/branch-queue/pkg/util"
)

const allBranchesChannel = "_all"

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay shares events between instances over Redis pub/sub, one channel
// per branch, and keeps the per-branch sequence in Redis counters.
type RedisRelay struct {
	client *redis.Client
	prefix string
	origin string
	logger *zap.Logger
}

// NewRedisRelay builds a relay publishing on channels named prefix:branch.
func NewRedisRelay(client *redis.Client, prefix string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRelay{client: client, prefix: prefix, origin: uuid.NewString(), logger: logger}
}

func (r *RedisRelay) channel(branchID string) string {
	if branchID == "" {
		branchID = allBranchesChannel
	}
	return r.prefix + ":" + branchID
}

func (r *RedisRelay) Publish(ctx context.Context, event Event) error {
	raw, err := json.Marshal(envelope{Origin: r.origin, Event: event})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(event.BranchID), raw).Err(); err != nil {
		return apperrors.NewDependencyUnavailable("event relay", err)
	}
	return nil
}

func (r *RedisRelay) NextSeq(ctx context.Context, branchID string) (int64, error) {
	if branchID == "" {
		branchID = allBranchesChannel
	}
	return r.client.Incr(ctx, r.prefix+":seq:"+branchID).Result()
}

// Run forwards events published by other instances to deliver until ctx ends.
func (r *RedisRelay) Run(ctx context.Context, deliver func(context.Context, Event)) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+":*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return apperrors.NewDependencyUnavailable("event relay", err)
	}
	r.logger.Info("event relay subscribed", zap.String("pattern", r.prefix+":*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if strings.HasPrefix(msg.Channel, r.prefix+":seq:") {
				continue
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("discarding malformed relay message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if env.Origin == r.origin {
				continue
			}
			deliver(ctx, env.Event)
		}
	}
}
