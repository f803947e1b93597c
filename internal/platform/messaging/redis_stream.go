package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	contractsv1 "govledger/contracts/events/v1"

	"github.com/redis/go-redis/v9"
)

// StreamAdder is the go-redis subset needed to append stream entries.
type StreamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStream publishes events as entries of the stream <prefix><topic>, for
// example ledger.proposal.voted. Each entry carries the routing fields plus
// the full JSON envelope.
type RedisStream struct {
	client StreamAdder
	prefix string
	maxLen int64
	logger *slog.Logger
}

func NewRedisStream(client StreamAdder, prefix string, maxLen int64, logger *slog.Logger) *RedisStream {
	if strings.TrimSpace(prefix) == "" {
		prefix = "ledger."
	}
	return &RedisStream{client: client, prefix: prefix, maxLen: maxLen, logger: logger}
}

func (r *RedisStream) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	stream := r.prefix + topic
	entryID, err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: r.maxLen,
		Approx: r.maxLen > 0,
		Values: map[string]any{
			"event_id":      event.EventID,
			"event_type":    event.EventType,
			"partition_key": event.PartitionKey,
			"envelope":      string(payload),
		},
	}).Result()
	if err != nil {
		if r.logger != nil {
			r.logger.Error("redis stream publish failed",
				"event", "ledger_stream_publish_failed",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"stream", stream,
				"event_id", event.EventID,
				"error", err.Error(),
			)
		}
		return err
	}
	if r.logger != nil {
		r.logger.Info("event appended to stream",
			"event", "ledger_stream_publish",
			"module", "internal/platform/messaging",
			"layer", "platform",
			"stream", stream,
			"entry_id", entryID,
			"event_id", event.EventID,
		)
	}
	return nil
}
