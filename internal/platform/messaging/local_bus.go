package messaging

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	contractsv1 "govledger/contracts/events/v1"
)

// AllTopics subscribes to every ledger event type.
const AllTopics = "*"

type subscription struct {
	id    uint64
	group string
	ch    chan contractsv1.Envelope
}

// LocalBus delivers relayed ledger events to in-process subscribers. Each
// subscriber owns a buffered channel; when it is full the event is dropped
// for that subscriber and counted, so a slow consumer never stalls the relay.
type LocalBus struct {
	mu      sync.RWMutex
	subs    map[string][]*subscription
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	logger  *slog.Logger
}

func NewLocalBus(buffer int, logger *slog.Logger) *LocalBus {
	if buffer <= 0 {
		buffer = 128
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalBus{
		subs:   make(map[string][]*subscription),
		buffer: buffer,
		logger: logger,
	}
}

func (b *LocalBus) Publish(ctx context.Context, topic string, event contractsv1.Envelope) error {
	b.mu.RLock()
	targets := make([]*subscription, 0, len(b.subs[topic])+len(b.subs[AllTopics]))
	targets = append(targets, b.subs[topic]...)
	targets = append(targets, b.subs[AllTopics]...)
	b.mu.RUnlock()

	for _, sub := range targets {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
			b.logger.Warn("dropping ledger event for slow subscriber",
				"event", "ledger_bus_publish_drop",
				"module", "internal/platform/messaging",
				"layer", "platform",
				"topic", topic,
				"consumer_group", sub.group,
				"event_id", event.EventID,
				"proposal_id", event.PartitionKey,
			)
		}
	}

	b.logger.Info("ledger event published",
		"event", "ledger_bus_publish",
		"module", "internal/platform/messaging",
		"layer", "platform",
		"topic", topic,
		"event_id", event.EventID,
		"subscribers", len(targets),
		"proposal_id", event.PartitionKey,
	)
	return nil
}

// Subscribe runs handler for every event on topic (or AllTopics) until ctx
// is cancelled. Handler errors are logged; the event is not redelivered.
func (b *LocalBus) Subscribe(
	ctx context.Context,
	topic string,
	group string,
	handler func(context.Context, contractsv1.Envelope) error,
) error {
	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:    b.nextID,
		group: group,
		ch:    make(chan contractsv1.Envelope, b.buffer),
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	go func() {
		defer b.unsubscribe(topic, sub.id)
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-sub.ch:
				if err := handler(ctx, event); err != nil {
					b.logger.Error("ledger event handler failed",
						"event", "ledger_bus_consume_failed",
						"module", "internal/platform/messaging",
						"layer", "platform",
						"topic", topic,
						"consumer_group", group,
						"event_id", event.EventID,
						"event_type", event.EventType,
						"error", err.Error(),
					)
				}
			}
		}
	}()
	return nil
}

// Dropped reports how many deliveries were skipped because a subscriber
// buffer was full.
func (b *LocalBus) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *LocalBus) unsubscribe(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	current := b.subs[topic]
	kept := current[:0:0]
	for _, sub := range current {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(b.subs, topic)
		return
	}
	b.subs[topic] = kept
}
