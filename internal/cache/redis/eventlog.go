package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradecore/internal/domain"
)

// streamMaxLen is the approximate maximum length for Redis streams, enforced
// via XADD MAXLEN ~. Checkpoints make old entries replayable-irrelevant long
// before trimming reaches them.
const defaultStreamMaxLen int64 = 100_000

// EventLog implements domain.EventLog on Redis Streams: ordered, durable,
// multi-subscriber, with monotonic per-entry ids that double as the engine
// cursor.
type EventLog struct {
	rdb    *redis.Client
	maxLen int64
}

// NewEventLog creates an EventLog backed by the given Client.
func NewEventLog(c *Client) *EventLog {
	return NewEventLogWithMaxLen(c, defaultStreamMaxLen)
}

// NewEventLogWithMaxLen creates an EventLog with a custom stream trim bound.
func NewEventLogWithMaxLen(c *Client, maxLen int64) *EventLog {
	if maxLen <= 0 {
		maxLen = defaultStreamMaxLen
	}
	return &EventLog{rdb: c.Underlying(), maxLen: maxLen}
}

// Append adds a {kind, payload} entry to the stream with XADD and returns
// the id Redis assigned to it.
func (l *EventLog) Append(ctx context.Context, stream, kind string, payload []byte) (string, error) {
	args := &redis.XAddArgs{
		Stream: stream,
		MaxLen: l.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"kind":    kind,
			"payload": payload,
		},
	}
	id, err := l.rdb.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return id, nil
}

// Read returns up to count entries with ids strictly greater than after.
// A negative block performs a bounded XRANGE that returns immediately; a
// non-negative block performs XREAD and waits up to that long for new
// entries. An empty result is not an error.
func (l *EventLog) Read(ctx context.Context, stream, after string, count int64, block time.Duration) ([]domain.StreamEntry, error) {
	if block < 0 {
		return l.readRange(ctx, stream, after, count)
	}

	args := &redis.XReadArgs{
		Streams: []string{stream, after},
		Count:   count,
		Block:   block,
	}
	results, err := l.rdb.XRead(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var entries []domain.StreamEntry
	for _, s := range results {
		for _, msg := range s.Messages {
			entries = append(entries, decodeMessage(msg))
		}
	}
	return entries, nil
}

// LastID returns the id of the stream's newest entry, or "0" when the stream
// is empty or does not exist yet.
func (l *EventLog) LastID(ctx context.Context, stream string) (string, error) {
	msgs, err := l.rdb.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("redis: stream last id %s: %w", stream, err)
	}
	if len(msgs) == 0 {
		return "0", nil
	}
	return msgs[0].ID, nil
}

// readRange is the non-blocking path used during recovery replay. "(" makes
// the start exclusive, matching the strictly-greater cursor rule.
func (l *EventLog) readRange(ctx context.Context, stream, after string, count int64) ([]domain.StreamEntry, error) {
	start := "-"
	if after != "" && after != "0" && after != "0-0" {
		start = "(" + after
	}

	msgs, err := l.rdb.XRangeN(ctx, stream, start, "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: stream range %s: %w", stream, err)
	}

	entries := make([]domain.StreamEntry, 0, len(msgs))
	for _, msg := range msgs {
		entries = append(entries, decodeMessage(msg))
	}
	return entries, nil
}

// decodeMessage lifts a raw stream message into a StreamEntry. Entries
// missing the kind or payload fields come out with zero values and are
// rejected by the typed decode at the engine boundary.
func decodeMessage(msg redis.XMessage) domain.StreamEntry {
	entry := domain.StreamEntry{ID: msg.ID}
	if v, ok := msg.Values["kind"]; ok {
		if s, ok := v.(string); ok {
			entry.Kind = s
		}
	}
	if v, ok := msg.Values["payload"]; ok {
		switch p := v.(type) {
		case string:
			entry.Payload = []byte(p)
		case []byte:
			entry.Payload = p
		}
	}
	return entry
}

// Bus implements domain.Bus using Redis Pub/Sub for ephemeral quote fan-out.
type Bus struct {
	rdb *redis.Client
}

// NewBus creates a Bus backed by the given Client.
func NewBus(c *Client) *Bus {
	return &Bus{rdb: c.Underlying()}
}

// Publish sends a raw byte payload to a Redis Pub/Sub channel.
func (b *Bus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe creates a Redis Pub/Sub subscription and returns a read-only
// channel of raw payloads. The subscription closes when ctx is cancelled;
// the returned channel is closed at that point as well.
func (b *Bus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Compile-time interface checks.
var (
	_ domain.EventLog = (*EventLog)(nil)
	_ domain.Bus      = (*Bus)(nil)
)
