package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/blockwatch/internal/core/domain"
	"github.com/vietddude/blockwatch/internal/indexing/metrics"
)

// Publisher appends watch events to a Redis stream. Consumers read them with
// XREADGROUP.
type Publisher struct {
	rdb    commands
	stream string
	maxLen int64
}

func newPublisher(rdb commands, stream string, maxLen int64) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, maxLen: maxLen}
}

// Emit publishes one event.
func (p *Publisher) Emit(ctx context.Context, event *domain.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"event_type": string(event.EventType),
			"watch_id":   event.WatchID,
			"payload":    payload,
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if err := p.rdb.XAdd(ctx, args).Err(); err != nil {
		metrics.CallbacksPublished.WithLabelValues(string(event.EventType), "error").Inc()
		return fmt.Errorf("redis xadd error: %w", err)
	}
	metrics.CallbacksPublished.WithLabelValues(string(event.EventType), "ok").Inc()
	return nil
}

// Close is a no-op; the connection belongs to Client.
func (p *Publisher) Close() error {
	return nil
}
