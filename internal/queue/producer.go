package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/internal/model"
)

// Notice announces a newly recorded event to downstream readers.
type Notice struct {
	EventID   int64
	ProjectID int64
	Action    model.Action
	TraceID   string
}

type Producer interface {
	Enqueue(ctx context.Context, n Notice) error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, n Notice) error {
	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: noticeValues(n),
	}).Err(); err != nil {
		return fmt.Errorf("enqueue notice: %w", err)
	}

	p.logger.DebugContext(ctx, "enqueued event notice",
		"event_id", n.EventID,
		"project_id", n.ProjectID,
		"action", n.Action.String())
	return nil
}

func noticeValues(n Notice) map[string]any {
	values := map[string]any{
		"event_id":   n.EventID,
		"project_id": n.ProjectID,
		"action":     n.Action.String(),
	}
	if n.TraceID != "" {
		values["trace_id"] = n.TraceID
	}
	return values
}
