package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/common/logger"
)

type ConsumerConfig struct {
	Stream       string        // stream the webhook receiver writes deliveries to
	Group        string        // consumer group name
	Consumer     string        // consumer name within the group
	DLQStream    string        // where deliveries go after MaxAttempts
	BatchSize    int64         // deliveries per XREADGROUP
	Block        time.Duration // how long XREADGROUP blocks
	RequeueDelay time.Duration // pause before re-adding a failed delivery
}

// Delivery is one raw GitLab webhook body as placed on the stream.
type Delivery struct {
	ID        string
	EventType string
	Body      []byte
	Attempt   int
	TraceID   string
}

type RedisConsumer struct {
	client *redis.Client
	cfg    ConsumerConfig
}

func NewRedisConsumer(ctx context.Context, client *redis.Client, cfg ConsumerConfig) (*RedisConsumer, error) {
	consumer := &RedisConsumer{
		client: client,
		cfg:    cfg,
	}

	if err := consumer.ensureGroup(ctx); err != nil {
		return nil, err
	}

	return consumer, nil
}

func (c *RedisConsumer) ensureGroup(ctx context.Context) error {
	// "0" so deliveries written before the group existed are not skipped.
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("creating consumer group: %w", err)
	}
	return nil
}

func (c *RedisConsumer) Read(ctx context.Context) ([]Delivery, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "activity.queue.consumer",
	})

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    c.cfg.Block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Delivery{}, nil
		}
		return nil, fmt.Errorf("reading from stream: %w", err)
	}

	var deliveries []Delivery
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			parsed, parseErr := ParseDelivery(msg)
			if parseErr != nil {
				slog.ErrorContext(ctx, "dropping unparseable delivery",
					"error", parseErr,
					"raw_message_id", msg.ID,
					"stream", c.cfg.Stream)
				_ = c.Ack(ctx, Delivery{ID: msg.ID})
				continue
			}
			deliveries = append(deliveries, parsed)
		}
	}

	if len(deliveries) > 0 {
		slog.DebugContext(ctx, "read deliveries from stream",
			"count", len(deliveries),
			"stream", c.cfg.Stream,
			"consumer", c.cfg.Consumer)
	}

	return deliveries, nil
}

func (c *RedisConsumer) Ack(ctx context.Context, d Delivery) error {
	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, d.ID).Err(); err != nil {
		return fmt.Errorf("xack (stream=%s): %w", c.cfg.Stream, err)
	}
	return nil
}

// Requeue acks the delivery and appends a copy with the attempt counter bumped.
func (c *RedisConsumer) Requeue(ctx context.Context, d Delivery, errMsg string) error {
	if err := c.Ack(ctx, d); err != nil {
		return fmt.Errorf("acking failed delivery for requeue: %w", err)
	}

	attempt := d.Attempt + 1
	values := deliveryValues(d, attempt)
	if errMsg != "" {
		values["last_error"] = logger.Truncate(errMsg, 1024)
	}

	if c.cfg.RequeueDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RequeueDelay):
		}
	}

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd requeue: %w", err)
	}

	slog.InfoContext(ctx, "delivery requeued for retry",
		"next_attempt", attempt,
		"reason", errMsg)
	return nil
}

func (c *RedisConsumer) SendDLQ(ctx context.Context, d Delivery, errMsg string) error {
	if err := c.Ack(ctx, d); err != nil {
		return fmt.Errorf("acking failed delivery for dlq: %w", err)
	}

	values := deliveryValues(d, d.Attempt)
	values["error"] = logger.Truncate(errMsg, 1024)

	if err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.DLQStream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", c.cfg.DLQStream, err)
	}

	slog.ErrorContext(ctx, "delivery sent to DLQ",
		"final_error", errMsg,
		"dlq_stream", c.cfg.DLQStream)
	return nil
}

func ParseDelivery(msg redis.XMessage) (Delivery, error) {
	eventType, err := parseString(msg.Values, "event_type")
	if err != nil {
		return Delivery{}, err
	}
	if eventType == "" {
		return Delivery{}, fmt.Errorf("empty event_type")
	}

	body, err := parseString(msg.Values, "body")
	if err != nil {
		return Delivery{}, err
	}

	attempt, err := parseOptionalInt(msg.Values, "attempt")
	if err != nil {
		return Delivery{}, err
	}
	if attempt == 0 {
		attempt = 1
	}

	return Delivery{
		ID:        msg.ID,
		EventType: eventType,
		Body:      []byte(body),
		Attempt:   attempt,
		TraceID:   parseOptionalString(msg.Values, "trace_id"),
	}, nil
}

func parseString(values map[string]any, key string) (string, error) {
	raw, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing %s", key)
	}
	return fmt.Sprint(raw), nil
}

func parseOptionalString(values map[string]any, key string) string {
	raw, ok := values[key]
	if !ok {
		return ""
	}
	return fmt.Sprint(raw)
}

func parseOptionalInt(values map[string]any, key string) (int, error) {
	raw, ok := values[key]
	if !ok {
		return 0, nil
	}
	num, err := strconv.Atoi(fmt.Sprint(raw))
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return num, nil
}

func deliveryValues(d Delivery, attempt int) map[string]any {
	values := map[string]any{
		"event_type": d.EventType,
		"body":       string(d.Body),
		"attempt":    attempt,
	}
	if d.TraceID != "" {
		values["trace_id"] = d.TraceID
	}
	return values
}
