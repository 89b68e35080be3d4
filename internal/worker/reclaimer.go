package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/internal/queue"
)

type ReclaimerConfig struct {
	Stream    string
	Group     string
	Consumer  string
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// DeliveryHandler settles a delivery; Worker.Handle is the production one.
type DeliveryHandler func(ctx context.Context, d queue.Delivery)

// Reclaimer takes over deliveries left pending by a consumer that died
// between XREADGROUP and XACK.
type Reclaimer struct {
	client  *redis.Client
	cfg     ReclaimerConfig
	handler DeliveryHandler

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(client *redis.Client, cfg ReclaimerConfig, handler DeliveryHandler) *Reclaimer {
	return &Reclaimer{
		client:    client,
		cfg:       cfg,
		handler:   handler,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx is done.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "activity.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle,
		"stream", r.cfg.Stream)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			if err := r.reclaimOnce(ctx); err != nil {
				slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
			}
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

func (r *Reclaimer) reclaimOnce(ctx context.Context) error {
	messages, _, err := r.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   r.cfg.Stream,
		Group:    r.cfg.Group,
		Consumer: r.cfg.Consumer,
		MinIdle:  r.cfg.MinIdle,
		Start:    "0-0",
		Count:    r.cfg.BatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("xautoclaim: %w", err)
	}

	if len(messages) > 0 {
		slog.InfoContext(ctx, "claimed stale deliveries", "count", len(messages))
	}

	for _, msg := range messages {
		d, err := queue.ParseDelivery(msg)
		if err != nil {
			slog.ErrorContext(ctx, "acking unparseable reclaimed delivery",
				"error", err,
				"raw_message_id", msg.ID)
			if ackErr := r.client.XAck(ctx, r.cfg.Stream, r.cfg.Group, msg.ID).Err(); ackErr != nil {
				slog.WarnContext(ctx, "failed to ack reclaimed delivery", "error", ackErr)
			}
			continue
		}
		r.handler(ctx, d)
	}
	return nil
}
