package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/queue"
)

type Config struct {
	MaxAttempts  int
	ErrorBackoff time.Duration
}

type Worker struct {
	consumer Consumer
	ingester Ingester
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, ingester Ingester, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		ingester:  ingester,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "activity.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(w.cfg.ErrorBackoff):
				}
			}
		}
	}
}

// Stop ends the loop after the current batch and waits for Run to return.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	deliveries, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, d := range deliveries {
		w.Handle(ctx, d)
	}
	return nil
}

// Handle ingests one delivery and settles it: ack on success or permanent
// failure, requeue or DLQ otherwise. The reclaimer reuses it.
func (w *Worker) Handle(ctx context.Context, d queue.Delivery) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(d.ID),
		HookType:  logger.Ptr(d.EventType),
	})
	sc := logger.StartSpanFromTraceID(ctx, d.TraceID, "worker.ingest")
	defer sc.End()
	ctx = sc.Context()

	err := w.processDeliverySafe(ctx, d)
	switch {
	case err == nil:
		if ackErr := w.consumer.Ack(ctx, d); ackErr != nil {
			slog.WarnContext(ctx, "failed to ACK delivery", "error", ackErr)
		}
	case isPermanent(err):
		slog.WarnContext(ctx, "dropping delivery", "error", err)
		if ackErr := w.consumer.Ack(ctx, d); ackErr != nil {
			slog.WarnContext(ctx, "failed to ACK dropped delivery", "error", ackErr)
		}
	default:
		sc.RecordError(err)
		slog.ErrorContext(ctx, "delivery processing failed", "error", err, "attempt", d.Attempt)
		w.handleFailedDelivery(ctx, d, err)
	}
}

func (w *Worker) processDeliverySafe(ctx context.Context, d queue.Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in delivery processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	result, err := w.ingester.Ingest(ctx, d.EventType, d.Body)
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "delivery ingested",
		"event_id", result.Event.ID,
		"duplicated", result.Duplicated,
		"notified", result.Notified)
	return nil
}

// isPermanent reports errors that a retry cannot fix.
func isPermanent(err error) bool {
	return errors.Is(err, mapper.ErrUnsupportedEvent) ||
		errors.Is(err, mapper.ErrInvalidPayload) ||
		errors.Is(err, classifier.ErrMalformedPayload)
}

func (w *Worker) handleFailedDelivery(ctx context.Context, d queue.Delivery, err error) {
	if d.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ", "attempts", d.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, d, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed delivery", "attempt", d.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, d, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue delivery", "error", requeueErr)
	}
}
