package worker

import (
	"context"

	"basegraph.app/activity/internal/queue"
	"basegraph.app/activity/internal/service"
)

// Consumer abstracts the delivery stream for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Delivery, error)
	Ack(ctx context.Context, d queue.Delivery) error
	Requeue(ctx context.Context, d queue.Delivery, errMsg string) error
	SendDLQ(ctx context.Context, d queue.Delivery, errMsg string) error
}

// Ingester is satisfied by service.IngestService.
type Ingester interface {
	Ingest(ctx context.Context, hookType string, body []byte) (*service.IngestResult, error)
}
