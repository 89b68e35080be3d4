package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"basegraph.app/activity/common/id"
	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/model"
	"basegraph.app/activity/internal/queue"
)

type IngestResult struct {
	Event      *model.Event
	Kind       classifier.Kind
	DedupeKey  string
	Duplicated bool
	Notified   bool
}

// IngestService turns one webhook delivery into a stored event.
type IngestService interface {
	Ingest(ctx context.Context, hookType string, body []byte) (*IngestResult, error)
}

type ingestService struct {
	mapper   mapper.EventMapper
	txRunner TxRunner
	producer queue.Producer
	logger   *slog.Logger
}

// NewIngestService builds an IngestService. producer may be nil, in which
// case no notices are published.
func NewIngestService(m mapper.EventMapper, txRunner TxRunner, producer queue.Producer, logger *slog.Logger) IngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ingestService{
		mapper:   m,
		txRunner: txRunner,
		producer: producer,
		logger:   logger,
	}
}

func (s *ingestService) Ingest(ctx context.Context, hookType string, body []byte) (*IngestResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		HookType:  logger.Ptr(hookType),
		Component: "activity.service.ingest",
	})

	rec, err := s.mapper.Map(ctx, hookType, body)
	if err != nil {
		return nil, fmt.Errorf("mapping %s: %w", hookType, err)
	}

	// Malformed pushes are rejected here rather than stored and skipped on read.
	kind, err := classifier.Classify(&rec.Event)
	if err != nil {
		return nil, fmt.Errorf("classifying %s: %w", hookType, err)
	}

	if rec.Event.ID == 0 {
		rec.Event.ID = id.New()
	}
	if rec.Event.DedupeKey == "" {
		rec.Event.DedupeKey = computeDedupeKey(hookType, body)
	}

	var created bool
	if err := s.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		var err error
		created, err = saveRecord(ctx, sp, rec)
		return err
	}); err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		EventID:   logger.Ptr(rec.Event.ID),
		ProjectID: logger.Ptr(rec.Event.ProjectID),
	})
	result := &IngestResult{
		Event:      &rec.Event,
		Kind:       kind,
		DedupeKey:  rec.Event.DedupeKey,
		Duplicated: !created,
	}
	if !created {
		s.logger.InfoContext(ctx, "duplicate event deduped", "dedupe_key", rec.Event.DedupeKey)
		return result, nil
	}

	s.logger.InfoContext(ctx, "event recorded",
		"action", rec.Event.Action.String(),
		"kind", string(kind))

	if s.producer == nil {
		return result, nil
	}

	// The event is committed; a lost notice must not cause a re-insert on retry.
	if err := s.producer.Enqueue(ctx, queue.Notice{
		EventID:   rec.Event.ID,
		ProjectID: rec.Event.ProjectID,
		Action:    rec.Event.Action,
		TraceID:   logger.TraceID(ctx),
	}); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event notice", "error", err)
		return result, nil
	}
	result.Notified = true
	return result, nil
}

// computeDedupeKey identifies a webhook delivery by its content. GitLab
// resends the same body when it retries a hook.
func computeDedupeKey(hookType string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(hookType))
	h.Write([]byte{0})
	h.Write(body)
	return "gitlab:" + hex.EncodeToString(h.Sum(nil))
}
