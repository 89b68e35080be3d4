package service

import (
	"context"
	"fmt"

	"basegraph.app/activity/internal/mapper"
)

// saveRecord writes the author, the target row and the event. It must run
// inside a transaction so a partially written record is never visible. It
// reports false when an event with the same dedupe key already existed; rec's
// id and timestamps are then those of the stored event.
func saveRecord(ctx context.Context, sp StoreProvider, rec *mapper.Record) (bool, error) {
	if rec.Author.ID != 0 {
		if err := sp.Users().Upsert(ctx, &rec.Author); err != nil {
			return false, fmt.Errorf("upserting author: %w", err)
		}
	}

	switch {
	case rec.Issue != nil:
		if err := sp.Targets().UpsertIssue(ctx, rec.Issue); err != nil {
			return false, fmt.Errorf("upserting issue: %w", err)
		}
	case rec.MergeRequest != nil:
		if err := sp.Targets().UpsertMergeRequest(ctx, rec.MergeRequest); err != nil {
			return false, fmt.Errorf("upserting merge request: %w", err)
		}
	case rec.Note != nil:
		if err := sp.Targets().UpsertNote(ctx, rec.Note); err != nil {
			return false, fmt.Errorf("upserting note: %w", err)
		}
	}

	stored, created, err := sp.Events().CreateOrGet(ctx, &rec.Event)
	if err != nil {
		return false, fmt.Errorf("creating event: %w", err)
	}
	rec.Event.ID = stored.ID
	rec.Event.CreatedAt = stored.CreatedAt
	rec.Event.UpdatedAt = stored.UpdatedAt
	return created, nil
}
