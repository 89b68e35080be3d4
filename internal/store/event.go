package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/model"
)

const eventColumns = `id, project_id, author_id, action, target_type, target_id, title, data, dedupe_key, created_at, updated_at`

type eventStore struct {
	q       db.Querier
	users   UserStore
	targets TargetStore
}

func newEventStore(q db.Querier, users UserStore, targets TargetStore) EventStore {
	return &eventStore{q: q, users: users, targets: targets}
}

// CreateOrGet inserts e unless an event with the same dedupe key exists. It
// returns the stored event and whether this call created it. An empty dedupe
// key falls back to the event id.
func (s *eventStore) CreateOrGet(ctx context.Context, e *model.Event) (*model.Event, bool, error) {
	var (
		targetType *string
		targetID   *int64
	)
	switch t := e.Target.(type) {
	case nil:
	case *model.Commit:
		return nil, false, fmt.Errorf("event %d: %w: %s", e.ID, ErrUnsupportedTarget, t.Kind())
	default:
		kind := string(t.Kind())
		tid := t.TargetID()
		targetType = &kind
		targetID = &tid
	}

	var data []byte
	if len(e.Data) > 0 {
		data = e.Data
	}

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	e.UpdatedAt = e.CreatedAt
	if e.DedupeKey == "" {
		e.DedupeKey = fmt.Sprintf("event:%d", e.ID)
	}

	var (
		stored   = *e
		inserted bool
	)
	// xmax is zero only for a freshly inserted row.
	err := s.q.QueryRow(ctx, `
		INSERT INTO events (id, project_id, author_id, action, target_type, target_id, title, data, dedupe_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (dedupe_key) DO UPDATE SET dedupe_key = EXCLUDED.dedupe_key
		RETURNING id, created_at, updated_at, (xmax = 0)`,
		e.ID, e.ProjectID, e.AuthorID, int16(e.Action), targetType, targetID, e.Title, data, e.DedupeKey, e.CreatedAt, e.UpdatedAt,
	).Scan(&stored.ID, &stored.CreatedAt, &stored.UpdatedAt, &inserted)
	if err != nil {
		return nil, false, fmt.Errorf("inserting event: %w", err)
	}
	return &stored, inserted, nil
}

func (s *eventStore) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	rows, err := s.q.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	events, err := s.collect(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNotFound
	}
	return &events[0], nil
}

func (s *eventStore) ListRecentByProject(ctx context.Context, projectID int64, limit int32) ([]model.Event, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE project_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

func (s *eventStore) ListRecentByTarget(ctx context.Context, kind model.TargetKind, targetID int64, limit int32) ([]model.Event, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, string(kind), targetID, limit)
	if err != nil {
		return nil, err
	}
	return s.collect(ctx, rows)
}

type eventRow struct {
	event      model.Event
	targetType *string
	targetID   *int64
}

func (s *eventStore) collect(ctx context.Context, rows pgx.Rows) ([]model.Event, error) {
	scanned, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (eventRow, error) {
		var (
			r      eventRow
			action int16
			data   []byte
		)
		err := row.Scan(
			&r.event.ID, &r.event.ProjectID, &r.event.AuthorID, &action,
			&r.targetType, &r.targetID, &r.event.Title, &data,
			&r.event.DedupeKey, &r.event.CreatedAt, &r.event.UpdatedAt,
		)
		r.event.Action = model.Action(action)
		r.event.Data = data
		return r, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning events: %w", err)
	}
	return s.hydrate(ctx, scanned)
}

// hydrate loads authors and targets with one query per table. A merge request
// or note that no longer exists leaves the event without a target; a missing
// issue is kept as a confidential placeholder so its events stay restricted.
func (s *eventStore) hydrate(ctx context.Context, rows []eventRow) ([]model.Event, error) {
	var authorIDs, issueIDs, mrIDs, noteIDs []int64
	for _, r := range rows {
		authorIDs = append(authorIDs, r.event.AuthorID)
		if r.targetType == nil || r.targetID == nil {
			continue
		}
		switch model.TargetKind(*r.targetType) {
		case model.TargetKindIssue:
			issueIDs = append(issueIDs, *r.targetID)
		case model.TargetKindMergeRequest:
			mrIDs = append(mrIDs, *r.targetID)
		case model.TargetKindNote:
			noteIDs = append(noteIDs, *r.targetID)
		}
	}

	authors, err := s.users.ListByIDs(ctx, authorIDs)
	if err != nil {
		return nil, fmt.Errorf("loading authors: %w", err)
	}
	issues, err := s.targets.GetIssues(ctx, issueIDs)
	if err != nil {
		return nil, fmt.Errorf("loading issues: %w", err)
	}
	mrs, err := s.targets.GetMergeRequests(ctx, mrIDs)
	if err != nil {
		return nil, fmt.Errorf("loading merge requests: %w", err)
	}
	notes, err := s.targets.GetNotes(ctx, noteIDs)
	if err != nil {
		return nil, fmt.Errorf("loading notes: %w", err)
	}

	events := make([]model.Event, 0, len(rows))
	for _, r := range rows {
		e := r.event
		e.Author = authors[e.AuthorID]
		if r.targetType != nil && r.targetID != nil {
			switch model.TargetKind(*r.targetType) {
			case model.TargetKindIssue:
				if issue, ok := issues[*r.targetID]; ok {
					e.Target = issue
				} else {
					e.Target = &model.Issue{ID: *r.targetID, ProjectID: e.ProjectID, Confidential: true}
				}
			case model.TargetKindMergeRequest:
				if mr, ok := mrs[*r.targetID]; ok {
					e.Target = mr
				}
			case model.TargetKindNote:
				if note, ok := notes[*r.targetID]; ok {
					e.Target = note
				}
			}
		}
		events = append(events, e)
	}
	return events, nil
}
