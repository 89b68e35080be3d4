package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/model"
)

type targetStore struct {
	q db.Querier
}

func newTargetStore(q db.Querier) TargetStore {
	return &targetStore{q: q}
}

// UpsertIssue writes the issue and replaces its assignee set.
// Callers should run it inside a transaction.
func (s *targetStore) UpsertIssue(ctx context.Context, issue *model.Issue) error {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO issues (id, iid, project_id, author_id, title, confidential)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			confidential = EXCLUDED.confidential`,
		issue.ID, issue.IID, issue.ProjectID, issue.AuthorID, issue.Title, issue.Confidential,
	); err != nil {
		return fmt.Errorf("upserting issue %d: %w", issue.ID, err)
	}

	if _, err := s.q.Exec(ctx, `DELETE FROM issue_assignees WHERE issue_id = $1`, issue.ID); err != nil {
		return fmt.Errorf("clearing assignees of issue %d: %w", issue.ID, err)
	}
	if len(issue.AssigneeIDs) == 0 {
		return nil
	}
	if _, err := s.q.Exec(ctx, `
		INSERT INTO issue_assignees (issue_id, user_id)
		SELECT $1, unnest($2::bigint[])
		ON CONFLICT DO NOTHING`,
		issue.ID, issue.AssigneeIDs,
	); err != nil {
		return fmt.Errorf("setting assignees of issue %d: %w", issue.ID, err)
	}
	return nil
}

func (s *targetStore) UpsertMergeRequest(ctx context.Context, mr *model.MergeRequest) error {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO merge_requests (id, iid, project_id, author_id, title)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`,
		mr.ID, mr.IID, mr.ProjectID, mr.AuthorID, mr.Title,
	); err != nil {
		return fmt.Errorf("upserting merge request %d: %w", mr.ID, err)
	}
	return nil
}

func (s *targetStore) UpsertNote(ctx context.Context, note *model.Note) error {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO notes (id, project_id, author_id, note, noteable_type, noteable_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET note = EXCLUDED.note`,
		note.ID, note.ProjectID, note.AuthorID, note.Body, note.NoteableType, note.NoteableID,
	); err != nil {
		return fmt.Errorf("upserting note %d: %w", note.ID, err)
	}
	return nil
}

func (s *targetStore) GetIssues(ctx context.Context, ids []int64) (map[int64]*model.Issue, error) {
	issues := make(map[int64]*model.Issue, len(ids))
	if len(ids) == 0 {
		return issues, nil
	}

	rows, err := s.q.Query(ctx, `
		SELECT i.id, i.iid, i.project_id, i.author_id,
			COALESCE(array_agg(a.user_id) FILTER (WHERE a.user_id IS NOT NULL), '{}')::bigint[],
			i.title, i.confidential
		FROM issues i
		LEFT JOIN issue_assignees a ON a.issue_id = i.id
		WHERE i.id = ANY($1)
		GROUP BY i.id`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Issue])
	if err != nil {
		return nil, fmt.Errorf("scanning issues: %w", err)
	}
	for i := range list {
		issues[list[i].ID] = &list[i]
	}
	return issues, nil
}

func (s *targetStore) GetMergeRequests(ctx context.Context, ids []int64) (map[int64]*model.MergeRequest, error) {
	mrs := make(map[int64]*model.MergeRequest, len(ids))
	if len(ids) == 0 {
		return mrs, nil
	}

	rows, err := s.q.Query(ctx, `SELECT id, iid, project_id, author_id, title FROM merge_requests WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.MergeRequest])
	if err != nil {
		return nil, fmt.Errorf("scanning merge requests: %w", err)
	}
	for i := range list {
		mrs[list[i].ID] = &list[i]
	}
	return mrs, nil
}

func (s *targetStore) GetNotes(ctx context.Context, ids []int64) (map[int64]*model.Note, error) {
	notes := make(map[int64]*model.Note, len(ids))
	if len(ids) == 0 {
		return notes, nil
	}

	rows, err := s.q.Query(ctx, `SELECT id, project_id, author_id, note, noteable_type, noteable_id FROM notes WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.Note])
	if err != nil {
		return nil, fmt.Errorf("scanning notes: %w", err)
	}
	for i := range list {
		notes[list[i].ID] = &list[i]
	}
	return notes, nil
}
