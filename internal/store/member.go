package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/model"
)

type memberStore struct {
	q db.Querier
}

func newMemberStore(q db.Querier) MemberStore {
	return &memberStore{q: q}
}

func (s *memberStore) RoleOf(ctx context.Context, projectID, userID int64) (model.Role, error) {
	var level int16
	err := s.q.QueryRow(ctx, `SELECT access_level FROM members WHERE project_id = $1 AND user_id = $2`, projectID, userID).Scan(&level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.RoleNone, nil
		}
		return model.RoleNone, fmt.Errorf("reading role: %w", err)
	}
	return model.Role(level), nil
}

func (s *memberStore) Upsert(ctx context.Context, m model.Member) error {
	if _, err := s.q.Exec(ctx, `
		INSERT INTO members (project_id, user_id, access_level)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, user_id) DO UPDATE SET access_level = EXCLUDED.access_level`,
		m.ProjectID, m.UserID, int16(m.Role),
	); err != nil {
		return fmt.Errorf("upserting member: %w", err)
	}
	return nil
}

func (s *memberStore) Delete(ctx context.Context, projectID, userID int64) error {
	if _, err := s.q.Exec(ctx, `DELETE FROM members WHERE project_id = $1 AND user_id = $2`, projectID, userID); err != nil {
		return fmt.Errorf("deleting member: %w", err)
	}
	return nil
}

func (s *memberStore) ListByProject(ctx context.Context, projectID int64) ([]model.Member, error) {
	rows, err := s.q.Query(ctx, `SELECT project_id, user_id, access_level FROM members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Member, error) {
		var (
			m     model.Member
			level int16
		)
		err := row.Scan(&m.ProjectID, &m.UserID, &level)
		m.Role = model.Role(level)
		return m, err
	})
}
