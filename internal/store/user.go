package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"basegraph.app/activity/core/db"
	"basegraph.app/activity/internal/model"
)

type userStore struct {
	q db.Querier
}

func newUserStore(q db.Querier) UserStore {
	return &userStore{q: q}
}

func (s *userStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User
	err := s.q.QueryRow(ctx, `SELECT id, username, name, email, admin FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Username, &u.Name, &u.Email, &u.Admin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) ListByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error) {
	users := make(map[int64]*model.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	rows, err := s.q.Query(ctx, `SELECT id, username, name, email, admin FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[model.User])
	if err != nil {
		return nil, fmt.Errorf("scanning users: %w", err)
	}
	for i := range list {
		users[list[i].ID] = &list[i]
	}
	return users, nil
}

// Upsert creates or refreshes a user's profile. The admin flag is owned by
// the user directory and is never changed here.
func (s *userStore) Upsert(ctx context.Context, u *model.User) error {
	err := s.q.QueryRow(ctx, `
		INSERT INTO users (id, username, name, email, admin)
		VALUES ($1, $2, $3, $4, false)
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(NULLIF(EXCLUDED.username, ''), users.username),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email)
		RETURNING admin`,
		u.ID, u.Username, u.Name, u.Email,
	).Scan(&u.Admin)
	if err != nil {
		return fmt.Errorf("upserting user %d: %w", u.ID, err)
	}
	return nil
}
