package store

import (
	"context"
	"errors"

	"basegraph.app/activity/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUnsupportedTarget is returned when an event points at a target kind
// that has no table behind it.
var ErrUnsupportedTarget = errors.New("unsupported target kind")

// EventStore defines the contract for event data access.
// List methods return events newest first (created_at DESC, id DESC) with
// Author and Target hydrated.
type EventStore interface {
	CreateOrGet(ctx context.Context, event *model.Event) (*model.Event, bool, error)
	GetByID(ctx context.Context, id int64) (*model.Event, error)
	ListRecentByProject(ctx context.Context, projectID int64, limit int32) ([]model.Event, error)
	ListRecentByTarget(ctx context.Context, kind model.TargetKind, targetID int64, limit int32) ([]model.Event, error)
}

// UserStore defines the contract for user data access
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
	ListByIDs(ctx context.Context, ids []int64) (map[int64]*model.User, error)
	Upsert(ctx context.Context, user *model.User) error
}

// TargetStore defines the contract for event target data access
type TargetStore interface {
	UpsertIssue(ctx context.Context, issue *model.Issue) error
	UpsertMergeRequest(ctx context.Context, mr *model.MergeRequest) error
	UpsertNote(ctx context.Context, note *model.Note) error
	GetIssues(ctx context.Context, ids []int64) (map[int64]*model.Issue, error)
	GetMergeRequests(ctx context.Context, ids []int64) (map[int64]*model.MergeRequest, error)
	GetNotes(ctx context.Context, ids []int64) (map[int64]*model.Note, error)
}

// MemberStore defines the contract for project membership data access
type MemberStore interface {
	// RoleOf returns RoleNone, not ErrNotFound, for non-members.
	RoleOf(ctx context.Context, projectID, userID int64) (model.Role, error)
	Upsert(ctx context.Context, member model.Member) error
	Delete(ctx context.Context, projectID, userID int64) error
	ListByProject(ctx context.Context, projectID int64) ([]model.Member, error)
}
