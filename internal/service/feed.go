package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/internal/classifier"
	"basegraph.app/activity/internal/model"
	"basegraph.app/activity/internal/store"
)

// MaxFeedLimit caps the number of events a single feed request reads.
const MaxFeedLimit = 100

// RoleLookup resolves project roles. Both the member store and the Redis
// role cache satisfy it.
type RoleLookup interface {
	RoleOf(ctx context.Context, projectID, userID int64) (model.Role, error)
}

// FeedService answers "what happened recently in this project" for a viewer.
type FeedService interface {
	// Recent returns at most limit events of the project, newest first, with
	// events the viewer may not see removed. It can return fewer than limit.
	Recent(ctx context.Context, projectID int64, viewer *model.User, limit int) ([]model.Event, error)
	// ForTarget is Recent scoped to one issue, merge request or note.
	ForTarget(ctx context.Context, kind model.TargetKind, targetID int64, viewer *model.User, limit int) ([]model.Event, error)
	Visible(ctx context.Context, event *model.Event, viewer *model.User) (bool, error)
}

type feedService struct {
	events       store.EventStore
	roles        RoleLookup
	defaultLimit int
	logger       *slog.Logger
}

func NewFeedService(events store.EventStore, roles RoleLookup, defaultLimit int, logger *slog.Logger) FeedService {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultLimit <= 0 {
		defaultLimit = classifier.DefaultRecentLimit
	}
	defaultLimit = min(defaultLimit, MaxFeedLimit)
	return &feedService{
		events:       events,
		roles:        roles,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

func (s *feedService) Recent(ctx context.Context, projectID int64, viewer *model.User, limit int) ([]model.Event, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(projectID),
		ViewerID:  viewerID(viewer),
		Component: "activity.service.feed",
	})
	return s.visibleRecent(ctx, "feed.recent", viewer, limit, func(ctx context.Context, limit int32) ([]model.Event, error) {
		return s.events.ListRecentByProject(ctx, projectID, limit)
	})
}

func (s *feedService) ForTarget(ctx context.Context, kind model.TargetKind, targetID int64, viewer *model.User, limit int) ([]model.Event, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ViewerID:  viewerID(viewer),
		Component: "activity.service.feed",
	})
	return s.visibleRecent(ctx, "feed.for_target", viewer, limit, func(ctx context.Context, limit int32) ([]model.Event, error) {
		return s.events.ListRecentByTarget(ctx, kind, targetID, limit)
	})
}

func (s *feedService) visibleRecent(
	ctx context.Context,
	spanName string,
	viewer *model.User,
	limit int,
	list func(ctx context.Context, limit int32) ([]model.Event, error),
) ([]model.Event, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	limit = min(limit, MaxFeedLimit)

	sc := logger.StartSpan(ctx, spanName)
	defer sc.End()
	ctx = sc.Context()

	events, err := list(ctx, int32(limit))
	if err != nil {
		sc.RecordError(err)
		return nil, fmt.Errorf("listing recent events: %w", err)
	}
	events = classifier.LimitRecent(events, limit)

	roster, err := s.rosterFor(ctx, events, viewer)
	if err != nil {
		sc.RecordError(err)
		return nil, err
	}

	visible := lo.Filter(events, func(e model.Event, _ int) bool {
		return classifier.Proper(&e, viewer, roster)
	})

	if hidden := len(events) - len(visible); hidden > 0 {
		s.logger.DebugContext(ctx, "hid events from viewer", "hidden", hidden, "returned", len(visible))
	}
	return visible, nil
}

func (s *feedService) Visible(ctx context.Context, event *model.Event, viewer *model.User) (bool, error) {
	if event == nil {
		return false, nil
	}
	roster, err := s.rosterFor(ctx, []model.Event{*event}, viewer)
	if err != nil {
		return false, err
	}
	return classifier.Proper(event, viewer, roster), nil
}

// rosterFor looks up the viewer's role only in projects where some event
// actually depends on it.
func (s *feedService) rosterFor(ctx context.Context, events []model.Event, viewer *model.User) (classifier.Roster, error) {
	roster := classifier.Roster{}
	if viewer == nil || viewer.Admin || s.roles == nil {
		return roster, nil
	}

	projects := lo.Uniq(lo.FilterMap(events, func(e model.Event, _ int) (int64, bool) {
		return e.ProjectID, needsRole(&e, viewer)
	}))

	for _, projectID := range projects {
		role, err := s.roles.RoleOf(ctx, projectID, viewer.ID)
		if err != nil {
			return nil, fmt.Errorf("resolving role of user %d in project %d: %w", viewer.ID, projectID, err)
		}
		roster.Add(projectID, viewer.ID, role)
	}
	return roster, nil
}

func needsRole(e *model.Event, viewer *model.User) bool {
	issue, ok := e.Target.(*model.Issue)
	if !ok || !issue.Confidential {
		return false
	}
	return viewer.ID != issue.AuthorID && !issue.IsAssignee(viewer.ID)
}

func viewerID(viewer *model.User) *int64 {
	if viewer == nil {
		return nil
	}
	return logger.Ptr(viewer.ID)
}
