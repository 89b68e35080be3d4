package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/samber/lo"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/activity/common/logger"
	"basegraph.app/activity/internal/mapper"
	"basegraph.app/activity/internal/model"
)

const importPageSize = 100

// ProjectEventSource is the part of the GitLab API the importer reads.
type ProjectEventSource interface {
	// EachEventPage calls fn with every page of the project's visible
	// events, newest first, stopping at the first error.
	EachEventPage(ctx context.Context, projectID int64, fn func([]*gitlab.ProjectEvent) error) error
	GetIssue(ctx context.Context, projectID, iid int64) (*gitlab.Issue, error)
	// ListMembers returns direct and inherited members of the project.
	ListMembers(ctx context.Context, projectID int64) ([]*gitlab.ProjectMember, error)
}

// RoleInvalidator drops cached roles after a membership change.
type RoleInvalidator interface {
	Invalidate(ctx context.Context, projectID, userID int64) error
}

type ImportResult struct {
	Imported int
	Existing int
	Skipped  int
	// Members is the number of memberships added, changed or removed.
	Members int
}

// Importer backfills a project's memberships and activity from the GitLab API.
type Importer interface {
	ImportProject(ctx context.Context, projectID int64) (*ImportResult, error)
}

type importer struct {
	source      ProjectEventSource
	txRunner    TxRunner
	invalidator RoleInvalidator
	logger      *slog.Logger
}

// NewImporter builds an Importer. invalidator may be nil when no role cache
// is in use.
func NewImporter(source ProjectEventSource, txRunner TxRunner, invalidator RoleInvalidator, logger *slog.Logger) Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &importer{
		source:      source,
		txRunner:    txRunner,
		invalidator: invalidator,
		logger:      logger,
	}
}

func (i *importer) ImportProject(ctx context.Context, projectID int64) (*ImportResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ProjectID: logger.Ptr(projectID),
		Component: "activity.service.importer",
	})
	sc := logger.StartSpan(ctx, "importer.import_project")
	defer sc.End()
	ctx = sc.Context()

	result := &ImportResult{}

	changed, err := i.syncMembers(ctx, projectID)
	if err != nil {
		sc.RecordError(err)
		return result, fmt.Errorf("importing project %d: %w", projectID, err)
	}
	result.Members = changed

	if err := i.importEvents(ctx, projectID, result); err != nil {
		sc.RecordError(err)
		return result, fmt.Errorf("importing project %d: %w", projectID, err)
	}

	i.logger.InfoContext(ctx, "project import finished",
		"imported", result.Imported,
		"existing", result.Existing,
		"skipped", result.Skipped,
		"members_changed", result.Members)
	return result, nil
}

// syncMembers mirrors the project's GitLab membership into the member store
// and returns how many memberships changed. Cached roles of changed users are
// invalidated after the commit.
func (i *importer) syncMembers(ctx context.Context, projectID int64) (int, error) {
	remote, err := i.source.ListMembers(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("listing members: %w", err)
	}
	remote = lo.Compact(remote)

	var changed []int64
	if err := i.txRunner.WithTx(ctx, func(sp StoreProvider) error {
		existing, err := sp.Members().ListByProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("listing stored members: %w", err)
		}
		roles := lo.SliceToMap(existing, func(m model.Member) (int64, model.Role) {
			return m.UserID, m.Role
		})

		changed = changed[:0]
		for _, m := range remote {
			if err := sp.Users().Upsert(ctx, &model.User{
				ID:       m.ID,
				Username: m.Username,
				Name:     m.Name,
				Email:    m.Email,
			}); err != nil {
				return fmt.Errorf("upserting member user %d: %w", m.ID, err)
			}

			role := model.Role(m.AccessLevel)
			if current, ok := roles[m.ID]; ok && current == role {
				continue
			}
			if err := sp.Members().Upsert(ctx, model.Member{ProjectID: projectID, UserID: m.ID, Role: role}); err != nil {
				return err
			}
			changed = append(changed, m.ID)
		}

		remoteIDs := lo.SliceToMap(remote, func(m *gitlab.ProjectMember) (int64, struct{}) {
			return m.ID, struct{}{}
		})
		for _, m := range existing {
			if _, ok := remoteIDs[m.UserID]; ok {
				continue
			}
			if err := sp.Members().Delete(ctx, projectID, m.UserID); err != nil {
				return err
			}
			changed = append(changed, m.UserID)
		}
		return nil
	}); err != nil {
		return 0, err
	}

	if i.invalidator != nil {
		for _, userID := range changed {
			if err := i.invalidator.Invalidate(ctx, projectID, userID); err != nil {
				i.logger.WarnContext(ctx, "failed to invalidate cached role", "user_id", userID, "error", err)
			}
		}
	}
	return len(changed), nil
}

func (i *importer) importEvents(ctx context.Context, projectID int64, result *ImportResult) error {
	issues := map[int64]*gitlab.Issue{}

	return i.source.EachEventPage(ctx, projectID, func(page []*gitlab.ProjectEvent) error {
		records := make([]*mapper.Record, 0, len(page))
		for _, ev := range page {
			if ev == nil {
				continue
			}
			issue, err := i.issueFor(ctx, projectID, ev, issues)
			if err != nil {
				return err
			}
			rec, err := mapper.FromProjectEvent(ev, issue)
			if errors.Is(err, mapper.ErrUnsupportedEvent) || errors.Is(err, mapper.ErrInvalidPayload) {
				i.logger.DebugContext(ctx, "skipping event", "gitlab_event_id", ev.ID, "reason", err.Error())
				result.Skipped++
				continue
			}
			if err != nil {
				return fmt.Errorf("mapping event %d: %w", ev.ID, err)
			}
			records = append(records, rec)
		}

		var created, existing int
		if err := i.txRunner.WithTx(ctx, func(sp StoreProvider) error {
			created, existing = 0, 0
			for _, rec := range records {
				ok, err := saveRecord(ctx, sp, rec)
				if err != nil {
					return fmt.Errorf("saving event %d: %w", rec.Event.ID, err)
				}
				if ok {
					created++
				} else {
					existing++
				}
			}
			return nil
		}); err != nil {
			return err
		}
		result.Imported += created
		result.Existing += existing
		return nil
	})
}

// issueFor fetches the issue behind an issue event once per import. The
// events API does not say whether an issue is confidential.
func (i *importer) issueFor(ctx context.Context, projectID int64, ev *gitlab.ProjectEvent, cache map[int64]*gitlab.Issue) (*gitlab.Issue, error) {
	if ev.TargetType != "Issue" {
		return nil, nil
	}
	iid := ev.TargetIID
	if issue, ok := cache[iid]; ok {
		return issue, nil
	}
	issue, err := i.source.GetIssue(ctx, projectID, iid)
	if err != nil {
		return nil, fmt.Errorf("fetching issue %d: %w", iid, err)
	}
	cache[iid] = issue
	return issue, nil
}

type gitLabEventSource struct {
	client *gitlab.Client
}

// NewGitLabEventSource builds a source against a GitLab instance. An empty
// baseURL means gitlab.com.
func NewGitLabEventSource(baseURL, token string) (ProjectEventSource, error) {
	var (
		client *gitlab.Client
		err    error
	)
	if baseURL == "" {
		client, err = gitlab.NewClient(token)
	} else {
		apiURL := strings.TrimSuffix(baseURL, "/") + "/api/v4"
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(apiURL))
	}
	if err != nil {
		return nil, fmt.Errorf("creating gitlab client: %w", err)
	}
	return &gitLabEventSource{client: client}, nil
}

func (s *gitLabEventSource) EachEventPage(ctx context.Context, projectID int64, fn func([]*gitlab.ProjectEvent) error) error {
	opts := &gitlab.ListProjectVisibleEventsOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: importPageSize,
		},
	}

	for {
		events, resp, err := s.client.Events.ListProjectVisibleEvents(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("listing project events: %w", err)
		}
		if err := fn(events); err != nil {
			return err
		}
		if resp.NextPage == 0 {
			return nil
		}
		opts.Page = resp.NextPage
	}
}

func (s *gitLabEventSource) GetIssue(ctx context.Context, projectID, iid int64) (*gitlab.Issue, error) {
	issue, _, err := s.client.Issues.GetIssue(projectID, iid, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetching issue from gitlab: %w", err)
	}
	return issue, nil
}

func (s *gitLabEventSource) ListMembers(ctx context.Context, projectID int64) ([]*gitlab.ProjectMember, error) {
	opts := &gitlab.ListProjectMembersOptions{
		ListOptions: gitlab.ListOptions{
			Page:    1,
			PerPage: importPageSize,
		},
	}

	var all []*gitlab.ProjectMember
	for {
		members, resp, err := s.client.ProjectMembers.ListAllProjectMembers(projectID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("listing project members: %w", err)
		}
		all = append(all, members...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}
