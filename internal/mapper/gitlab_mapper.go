package mapper

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/activity/internal/model"
)

type GitLabEventMapper struct{}

func NewGitLabEventMapper() *GitLabEventMapper {
	return &GitLabEventMapper{}
}

func (m *GitLabEventMapper) Map(ctx context.Context, hookType string, body []byte) (*Record, error) {
	switch hookType {
	case HookPush, HookTagPush, HookIssue, HookConfidentialIssue, HookMergeRequest, HookNote, HookConfidentialNote:
	default:
		return nil, fmt.Errorf("%w: hook=%q", ErrUnsupportedEvent, hookType)
	}

	parsed, err := gitlab.ParseWebhook(gitlab.EventType(hookType), body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, hookType, err)
	}

	switch ev := parsed.(type) {
	case *gitlab.PushEvent:
		return m.mapPush(ev)
	case *gitlab.TagEvent:
		return m.mapTagPush(ev)
	case *gitlab.IssueEvent:
		return m.mapIssue(ev)
	case *gitlab.MergeEvent:
		return m.mapMergeRequest(ev)
	case *gitlab.IssueCommentEvent, *gitlab.MergeCommentEvent, *gitlab.CommitCommentEvent:
		return m.mapNote(hookType, body)
	default:
		return nil, fmt.Errorf("%w: hook=%q type=%T", ErrUnsupportedEvent, hookType, parsed)
	}
}

func (m *GitLabEventMapper) mapPush(ev *gitlab.PushEvent) (*Record, error) {
	data := model.PushData{
		Before:            ev.Before,
		After:             ev.After,
		Ref:               ev.Ref,
		UserID:            int64(ev.UserID),
		UserName:          ev.UserName,
		Repository:        pushRepository(ev.Repository),
		TotalCommitsCount: int(ev.TotalCommitsCount),
	}
	for _, c := range ev.Commits {
		if c == nil {
			continue
		}
		data.Commits = append(data.Commits, model.PushCommit{
			ID:          c.ID,
			Message:     c.Message,
			Timestamp:   c.Timestamp,
			URL:         c.URL,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
		})
	}

	return pushRecord(int64(ev.ProjectID), model.User{
		ID:       int64(ev.UserID),
		Username: ev.UserUsername,
		Name:     ev.UserName,
		Email:    ev.UserEmail,
	}, data)
}

func (m *GitLabEventMapper) mapTagPush(ev *gitlab.TagEvent) (*Record, error) {
	data := model.PushData{
		Before:            ev.Before,
		After:             ev.After,
		Ref:               ev.Ref,
		UserID:            int64(ev.UserID),
		UserName:          ev.UserName,
		Repository:        pushRepository(ev.Repository),
		TotalCommitsCount: int(ev.TotalCommitsCount),
	}

	return pushRecord(int64(ev.ProjectID), model.User{
		ID:       int64(ev.UserID),
		Username: ev.UserUsername,
		Name:     ev.UserName,
		Email:    ev.UserEmail,
	}, data)
}

func pushRecord(projectID int64, author model.User, data model.PushData) (*Record, error) {
	raw, err := model.MarshalPushData(data)
	if err != nil {
		return nil, fmt.Errorf("encoding push data: %w", err)
	}
	return &Record{
		Event: model.Event{
			ProjectID: projectID,
			AuthorID:  author.ID,
			Action:    model.ActionPushed,
			Data:      raw,
		},
		Author: author,
	}, nil
}

func pushRepository(repo *gitlab.Repository) model.PushRepository {
	if repo == nil {
		return model.PushRepository{}
	}
	return model.PushRepository{
		Name:        repo.Name,
		URL:         repo.URL,
		Description: repo.Description,
		Homepage:    repo.Homepage,
		Private:     repo.Visibility == gitlab.PrivateVisibility,
	}
}

var issueActions = map[string]model.Action{
	"open":   model.ActionCreated,
	"close":  model.ActionClosed,
	"reopen": model.ActionReopened,
	"update": model.ActionUpdated,
}

func (m *GitLabEventMapper) mapIssue(ev *gitlab.IssueEvent) (*Record, error) {
	attrs := ev.ObjectAttributes
	action, ok := issueActions[attrs.Action]
	if !ok {
		return nil, fmt.Errorf("%w: issue action %q", ErrUnsupportedEvent, attrs.Action)
	}

	assignees := make([]int64, 0, len(attrs.AssigneeIDs)+1)
	for _, id := range attrs.AssigneeIDs {
		assignees = append(assignees, int64(id))
	}
	assignees = append(assignees, int64(attrs.AssigneeID))

	issue := &model.Issue{
		ID:           int64(attrs.ID),
		IID:          int64(attrs.IID),
		ProjectID:    int64(attrs.ProjectID),
		AuthorID:     int64(attrs.AuthorID),
		AssigneeIDs:  lo.Uniq(lo.Compact(assignees)),
		Title:        attrs.Title,
		Confidential: attrs.Confidential,
	}

	author := eventUser(ev.User, issue.AuthorID)
	return &Record{
		Event: model.Event{
			ProjectID: issue.ProjectID,
			AuthorID:  author.ID,
			Action:    action,
			Target:    issue,
			Title:     issue.Title,
		},
		Author: author,
		Issue:  issue,
	}, nil
}

var mergeRequestActions = map[string]model.Action{
	"open":   model.ActionCreated,
	"close":  model.ActionClosed,
	"reopen": model.ActionReopened,
	"merge":  model.ActionMerged,
	"update": model.ActionUpdated,
}

func (m *GitLabEventMapper) mapMergeRequest(ev *gitlab.MergeEvent) (*Record, error) {
	attrs := ev.ObjectAttributes
	action, ok := mergeRequestActions[attrs.Action]
	if !ok {
		return nil, fmt.Errorf("%w: merge request action %q", ErrUnsupportedEvent, attrs.Action)
	}

	mr := &model.MergeRequest{
		ID:        int64(attrs.ID),
		IID:       int64(attrs.IID),
		ProjectID: int64(attrs.TargetProjectID),
		AuthorID:  int64(attrs.AuthorID),
		Title:     attrs.Title,
	}

	author := eventUser(ev.User, mr.AuthorID)
	return &Record{
		Event: model.Event{
			ProjectID: mr.ProjectID,
			AuthorID:  author.ID,
			Action:    action,
			Target:    mr,
			Title:     mr.Title,
		},
		Author:       author,
		MergeRequest: mr,
	}, nil
}

// noteHook is the part of a note hook body that is recorded. The typed
// comment events differ per noteable, so the shared fields are read directly.
type noteHook struct {
	User *struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Email    string `json:"email"`
	} `json:"user"`
	ProjectID        int64 `json:"project_id"`
	ObjectAttributes struct {
		ID           int64  `json:"id"`
		Note         string `json:"note"`
		NoteableType string `json:"noteable_type"`
		NoteableID   int64  `json:"noteable_id"`
		AuthorID     int64  `json:"author_id"`
		ProjectID    int64  `json:"project_id"`
	} `json:"object_attributes"`
}

func (m *GitLabEventMapper) mapNote(hookType string, body []byte) (*Record, error) {
	var hook noteHook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, hookType, err)
	}

	attrs := hook.ObjectAttributes
	note := &model.Note{
		ID:           attrs.ID,
		ProjectID:    lo.CoalesceOrEmpty(attrs.ProjectID, hook.ProjectID),
		AuthorID:     attrs.AuthorID,
		Body:         attrs.Note,
		NoteableType: attrs.NoteableType,
		NoteableID:   attrs.NoteableID,
	}

	author := model.User{ID: note.AuthorID}
	if hook.User != nil {
		author = model.User{
			ID:       hook.User.ID,
			Username: hook.User.Username,
			Name:     hook.User.Name,
			Email:    hook.User.Email,
		}
	}

	return &Record{
		Event: model.Event{
			ProjectID: note.ProjectID,
			AuthorID:  author.ID,
			Action:    model.ActionCommented,
			Target:    note,
		},
		Author: author,
		Note:   note,
	}, nil
}

// eventUser returns the acting user of a hook, falling back to the object's
// author when the payload carries no user block.
func eventUser(u *gitlab.EventUser, fallbackID int64) model.User {
	if u == nil {
		return model.User{ID: fallbackID}
	}
	return model.User{
		ID:       int64(u.ID),
		Username: u.Username,
		Name:     u.Name,
		Email:    u.Email,
	}
}
