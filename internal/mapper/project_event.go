package mapper

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	gitlab "gitlab.com/gitlab-org/api/client-go"

	"basegraph.app/activity/internal/model"
)

// projectEventActions maps the action_name of the events API to stored
// action codes. Push variants are resolved separately.
var projectEventActions = map[string]model.Action{
	"created":      model.ActionCreated,
	"opened":       model.ActionCreated,
	"updated":      model.ActionUpdated,
	"closed":       model.ActionClosed,
	"reopened":     model.ActionReopened,
	"commented on": model.ActionCommented,
	"accepted":     model.ActionMerged,
	"merged":       model.ActionMerged,
	"joined":       model.ActionJoined,
	"left":         model.ActionLeft,
	"destroyed":    model.ActionDestroyed,
	"expired":      model.ActionExpired,
}

// FromProjectEvent maps an event returned by the project events API. issue
// must be the full issue for Issue targets so confidentiality is kept; it is
// ignored otherwise. The GitLab event id and timestamp are preserved, and the
// dedupe key is derived from the id so a re-import does not duplicate events.
func FromProjectEvent(ev *gitlab.ProjectEvent, issue *gitlab.Issue) (*Record, error) {
	if ev == nil {
		return nil, fmt.Errorf("%w: nil project event", ErrUnsupportedEvent)
	}

	rec := &Record{
		Event: model.Event{
			ID:        ev.ID,
			ProjectID: ev.ProjectID,
			AuthorID:  ev.AuthorID,
			Title:     ev.TargetTitle,
			DedupeKey: ProjectEventKey(ev.ID),
		},
		Author: model.User{
			ID:       ev.AuthorID,
			Username: lo.CoalesceOrEmpty(ev.Author.Username, ev.AuthorUsername),
			Name:     ev.Author.Name,
		},
	}
	if ev.CreatedAt != "" {
		at, err := time.Parse(time.RFC3339, ev.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: event %d created_at %q", ErrInvalidPayload, ev.ID, ev.CreatedAt)
		}
		rec.Event.CreatedAt = at.UTC()
	}

	if strings.HasPrefix(ev.ActionName, "pushed") || ev.PushData.Ref != "" {
		return projectEventPush(rec, ev)
	}

	action, ok := projectEventActions[ev.ActionName]
	if !ok {
		return nil, fmt.Errorf("%w: action_name %q", ErrUnsupportedEvent, ev.ActionName)
	}
	rec.Event.Action = action

	switch ev.TargetType {
	case "":
	case "Issue":
		if issue == nil {
			return nil, fmt.Errorf("issue %d: missing issue details", ev.TargetID)
		}
		rec.Issue = issueFromAPI(issue, ev.ProjectID)
		rec.Event.Target = rec.Issue
	case "MergeRequest":
		rec.MergeRequest = &model.MergeRequest{
			ID:        ev.TargetID,
			IID:       ev.TargetIID,
			ProjectID: ev.ProjectID,
			Title:     ev.TargetTitle,
		}
		rec.Event.Target = rec.MergeRequest
	case "Note", "DiffNote", "DiscussionNote":
		note := &model.Note{
			ID:           lo.CoalesceOrEmpty(ev.Note.ID, ev.TargetID),
			ProjectID:    ev.ProjectID,
			AuthorID:     lo.CoalesceOrEmpty(ev.Note.Author.ID, ev.AuthorID),
			Body:         ev.Note.Body,
			NoteableType: ev.Note.NoteableType,
			NoteableID:   ev.Note.NoteableID,
		}
		rec.Note = note
		rec.Event.Target = note
		rec.Event.Title = ""
	default:
		return nil, fmt.Errorf("%w: target_type %q", ErrUnsupportedEvent, ev.TargetType)
	}

	return rec, nil
}

func projectEventPush(rec *Record, ev *gitlab.ProjectEvent) (*Record, error) {
	pd := ev.PushData

	prefix := model.BranchRefPrefix
	if pd.RefType == "tag" {
		prefix = model.TagRefPrefix
	}

	data := model.PushData{
		Before:            lo.Ternary(pd.CommitFrom == "", model.BlankSHA, pd.CommitFrom),
		After:             lo.Ternary(pd.CommitTo == "", model.BlankSHA, pd.CommitTo),
		Ref:               lo.Ternary(pd.Ref == "", "", prefix+pd.Ref),
		UserID:            rec.Author.ID,
		UserName:          rec.Author.Name,
		TotalCommitsCount: int(pd.CommitCount),
	}
	if pd.CommitTo != "" && pd.CommitTitle != "" {
		data.Commits = []model.PushCommit{{
			ID:         pd.CommitTo,
			Message:    pd.CommitTitle,
			AuthorName: rec.Author.Name,
		}}
	}

	raw, err := model.MarshalPushData(data)
	if err != nil {
		return nil, fmt.Errorf("encoding push data: %w", err)
	}
	rec.Event.Action = model.ActionPushed
	rec.Event.Data = raw
	rec.Event.Title = ""
	return rec, nil
}

// ProjectEventKey is the dedupe key of an imported GitLab event.
func ProjectEventKey(eventID int64) string {
	return fmt.Sprintf("gitlab:event:%d", eventID)
}

func issueFromAPI(issue *gitlab.Issue, projectID int64) *model.Issue {
	out := &model.Issue{
		ID:           issue.ID,
		IID:          issue.IID,
		ProjectID:    projectID,
		Title:        issue.Title,
		Confidential: issue.Confidential,
	}
	if issue.Author != nil {
		out.AuthorID = issue.Author.ID
	}
	ids := make([]int64, 0, len(issue.Assignees)+1)
	for _, a := range issue.Assignees {
		if a != nil {
			ids = append(ids, a.ID)
		}
	}
	if issue.Assignee != nil {
		ids = append(ids, issue.Assignee.ID)
	}
	out.AssigneeIDs = lo.Uniq(lo.Compact(ids))
	return out
}
