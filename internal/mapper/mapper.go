package mapper

import (
	"context"
	"errors"

	"basegraph.app/activity/internal/model"
)

// ErrUnsupportedEvent is returned for hooks and actions that do not produce
// an activity event. Callers should drop the delivery, not retry it.
var ErrUnsupportedEvent = errors.New("unsupported gitlab event")

// ErrInvalidPayload is returned when a hook body cannot be decoded.
var ErrInvalidPayload = errors.New("invalid webhook payload")

// GitLab webhook types, as sent in the X-Gitlab-Event header.
const (
	HookPush              = "Push Hook"
	HookTagPush           = "Tag Push Hook"
	HookIssue             = "Issue Hook"
	HookConfidentialIssue = "Confidential Issue Hook"
	HookMergeRequest      = "Merge Request Hook"
	HookNote              = "Note Hook"
	HookConfidentialNote  = "Confidential Note Hook"
)

// Record is everything one delivery contributes to the activity log: the
// event (without ID) plus the author and target rows it references.
type Record struct {
	Event        model.Event
	Author       model.User
	Issue        *model.Issue
	MergeRequest *model.MergeRequest
	Note         *model.Note
}

type EventMapper interface {
	Map(ctx context.Context, hookType string, body []byte) (*Record, error)
}
