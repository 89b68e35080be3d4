// Package classifier answers two questions about a stored event: what kind
// of event it is, and whether a given viewer may see it. Everything here is a
// pure function of its arguments and safe for concurrent use.
package classifier

import (
	"errors"
	"fmt"
	"strings"

	"basegraph.app/activity/internal/model"
)

var (
	// ErrNotApplicable is returned when an accessor is asked for something the
	// event kind does not carry, e.g. a branch name of a tag push.
	ErrNotApplicable = errors.New("not applicable to this event")

	// ErrMalformedPayload is returned when a push event's payload is missing
	// or lacks a ref. It points at the upstream writer, not the caller.
	ErrMalformedPayload = errors.New("malformed event payload")
)

type Kind string

const (
	KindPush      Kind = "push"
	KindTagPush   Kind = "tag_push"
	KindCreated   Kind = "created"
	KindClosed    Kind = "closed"
	KindReopened  Kind = "reopened"
	KindMerged    Kind = "merged"
	KindCommented Kind = "commented"
	KindOther     Kind = "other"
)

// Classify maps an event to its Kind. Pushes are split on the ref namespace:
// refs under refs/tags/ are tag pushes, every other ref is a push.
func Classify(e *model.Event) (Kind, error) {
	switch e.Action {
	case model.ActionPushed:
		ref, err := pushRef(e)
		if err != nil {
			return "", err
		}
		if strings.HasPrefix(ref, model.TagRefPrefix) {
			return KindTagPush, nil
		}
		return KindPush, nil
	case model.ActionCreated:
		return KindCreated, nil
	case model.ActionClosed:
		return KindClosed, nil
	case model.ActionReopened:
		return KindReopened, nil
	case model.ActionMerged:
		return KindMerged, nil
	case model.ActionCommented:
		return KindCommented, nil
	default:
		return KindOther, nil
	}
}

// IsPush reports whether the event is a well-formed branch or tag push.
func IsPush(e *model.Event) bool {
	kind, err := Classify(e)
	return err == nil && (kind == KindPush || kind == KindTagPush)
}

func IsTag(e *model.Event) bool {
	kind, err := Classify(e)
	return err == nil && kind == KindTagPush
}

// BranchName returns the branch a push updated, without the refs/heads/ prefix.
func BranchName(e *model.Event) (string, error) {
	return refName(e, model.BranchRefPrefix)
}

// TagName returns the tag a tag push updated, without the refs/tags/ prefix.
func TagName(e *model.Event) (string, error) {
	return refName(e, model.TagRefPrefix)
}

func refName(e *model.Event, prefix string) (string, error) {
	if e.Action != model.ActionPushed {
		return "", fmt.Errorf("%s event: %w", e.Action, ErrNotApplicable)
	}
	ref, err := pushRef(e)
	if err != nil {
		return "", err
	}
	name, ok := strings.CutPrefix(ref, prefix)
	if !ok || name == "" {
		return "", fmt.Errorf("ref %q: %w", ref, ErrNotApplicable)
	}
	return name, nil
}

func pushRef(e *model.Event) (string, error) {
	data, err := e.PushData()
	if err != nil {
		return "", fmt.Errorf("event %d: %w: %v", e.ID, ErrMalformedPayload, err)
	}
	if data.Ref == "" {
		return "", fmt.Errorf("event %d: %w: missing ref", e.ID, ErrMalformedPayload)
	}
	return data.Ref, nil
}
