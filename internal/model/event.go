package model

import (
	"encoding/json"
	"time"
)

// Action is the stored action code of an event. Values match the integers
// persisted in events.action and must never be renumbered.
type Action int

const (
	ActionCreated   Action = 1
	ActionUpdated   Action = 2
	ActionClosed    Action = 3
	ActionReopened  Action = 4
	ActionPushed    Action = 5
	ActionCommented Action = 6
	ActionMerged    Action = 7
	ActionJoined    Action = 8
	ActionLeft      Action = 9
	ActionDestroyed Action = 10
	ActionExpired   Action = 11
)

var actionNames = map[Action]string{
	ActionCreated:   "created",
	ActionUpdated:   "updated",
	ActionClosed:    "closed",
	ActionReopened:  "reopened",
	ActionPushed:    "pushed",
	ActionCommented: "commented",
	ActionMerged:    "merged",
	ActionJoined:    "joined",
	ActionLeft:      "left",
	ActionDestroyed: "destroyed",
	ActionExpired:   "expired",
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// Event is an immutable record of something that happened in a project.
// Push events carry their details in Data; every other action points at a Target.
type Event struct {
	ID        int64           `json:"id"`
	ProjectID int64           `json:"project_id"`
	AuthorID  int64           `json:"author_id"`
	Action    Action          `json:"action"`
	Target    Target          `json:"-"`
	Title     string          `json:"title,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// DedupeKey identifies the upstream delivery; a second event with the
	// same key is not stored.
	DedupeKey string `json:"dedupe_key,omitempty"`

	// Author is hydrated by the store when available.
	Author *User `json:"author,omitempty"`
}

func (e *Event) AuthorName() string {
	if e.Author == nil {
		return ""
	}
	return e.Author.Name
}

func (e *Event) AuthorEmail() string {
	if e.Author == nil {
		return ""
	}
	return e.Author.Email
}

func (e *Event) IsIssue() bool {
	_, ok := e.Target.(*Issue)
	return ok
}

func (e *Event) IsMergeRequest() bool {
	_, ok := e.Target.(*MergeRequest)
	return ok
}

func (e *Event) IsNote() bool {
	_, ok := e.Target.(*Note)
	return ok
}

// IssueTitle returns the title of the target issue, or "" for other targets.
func (e *Event) IssueTitle() string {
	if issue, ok := e.Target.(*Issue); ok {
		return issue.Title
	}
	return ""
}

// MergeRequestTitle returns the title of the target merge request, or "" for other targets.
func (e *Event) MergeRequestTitle() string {
	if mr, ok := e.Target.(*MergeRequest); ok {
		return mr.Title
	}
	return ""
}

// PushData decodes the push payload. It does not check the action; callers
// that need a push should go through the classifier.
func (e *Event) PushData() (*PushData, error) {
	if len(e.Data) == 0 {
		return nil, ErrEmptyPayload
	}
	var data PushData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// Commits returns the pushed commits newest first. Non-push events and
// undecodable payloads yield nil.
func (e *Event) Commits() []PushCommit {
	if e.Action != ActionPushed {
		return nil
	}
	data, err := e.PushData()
	if err != nil || len(data.Commits) == 0 {
		return nil
	}
	commits := make([]PushCommit, len(data.Commits))
	for i, c := range data.Commits {
		commits[len(data.Commits)-1-i] = c
	}
	return commits
}
