package model

import (
	"encoding/json"
	"errors"
	"time"
)

// BlankSHA is the all-zero object id git uses for a ref that does not exist
// on one side of a push.
const BlankSHA = "0000000000000000000000000000000000000000"

const (
	BranchRefPrefix = "refs/heads/"
	TagRefPrefix    = "refs/tags/"
)

var ErrEmptyPayload = errors.New("event has no payload")

// PushData is the payload stored with push events.
type PushData struct {
	Before            string         `json:"before"`
	After             string         `json:"after"`
	Ref               string         `json:"ref"`
	UserID            int64          `json:"user_id"`
	UserName          string         `json:"user_name"`
	Repository        PushRepository `json:"repository"`
	Commits           []PushCommit   `json:"commits,omitempty"`
	TotalCommitsCount int            `json:"total_commits_count"`
}

type PushRepository struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Homepage    string `json:"homepage"`
	Private     bool   `json:"private"`
}

type PushCommit struct {
	ID          string     `json:"id"`
	Message     string     `json:"message"`
	Timestamp   *time.Time `json:"timestamp,omitempty"`
	URL         string     `json:"url,omitempty"`
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorEmail string     `json:"author_email,omitempty"`
}

// NewRef reports whether the push created the ref.
func (p *PushData) NewRef() bool {
	return p.Before == BlankSHA
}

// RemovedRef reports whether the push deleted the ref.
func (p *PushData) RemovedRef() bool {
	return p.After == BlankSHA
}

func (p *PushData) CommitFrom() string {
	return p.Before
}

func (p *PushData) CommitTo() string {
	return p.After
}

// MarshalPushData encodes a payload for Event.Data.
func MarshalPushData(p PushData) (json.RawMessage, error) {
	return json.Marshal(p)
}
