package model

// TargetKind names a target variant. The values are the polymorphic type
// names stored in events.target_type.
type TargetKind string

const (
	TargetKindNone         TargetKind = ""
	TargetKindIssue        TargetKind = "Issue"
	TargetKindMergeRequest TargetKind = "MergeRequest"
	TargetKindCommit       TargetKind = "Commit"
	TargetKindNote         TargetKind = "Note"
)

// Target is the entity an event acts on. It is a closed set: *Issue,
// *MergeRequest, *Commit and *Note are the only implementations. A nil
// Target means the event has none (pushes, membership changes).
type Target interface {
	Kind() TargetKind
	TargetID() int64
}

type Issue struct {
	ID           int64   `json:"id"`
	IID          int64   `json:"iid"`
	ProjectID    int64   `json:"project_id"`
	AuthorID     int64   `json:"author_id"`
	AssigneeIDs  []int64 `json:"assignee_ids,omitempty"`
	Title        string  `json:"title"`
	Confidential bool    `json:"confidential"`
}

func (i *Issue) Kind() TargetKind { return TargetKindIssue }
func (i *Issue) TargetID() int64  { return i.ID }

// IsAssignee reports whether userID is one of the issue's assignees.
func (i *Issue) IsAssignee(userID int64) bool {
	for _, id := range i.AssigneeIDs {
		if id == userID {
			return true
		}
	}
	return false
}

type MergeRequest struct {
	ID        int64  `json:"id"`
	IID       int64  `json:"iid"`
	ProjectID int64  `json:"project_id"`
	AuthorID  int64  `json:"author_id"`
	Title     string `json:"title"`
}

func (m *MergeRequest) Kind() TargetKind { return TargetKindMergeRequest }
func (m *MergeRequest) TargetID() int64  { return m.ID }

// Commit targets are not persisted; they only exist on events built in memory.
type Commit struct {
	SHA   string `json:"sha"`
	Title string `json:"title"`
}

func (c *Commit) Kind() TargetKind { return TargetKindCommit }
func (c *Commit) TargetID() int64  { return 0 }

type Note struct {
	ID           int64  `json:"id"`
	ProjectID    int64  `json:"project_id"`
	AuthorID     int64  `json:"author_id"`
	Body         string `json:"body"`
	NoteableType string `json:"noteable_type"` // "Issue", "MergeRequest", "Commit", "Snippet"
	NoteableID   int64  `json:"noteable_id"`
}

func (n *Note) Kind() TargetKind { return TargetKindNote }
func (n *Note) TargetID() int64  { return n.ID }

// KindOf returns the kind of t, treating nil as TargetKindNone.
func KindOf(t Target) TargetKind {
	if t == nil {
		return TargetKindNone
	}
	return t.Kind()
}
