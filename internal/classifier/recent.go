package classifier

import (
	"slices"

	"basegraph.app/activity/internal/model"
)

// DefaultRecentLimit is the number of events LimitRecent keeps when no
// positive limit is given.
const DefaultRecentLimit = 20

// LimitRecent returns at most limit events, newest first. Events created at
// the same instant are ordered by descending ID. The input is not modified.
func LimitRecent(events []model.Event, limit int) []model.Event {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, compareRecent)

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func compareRecent(a, b model.Event) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	switch {
	case a.ID > b.ID:
		return -1
	case a.ID < b.ID:
		return 1
	default:
		return 0
	}
}
