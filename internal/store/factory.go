package store

import (
	"basegraph.app/activity/core/db"
)

// Stores hands out stores bound to one Querier: the pool, or a transaction.
type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Events() EventStore {
	return newEventStore(s.q, s.Users(), s.Targets())
}

func (s *Stores) Users() UserStore {
	return newUserStore(s.q)
}

func (s *Stores) Targets() TargetStore {
	return newTargetStore(s.q)
}

func (s *Stores) Members() MemberStore {
	return newMemberStore(s.q)
}
