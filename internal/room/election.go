// internal/room/election.go
package room

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// LeaderChange describes the outcome of an election run.
type LeaderChange struct {
	Previous uuid.UUID
	Current  uuid.UUID
}

// Changed reports whether leadership moved to a different user.
func (c LeaderChange) Changed() bool { return c.Previous != c.Current }

// Elect derives the leader from participants, which must be in join order.
// A previous leader who is still present keeps the role; otherwise the earliest
// joiner takes it. An empty set has no leader.
func Elect(participants []Participant, previous uuid.UUID) uuid.UUID {
	if len(participants) == 0 {
		return uuid.Nil
	}
	if previous != uuid.Nil && lo.ContainsBy(participants, func(p Participant) bool { return p.UserID == previous }) {
		return previous
	}
	return participants[0].UserID
}

// reelect runs Elect against m and applies the result.
func reelect(m *Membership) LeaderChange {
	prev := m.LeaderID()
	next := Elect(m.List(), prev)
	m.SetLeader(next)
	return LeaderChange{Previous: prev, Current: next}
}
