// internal/room/membership.go
package room

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Membership is the per-room participant set. It keeps insertion order so leader
// succession is deterministic. It is not safe for concurrent use: the owning Room
// serializes every call.
type Membership struct {
	capacity     int
	participants []Participant
	// leader survives Remove so the next election knows who held the role.
	leader uuid.UUID
}

// NewMembership returns an empty set bounded by capacity.
func NewMembership(capacity int) *Membership {
	return &Membership{capacity: capacity}
}

// Add appends a new participant. Fails with ErrAlreadyMember or ErrRoomFull.
func (m *Membership) Add(userID uuid.UUID, displayName string) (Participant, error) {
	if m.Contains(userID) {
		return Participant{}, ErrAlreadyMember
	}
	if len(m.participants) >= m.capacity {
		return Participant{}, ErrRoomFull
	}
	p := Participant{
		UserID:      userID,
		DisplayName: displayName,
		JoinedAt:    time.Now(),
	}
	m.participants = append(m.participants, p)
	return p, nil
}

// Remove deletes the participant and returns it. Removing an absent user is a no-op.
func (m *Membership) Remove(userID uuid.UUID) (Participant, bool) {
	_, idx, ok := lo.FindIndexOf(m.participants, func(p Participant) bool { return p.UserID == userID })
	if !ok {
		return Participant{}, false
	}
	removed := m.participants[idx]
	m.participants = append(m.participants[:idx], m.participants[idx+1:]...)
	return removed, true
}

// Get returns the participant for userID.
func (m *Membership) Get(userID uuid.UUID) (Participant, bool) {
	return lo.Find(m.participants, func(p Participant) bool { return p.UserID == userID })
}

func (m *Membership) Contains(userID uuid.UUID) bool {
	return lo.ContainsBy(m.participants, func(p Participant) bool { return p.UserID == userID })
}

// List returns a copy in insertion order.
func (m *Membership) List() []Participant {
	out := make([]Participant, len(m.participants))
	copy(out, m.participants)
	return out
}

func (m *Membership) Count() int { return len(m.participants) }

func (m *Membership) Capacity() int { return m.capacity }

// Full reports whether another Add would fail with ErrRoomFull.
func (m *Membership) Full() bool { return len(m.participants) >= m.capacity }

// SetLeader marks exactly userID as leader and clears the flag on everyone else.
// uuid.Nil clears leadership entirely.
func (m *Membership) SetLeader(userID uuid.UUID) {
	m.leader = userID
	for i := range m.participants {
		m.participants[i].IsLeader = m.participants[i].UserID == userID && userID != uuid.Nil
	}
}

// LeaderID returns the last leader set, or uuid.Nil. Between a Remove of the
// leader and the next election this is the departed user.
func (m *Membership) LeaderID() uuid.UUID {
	return m.leader
}

// SetReady updates the ready flag and reports whether it changed.
func (m *Membership) SetReady(userID uuid.UUID, ready bool) bool {
	for i := range m.participants {
		if m.participants[i].UserID == userID {
			changed := m.participants[i].Ready != ready
			m.participants[i].Ready = ready
			return changed
		}
	}
	return false
}

// Newest returns the most recently joined participant.
func (m *Membership) Newest() (Participant, bool) {
	if len(m.participants) == 0 {
		return Participant{}, false
	}
	return m.participants[len(m.participants)-1], true
}
