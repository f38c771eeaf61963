// internal/room/types.go
package room

import (
	"time"

	"github.com/google/uuid"
)

// Participant is a rider inside a room. Unique per room by UserID.
type Participant struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	IsLeader    bool      `json:"is_leader"`
	Ready       bool      `json:"ready"`
	JoinedAt    time.Time `json:"joined_at"`
}

// Route identifies which rooms a rider can be matched into.
type Route struct {
	Departure   string `json:"departure"`
	Destination string `json:"destination"`
}

func (r Route) String() string {
	return r.Departure + " - " + r.Destination
}

// Settlement is the payment split computed once per room.
type Settlement struct {
	TotalAmount      int64     `json:"total_amount"`
	ParticipantCount int       `json:"participant_count"`
	PerPersonAmount  float64   `json:"per_person_amount"`
	AmountHex        string    `json:"amount_hex"`
	Deeplink         string    `json:"deeplink"`
	RequestedBy      uuid.UUID `json:"requested_by"`
	SettledAt        time.Time `json:"settled_at"`
}

// ChatMessage is a single message sent inside a room.
type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	RoomID      uuid.UUID `json:"room_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Text        string    `json:"text"`
	Timestamp   time.Time `json:"timestamp"`
}

// Snapshot is an immutable copy of a room's state, safe to hand to other goroutines.
type Snapshot struct {
	ID                 uuid.UUID     `json:"id"`
	Seq                uint64        `json:"seq"`
	Name               string        `json:"name"`
	Route              Route         `json:"route"`
	DepartureTime      *time.Time    `json:"departure_time,omitempty"`
	State              State         `json:"state"`
	Participants       []Participant `json:"participants"`
	FinalParticipants  []Participant `json:"final_participants,omitempty"`
	CapacityMin        int           `json:"capacity_min"`
	CapacityMax        int           `json:"capacity_max"`
	CreatedAt          time.Time     `json:"created_at"`
	CountdownRemaining int           `json:"countdown_remaining"`
	CountdownRunning   bool          `json:"countdown_running"`
	Settlement         *Settlement   `json:"settlement,omitempty"`
	Exited             []uuid.UUID   `json:"exited,omitempty"`
}

// Leader returns the current leader, if any.
func (s Snapshot) Leader() (Participant, bool) {
	for _, p := range s.Participants {
		if p.IsLeader {
			return p, true
		}
	}
	return Participant{}, false
}

// ExitResult is returned to a participant leaving a settled room for review.
type ExitResult struct {
	Snapshot           Snapshot      `json:"snapshot"`
	ReviewParticipants []Participant `json:"review_participants"`
}
