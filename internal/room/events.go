// internal/room/events.go
package room

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a broadcast event.
type EventType string

const (
	EventRoomState           EventType = "room_state" // private, sent to a session on attach
	EventParticipantJoined   EventType = "participant_joined"
	EventParticipantLeft     EventType = "participant_left"
	EventParticipantExited   EventType = "participant_exited"
	EventLeaderChanged       EventType = "leader_changed"
	EventCountdownTick       EventType = "countdown_tick"
	EventCountdownReset      EventType = "countdown_reset"
	EventRecruitmentComplete EventType = "recruitment_complete"
	EventSettlementComplete  EventType = "settlement_complete"
	EventChatMessage         EventType = "chat_message"
	EventRoomClosed          EventType = "room_closed"
)

// CountdownStream tells clients which clock a tick belongs to.
type CountdownStream string

const (
	StreamShared  CountdownStream = "shared"
	StreamHandoff CountdownStream = "handoff"
)

// EventUser identifies a participant inside an event payload.
type EventUser struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name,omitempty"`
}

// Event is the single envelope the gateway fans out to sessions.
type Event struct {
	Type   EventType `json:"type"`
	RoomID uuid.UUID `json:"room_id"`
	Seq    uint64    `json:"seq"`
	At     time.Time `json:"at"`

	User         *EventUser    `json:"user,omitempty"`
	Participants []Participant `json:"participants,omitempty"`

	Remaining *int            `json:"remaining,omitempty"`
	Stream    CountdownStream `json:"stream,omitempty"`
	Owner     *uuid.UUID      `json:"owner,omitempty"`

	Settlement *Settlement  `json:"settlement,omitempty"`
	Message    *ChatMessage `json:"message,omitempty"`
	Snapshot   *Snapshot    `json:"snapshot,omitempty"`
}

func eventUser(p Participant) *EventUser {
	return &EventUser{ID: p.UserID, DisplayName: p.DisplayName}
}
