// internal/handlers/rooms.go
package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
)

type matchRequest struct {
	Departure     string     `json:"departure" validate:"required,max=128"`
	Destination   string     `json:"destination" validate:"required,max=128"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
}

type createRoomRequest struct {
	Departure     string     `json:"departure" validate:"required,max=128"`
	Destination   string     `json:"destination" validate:"required,max=128"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	CapacityMin   int        `json:"capacity_min,omitempty" validate:"omitempty,gte=1,lte=8"`
	CapacityMax   int        `json:"capacity_max,omitempty" validate:"omitempty,gte=2,lte=8"`
}

type finalResponse struct {
	RoomID            uuid.UUID          `json:"room_id"`
	State             room.State         `json:"state"`
	FinalParticipants []room.Participant `json:"final_participants"`
}

// authenticate resolves the caller or writes 401.
func (s *Server) authenticate(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, err := s.Sessions.FromRequest(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}

// roomFromPath loads the room named by the {id} path segment.
func (s *Server) roomFromPath(r *http.Request) (*room.Room, error) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		return nil, room.InvalidRequest(err)
	}
	return s.Rooms.Get(id)
}

// MatchRoomHandler seats the caller in an open room on the route, creating one if none has space.
func (s *Server) MatchRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req matchRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	route := room.Route{Departure: req.Departure, Destination: req.Destination}
	_, snap, err := s.Rooms.Match(r.Context(), route, req.DepartureTime, userID)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CreateRoomHandler opens a new room and seats its creator.
func (s *Server) CreateRoomHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req createRoomRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	opts := s.Rooms.Defaults()
	if req.CapacityMin > 0 {
		opts.CapacityMin = req.CapacityMin
	}
	if req.CapacityMax > 0 {
		opts.CapacityMax = req.CapacityMax
	}

	route := room.Route{Departure: req.Departure, Destination: req.Destination}
	rm, err := s.Rooms.Create(route, req.DepartureTime, opts)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	snap, err := rm.Join(r.Context(), userID, nil)
	if err != nil {
		rm.Shutdown()
		writeError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// ListRoomsHandler returns every live room, oldest first.
func (s *Server) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Rooms.List())
}

func (s *Server) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rm.Snapshot())
}

// FinalParticipantsHandler returns the frozen roster once recruitment is complete.
func (s *Server) FinalParticipantsHandler(w http.ResponseWriter, r *http.Request) {
	rm, err := s.roomFromPath(r)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	snap := rm.Snapshot()
	if snap.State == room.StateOpen {
		writeError(w, s.Log, room.ErrRecruitmentNotComplete)
		return
	}
	writeJSON(w, http.StatusOK, finalResponse{
		RoomID:            snap.ID,
		State:             snap.State,
		FinalParticipants: snap.FinalParticipants,
	})
}
