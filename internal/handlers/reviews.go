// internal/handlers/reviews.go
package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/rating"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/samber/lo"
)

type submitReviewsRequest struct {
	Ratings []rating.Entry `json:"ratings" validate:"required,min=1,max=16,dive"`
}

type submitReviewsResponse struct {
	Saved   []rating.Review `json:"saved"`
	Skipped []uuid.UUID     `json:"skipped"`
}

// SubmitReviewsHandler stores the caller's ratings of their co-riders. Riders the
// caller already rated in this room are reported as skipped.
func (s *Server) SubmitReviewsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, s.Log, room.InvalidRequest(err))
		return
	}
	var req submitReviewsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	snap, err := s.reviewedRoom(r, roomID)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	reviews, err := rating.Prepare(snap, userID, req.Ratings)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	saved, err := s.Reviews.SaveReviews(r.Context(), reviews)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}

	savedFor := lo.SliceToMap(saved, func(rv rating.Review) (uuid.UUID, struct{}) { return rv.RevieweeID, struct{}{} })
	skipped := lo.FilterMap(reviews, func(rv rating.Review, _ int) (uuid.UUID, bool) {
		_, ok := savedFor[rv.RevieweeID]
		return rv.RevieweeID, !ok
	})
	s.Log.WithField("room_id", roomID).WithField("user_id", userID).
		Infof("stored %d reviews, skipped %d", len(saved), len(skipped))
	writeJSON(w, http.StatusOK, submitReviewsResponse{
		Saved:   lo.Ternary(saved == nil, []rating.Review{}, saved),
		Skipped: lo.Ternary(skipped == nil, []uuid.UUID{}, skipped),
	})
}

// reviewedRoom prefers the live room and falls back to the stored snapshot once
// the room has closed and left memory.
func (s *Server) reviewedRoom(r *http.Request, roomID uuid.UUID) (room.Snapshot, error) {
	rm, err := s.Rooms.Get(roomID)
	if err == nil {
		return rm.Snapshot(), nil
	}
	if !errors.Is(err, room.ErrNotFound) {
		return room.Snapshot{}, err
	}
	return s.Reviews.RoomSnapshot(r.Context(), roomID)
}

// UserRatingHandler returns the average score a rider has received.
func (s *Server) UserRatingHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, s.Log, room.InvalidRequest(err))
		return
	}
	summary, err := s.Reviews.Summary(r.Context(), userID)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
