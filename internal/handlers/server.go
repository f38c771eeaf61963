// internal/handlers/server.go
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/auth"
	"github.com/jason-s-yu/carpool/internal/broadcast"
	"github.com/jason-s-yu/carpool/internal/middleware"
	"github.com/jason-s-yu/carpool/internal/models"
	"github.com/jason-s-yu/carpool/internal/rating"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
)

// UserDirectory is the account store behind /user.
type UserDirectory interface {
	CreateUser(ctx context.Context, user *models.User) error
	AuthenticateUser(ctx context.Context, email, password string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, displayName, paymentLinkBase string) (*models.User, error)
}

// IdentityCache is told when a rider's identity changes.
type IdentityCache interface {
	Forget(ctx context.Context, userID uuid.UUID) error
}

// ReviewStore persists post-ride reviews. RoomSnapshot serves rooms that have
// already left memory.
type ReviewStore interface {
	SaveReviews(ctx context.Context, reviews []rating.Review) ([]rating.Review, error)
	Summary(ctx context.Context, userID uuid.UUID) (rating.Summary, error)
	RoomSnapshot(ctx context.Context, roomID uuid.UUID) (room.Snapshot, error)
}

// Server holds everything the HTTP and WebSocket handlers need.
type Server struct {
	Rooms    *room.RoomStore
	Gateway  *broadcast.Gateway
	Sessions *auth.Sessions
	Users    UserDirectory
	Reviews  ReviewStore
	Log      *logrus.Entry

	// Identities, if set, is invalidated after profile updates.
	Identities IdentityCache
	// SendBuffer is the per-session event queue length.
	SendBuffer int
	// OriginPatterns is passed to websocket.Accept.
	OriginPatterns []string
}

func (s *Server) sendBuffer() int {
	if s.SendBuffer <= 0 {
		return 32
	}
	return s.SendBuffer
}

// Routes builds the service mux with request logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("POST /user/create", s.CreateUserHandler)
	mux.HandleFunc("POST /user/login", s.LoginHandler)
	mux.HandleFunc("POST /user/update", s.UpdateProfileHandler)
	mux.HandleFunc("GET /user/{id}/rating", s.UserRatingHandler)

	// room endpoints
	mux.HandleFunc("POST /rooms/match", s.MatchRoomHandler)
	mux.HandleFunc("POST /rooms/create", s.CreateRoomHandler)
	mux.HandleFunc("GET /rooms/list", s.ListRoomsHandler)
	mux.HandleFunc("GET /rooms/{id}", s.GetRoomHandler)
	mux.HandleFunc("GET /rooms/{id}/final", s.FinalParticipantsHandler)
	mux.HandleFunc("POST /rooms/{id}/reviews", s.SubmitReviewsHandler)

	// room ws
	mux.HandleFunc("GET /room/ws/{id}", s.RoomWSHandler)

	return middleware.LogMiddleware(s.Log)(mux)
}
