// internal/handlers/user.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/carpool/internal/database"
	"github.com/jason-s-yu/carpool/internal/models"
	"github.com/jason-s-yu/carpool/internal/room"
)

type createUserRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=128"`
	DisplayName     string `json:"display_name" validate:"required,max=64"`
	PaymentLinkBase string `json:"payment_link_base" validate:"omitempty,url"`
}

// CreateUserHandler registers a rider.
func (s *Server) CreateUserHandler(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	user := models.User{
		Email:           req.Email,
		Password:        req.Password,
		DisplayName:     req.DisplayName,
		PaymentLinkBase: req.PaymentLinkBase,
	}
	err := s.Users.CreateUser(r.Context(), &user)
	if errors.Is(err, database.ErrEmailTaken) {
		writeJSON(w, http.StatusConflict, errorBody{Code: codeEmailTaken, Message: "email already exists"})
		return
	}
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// LoginHandler handles user login requests. It expects a JSON payload with email and password,
// and returns a JSON response with an authentication token if the login is successful.
//
// Request payload:
//
//	{
//	  "email": "someone@example.com",
//	  "password": "password"
//	}
//
// Response payload:
//
//	{
//	  "token": "{jwt}",
//	  "user": {...}
//	}
//
// The token is also sent via the Cookie header.
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	user, err := s.Users.AuthenticateUser(r.Context(), req.Email, req.Password)
	if errors.Is(err, database.ErrInvalidCredentials) {
		http.Error(w, "authentication failed", http.StatusForbidden)
		return
	}
	if err != nil {
		writeError(w, s.Log, err)
		return
	}

	token, err := s.Sessions.Issue(user.ID)
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	http.SetCookie(w, s.Sessions.Cookie(token))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, User: user})
}

// decodeBody unmarshals and validates a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return room.InvalidRequest(err)
	}
	if err := validate.Struct(v); err != nil {
		return room.InvalidRequest(err)
	}
	return nil
}

type updateProfileRequest struct {
	DisplayName     string `json:"display_name" validate:"omitempty,max=64"`
	PaymentLinkBase string `json:"payment_link_base" validate:"omitempty,url"`
}

// UpdateProfileHandler changes the caller's display name or payment link.
// Rooms pick up the change on the rider's next join or settlement.
func (s *Server) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.authenticate(w, r)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, s.Log, err)
		return
	}

	user, err := s.Users.UpdateProfile(r.Context(), userID, req.DisplayName, req.PaymentLinkBase)
	if errors.Is(err, database.ErrUserNotFound) {
		writeError(w, s.Log, room.ErrNotFound)
		return
	}
	if err != nil {
		writeError(w, s.Log, err)
		return
	}
	if s.Identities != nil {
		if err := s.Identities.Forget(r.Context(), userID); err != nil {
			s.Log.WithError(err).WithField("user_id", userID).Warn("failed to invalidate cached identity")
		}
	}
	writeJSON(w, http.StatusOK, user)
}
