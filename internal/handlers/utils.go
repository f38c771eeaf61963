// internal/handlers/utils.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
)

// errorBody is the JSON shape of every failure returned to clients.
type errorBody struct {
	Code    room.Code `json:"code"`
	Message string    `json:"message"`
}

const (
	codeInternal   room.Code = "INTERNAL"
	codeEmailTaken room.Code = "EMAIL_TAKEN"
)

// statusFor maps a room reason code to an HTTP status.
func statusFor(code room.Code) int {
	switch code {
	case room.CodeNotFound:
		return http.StatusNotFound
	case room.CodeNotLeader:
		return http.StatusForbidden
	case room.CodeInvalidRequest:
		return http.StatusBadRequest
	case room.CodeCollaboratorUnavailable:
		return http.StatusServiceUnavailable
	case room.CodeAlreadyMember, room.CodeRoomFull, room.CodeRecruitmentClosed,
		room.CodeInsufficientParticipants, room.CodeIllegalTransition,
		room.CodeRecruitmentNotComplete, room.CodeSettlementRequired, room.CodeAlreadySettled:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// describe turns err into a client-safe code and message. Errors that are not
// room errors are reported as INTERNAL without detail.
func describe(err error) errorBody {
	var re *room.Error
	if errors.As(err, &re) {
		return errorBody{Code: re.Code, Message: re.Message}
	}
	return errorBody{Code: codeInternal, Message: "internal error"}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, log *logrus.Entry, err error) {
	body := describe(err)
	status := statusFor(body.Code)
	if status >= http.StatusInternalServerError {
		log.WithError(err).Warn("request failed")
	}
	writeJSON(w, status, body)
}
