// internal/room/errors.go
package room

import (
	"errors"
	"fmt"
)

// Code is the machine-readable reason attached to every room failure.
type Code string

const (
	CodeNotFound                 Code = "NOT_FOUND"
	CodeAlreadyMember            Code = "ALREADY_MEMBER"
	CodeRoomFull                 Code = "ROOM_FULL"
	CodeRecruitmentClosed        Code = "RECRUITMENT_CLOSED"
	CodeNotLeader                Code = "NOT_LEADER"
	CodeInsufficientParticipants Code = "INSUFFICIENT_PARTICIPANTS"
	CodeIllegalTransition        Code = "ILLEGAL_TRANSITION"
	CodeRecruitmentNotComplete   Code = "RECRUITMENT_NOT_COMPLETE"
	CodeSettlementRequired       Code = "SETTLEMENT_REQUIRED"
	CodeAlreadySettled           Code = "ALREADY_SETTLED"
	CodeCollaboratorUnavailable  Code = "COLLABORATOR_UNAVAILABLE"
	CodeInvalidRequest           Code = "INVALID_REQUEST"
)

// Error is a typed room failure. Two errors match under errors.Is when their codes match,
// so callers compare against the sentinels below regardless of the message.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrNotFound                 = &Error{Code: CodeNotFound, Message: "room or user not found"}
	ErrAlreadyMember            = &Error{Code: CodeAlreadyMember, Message: "user is already a participant"}
	ErrRoomFull                 = &Error{Code: CodeRoomFull, Message: "room is full"}
	ErrRecruitmentClosed        = &Error{Code: CodeRecruitmentClosed, Message: "room is no longer recruiting"}
	ErrNotLeader                = &Error{Code: CodeNotLeader, Message: "only the leader can complete recruitment"}
	ErrInsufficientParticipants = &Error{Code: CodeInsufficientParticipants, Message: "not enough participants"}
	ErrIllegalTransition        = &Error{Code: CodeIllegalTransition, Message: "illegal room state transition"}
	ErrRecruitmentNotComplete   = &Error{Code: CodeRecruitmentNotComplete, Message: "recruitment is not complete"}
	ErrSettlementRequired       = &Error{Code: CodeSettlementRequired, Message: "settlement must happen before exit"}
	ErrAlreadySettled           = &Error{Code: CodeAlreadySettled, Message: "room is already settled"}
	ErrCollaboratorUnavailable  = &Error{Code: CodeCollaboratorUnavailable, Message: "upstream service unavailable"}
	ErrInvalidRequest           = &Error{Code: CodeInvalidRequest, Message: "invalid request"}
)

// newError builds a failure with the code of base and a call-specific message.
func newError(base *Error, format string, args ...any) *Error {
	return &Error{Code: base.Code, Message: fmt.Sprintf(format, args...)}
}

// Errorf builds an error carrying the code of base with a formatted message.
func Errorf(base *Error, format string, args ...any) *Error {
	return newError(base, format, args...)
}

// unavailable wraps a collaborator failure.
func unavailable(op string, cause error) *Error {
	return &Error{Code: CodeCollaboratorUnavailable, Message: op + " failed", cause: cause}
}

// InvalidRequest is used by transport layers to reject malformed commands before they reach a room.
func InvalidRequest(cause error) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "malformed command", cause: cause}
}

// CodeOf extracts the reason code of err, or "" when err is not a room error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
