// internal/handlers/commands.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
)

var validate = validator.New()

// Inbound command types accepted on the room socket.
const (
	CmdJoin                = "join"
	CmdLeave               = "leave"
	CmdSendMessage         = "send_message"
	CmdCompleteRecruitment = "complete_recruitment"
	CmdSettle              = "settle"
	CmdExitToReview        = "exit_to_review"
)

// Command is one client request on the room socket. UserID is optional; when
// present it must match the authenticated session.
type Command struct {
	Type        string `json:"type" validate:"required,oneof=join leave send_message complete_recruitment settle exit_to_review"`
	UserID      string `json:"user_id,omitempty" validate:"omitempty,uuid"`
	Text        string `json:"text,omitempty" validate:"required_if=Type send_message,max=2000"`
	TotalAmount int64  `json:"total_amount,omitempty" validate:"required_if=Type settle,omitempty,gt=0"`
}

// decodeCommand parses and validates a raw frame. Any failure is InvalidRequest.
func decodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, room.InvalidRequest(err)
	}
	if err := validate.Struct(cmd); err != nil {
		return cmd, room.InvalidRequest(err)
	}
	return cmd, nil
}

// checkUser rejects a command that names a different user than the session.
func (c Command) checkUser(session uuid.UUID) error {
	if c.UserID == "" {
		return nil
	}
	id, err := uuid.Parse(c.UserID)
	if err != nil {
		return room.InvalidRequest(err)
	}
	if id != session {
		return room.InvalidRequest(errors.New("user_id does not match session"))
	}
	return nil
}

// execute runs cmd against rm on behalf of userID using sub as the live session.
func execute(ctx context.Context, rm *room.Room, userID uuid.UUID, sub room.Subscriber, cmd Command) (any, error) {
	if err := cmd.checkUser(userID); err != nil {
		return nil, err
	}
	switch cmd.Type {
	case CmdJoin:
		return rm.Join(ctx, userID, sub)
	case CmdLeave:
		return rm.Leave(ctx, userID, sub)
	case CmdSendMessage:
		return rm.SendMessage(ctx, userID, cmd.Text)
	case CmdCompleteRecruitment:
		return rm.RequestCompleteRecruitment(ctx, userID)
	case CmdSettle:
		// An already settled room still returns its snapshot with the error.
		return rm.RequestSettlement(ctx, userID, cmd.TotalAmount)
	case CmdExitToReview:
		return rm.RequestExit(ctx, userID)
	}
	return nil, room.InvalidRequest(errors.New("unknown command " + cmd.Type))
}
