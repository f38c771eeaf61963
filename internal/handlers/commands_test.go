// internal/handlers/commands_test.go
package handlers

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeCommand(t *testing.T) {
	valid := map[string]string{
		"join":                 `{"type":"join"}`,
		"leave with user":      `{"type":"leave","user_id":"` + uuid.NewString() + `"}`,
		"message":              `{"type":"send_message","text":"running late"}`,
		"complete recruitment": `{"type":"complete_recruitment"}`,
		"settle":               `{"type":"settle","total_amount":40000}`,
		"exit":                 `{"type":"exit_to_review"}`,
	}
	for name, raw := range valid {
		t.Run(name, func(t *testing.T) {
			_, err := decodeCommand([]byte(raw))
			assert.NoError(t, err)
		})
	}

	invalid := map[string]string{
		"not json":         `{"type":`,
		"missing type":     `{}`,
		"unknown type":     `{"type":"dance"}`,
		"message no text":  `{"type":"send_message"}`,
		"settle no amount": `{"type":"settle"}`,
		"settle negative":  `{"type":"settle","total_amount":-5}`,
		"settle zero":      `{"type":"settle","total_amount":0}`,
		"leave negative":   `{"type":"leave","total_amount":-1}`,
		"bad user id":      `{"type":"join","user_id":"nope"}`,
	}
	for name, raw := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := decodeCommand([]byte(raw))
			require.Error(t, err)
			assert.Equal(t, room.CodeInvalidRequest, room.CodeOf(err))
		})
	}
}

func TestCommandCheckUser(t *testing.T) {
	session := uuid.New()
	assert.NoError(t, Command{Type: CmdJoin}.checkUser(session))
	assert.NoError(t, Command{Type: CmdJoin, UserID: session.String()}.checkUser(session))

	err := Command{Type: CmdJoin, UserID: uuid.NewString()}.checkUser(session)
	assert.ErrorIs(t, err, room.ErrInvalidRequest)
}
