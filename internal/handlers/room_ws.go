// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/broadcast"
	"github.com/jason-s-yu/carpool/internal/middleware"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 5 * time.Second
	leaveTimeout = 5 * time.Second
)

// reply is the frame sent back for each command.
type reply struct {
	Type    string    `json:"type"`
	Command string    `json:"command,omitempty"`
	Code    room.Code `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
	Data    any       `json:"data,omitempty"`
}

// wsSession is one socket bound to one room.
type wsSession struct {
	ws     *websocket.Conn
	room   *room.Room
	conn   *broadcast.Connection
	userID uuid.UUID
	log    *logrus.Entry

	// joined is touched only by the read pump.
	joined bool
}

// RoomWSHandler upgrades /room/ws/{id}. The client must speak the "room"
// subprotocol and carry a session token. Commands are JSON frames; room events
// are pushed as they happen.
func (s *Server) RoomWSHandler(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{Subprotocol},
		OriginPatterns: s.OriginPatterns,
	})
	if err != nil {
		s.Log.Warnf("websocket accept error: %v", err)
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler finished")

	if c.Subprotocol() != Subprotocol {
		c.Close(BadSubprotocolError, "client must speak the room subprotocol")
		return
	}

	userID, err := s.Sessions.FromRequest(r)
	if err != nil {
		c.Close(InvalidAuthTokenError, "authentication failed")
		return
	}

	rm, err := s.Rooms.Get(roomID)
	if err != nil {
		c.Close(InvalidRoomIDError, "room does not exist")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	conn := broadcast.NewConnection(roomID, userID, s.sendBuffer(), cancel)
	defer conn.Close()

	entry := s.Log.WithFields(logrus.Fields{"room_id": roomID, "user_id": userID})
	middleware.LogWebSocketConnect(entry, r.RemoteAddr, r.URL.Path)

	sess := &wsSession{ws: c, room: rm, conn: conn, userID: userID, log: entry}
	go sess.writePump(ctx)
	readErr := sess.readPump(ctx)

	sess.detach()
	entry = entry.WithFields(logrus.Fields{
		"dropped_events": conn.Dropped(),
		"room_sessions":  s.Gateway.Sessions(roomID),
	})
	middleware.LogWebSocketDisconnect(entry, r.RemoteAddr, r.URL.Path, readErr)
}

// readPump handles inbound commands until the socket closes or the session ends.
func (s *wsSession) readPump(ctx context.Context) error {
	for {
		typ, msg, err := s.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if typ != websocket.MessageText {
			s.log.Warnf("ignoring non-text message type %d", typ)
			continue
		}

		cmd, err := decodeCommand(msg)
		if err != nil {
			s.respond(ctx, cmd.Type, nil, err)
			continue
		}

		data, err := execute(ctx, s.room, s.userID, s.conn, cmd)
		s.respond(ctx, cmd.Type, data, err)
		if err != nil {
			continue
		}

		switch cmd.Type {
		case CmdJoin:
			s.joined = true
		case CmdLeave, CmdExitToReview:
			// The room no longer routes events to this session.
			s.joined = false
			s.ws.Close(websocket.StatusNormalClosure, cmd.Type)
			return nil
		}
	}
}

// respond writes the ack or error frame for a command.
func (s *wsSession) respond(ctx context.Context, command string, data any, err error) {
	frame := reply{Type: "ack", Command: command, Data: data}
	if err != nil {
		body := describe(err)
		frame = reply{Type: "error", Command: command, Code: body.Code, Message: body.Message}
		if errors.Is(err, room.ErrAlreadySettled) {
			frame.Data = data
		}
		if body.Code == codeInternal {
			s.log.WithError(err).Warn("command failed")
		}
	}
	if werr := s.write(ctx, frame); werr != nil {
		s.log.WithError(werr).Debug("failed to write reply")
	}
}

func (s *wsSession) write(ctx context.Context, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, s.ws, v)
}

// writePump drains room events to the socket and keeps it alive with pings.
// A room_closed event ends the session after it is delivered.
func (s *wsSession) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.conn.Done():
			return
		case ev := <-s.conn.OutChan:
			if err := s.write(ctx, ev); err != nil {
				s.log.WithError(err).Warn("failed to write to websocket")
				s.conn.Close()
				return
			}
			if ev.Type == room.EventRoomClosed {
				s.ws.Close(websocket.StatusNormalClosure, "room closed")
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			err := s.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				s.log.WithError(err).Warn("ping failed, assuming disconnect")
				s.conn.Close()
				return
			}
		}
	}
}

// detach leaves the room if this socket had joined it. The request context is
// already gone, so the leave gets its own deadline.
func (s *wsSession) detach() {
	s.conn.Close()
	if !s.joined {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if _, err := s.room.Leave(ctx, s.userID, s.conn); err != nil && !errors.Is(err, room.ErrNotFound) {
		s.log.WithError(err).Warn("leave on disconnect failed")
	}
}
