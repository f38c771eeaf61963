// internal/broadcast/gateway.go
package broadcast

import (
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/carpool/internal/room"
	"github.com/sirupsen/logrus"
)

// Gateway fans room events out to the sessions subscribed to each room.
// Publishers never block on a slow session: delivery goes through each
// subscriber's non-blocking Send.
type Gateway struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]map[uuid.UUID]room.Subscriber // roomID -> userID -> session
	log   *logrus.Entry
}

// NewGateway returns an empty gateway.
func NewGateway(log *logrus.Entry) *Gateway {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Gateway{
		rooms: make(map[uuid.UUID]map[uuid.UUID]room.Subscriber),
		log:   log.WithField("component", "broadcast"),
	}
}

// Subscribe registers sub as userID's session in roomID, replacing any previous one.
func (g *Gateway) Subscribe(roomID, userID uuid.UUID, sub room.Subscriber) {
	g.mu.Lock()
	defer g.mu.Unlock()
	subs, ok := g.rooms[roomID]
	if !ok {
		subs = make(map[uuid.UUID]room.Subscriber)
		g.rooms[roomID] = subs
	}
	subs[userID] = sub
}

// Unsubscribe removes sub if it is still userID's session in roomID.
func (g *Gateway) Unsubscribe(roomID, userID uuid.UUID, sub room.Subscriber) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	subs, ok := g.rooms[roomID]
	if !ok || subs[userID] != sub {
		return false
	}
	delete(subs, userID)
	if len(subs) == 0 {
		delete(g.rooms, roomID)
	}
	return true
}

// Publish delivers ev to every session of roomID. The subscriber set is copied
// first so concurrent subscribe and unsubscribe calls never race the delivery loop.
func (g *Gateway) Publish(roomID uuid.UUID, ev room.Event) {
	g.mu.RLock()
	subs := make(map[uuid.UUID]room.Subscriber, len(g.rooms[roomID]))
	for userID, sub := range g.rooms[roomID] {
		subs[userID] = sub
	}
	g.mu.RUnlock()

	for userID, sub := range subs {
		if !sub.Send(ev) {
			g.log.WithFields(logrus.Fields{
				"room_id": roomID,
				"user_id": userID,
				"event":   ev.Type,
			}).Warn("session queue full or closed, event dropped")
		}
	}
}

// DropRoom forgets every session of roomID.
func (g *Gateway) DropRoom(roomID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, roomID)
}

// Sessions reports how many sessions are subscribed to roomID.
func (g *Gateway) Sessions(roomID uuid.UUID) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms[roomID])
}
