// internal/room/store.go
package room

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

// RoomStore indexes live rooms in memory. Lock order is store then room: the
// store may call into a room while holding its own lock, a room never calls the
// store while holding its lock (OnDestroy runs after the room unlocks).
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*Room

	opts Options
	deps Deps
	log  *logrus.Entry
}

// NewRoomStore returns an empty store whose rooms share deps and default opts.
func NewRoomStore(opts Options, deps Deps) *RoomStore {
	log := deps.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RoomStore{
		rooms: make(map[uuid.UUID]*Room),
		opts:  opts.withDefaults(),
		deps:  deps,
		log:   log,
	}
}

// Defaults returns the options applied to rooms created without overrides.
func (s *RoomStore) Defaults() Options { return s.opts }

// Create registers a new open room for route.
func (s *RoomStore) Create(route Route, departure *time.Time, opts Options) (*Room, error) {
	if route.Departure == "" || route.Destination == "" {
		return nil, newError(ErrInvalidRequest, "departure and destination are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	deps := s.deps
	deps.Log = s.log
	r := New(id, route, departure, opts, deps)
	r.OnDestroy = s.Delete

	s.mu.Lock()
	s.rooms[id] = r
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"room_id": id, "route": route.String()}).Info("room created")
	return r, nil
}

// Get returns the live room with id.
func (s *RoomStore) Get(id uuid.UUID) (*Room, error) {
	s.mu.RLock()
	r, ok := s.rooms[id]
	s.mu.RUnlock()
	if !ok {
		return nil, newError(ErrNotFound, "room %s not found", id)
	}
	return r, nil
}

// Delete drops id from the index. Deleting an unknown id is a no-op.
func (s *RoomStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[id]; ok {
		delete(s.rooms, id)
		s.log.WithField("room_id", id).Info("room removed from store")
	}
}

// List returns snapshots of all live rooms, oldest first.
func (s *RoomStore) List() []Snapshot {
	snaps := lo.Map(s.all(), func(r *Room, _ int) Snapshot { return r.Snapshot() })
	slices.SortFunc(snaps, func(a, b Snapshot) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return snaps
}

// Count reports how many rooms are live.
func (s *RoomStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func (s *RoomStore) all() []*Room {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Values(s.rooms)
}

// candidates lists the open rooms on route that userID could enter: rooms where
// they already hold a seat first, then rooms with space, oldest first.
func (s *RoomStore) candidates(route Route, userID uuid.UUID) []*Room {
	type candidate struct {
		room   *Room
		member bool
		at     time.Time
	}
	var out []candidate
	for _, r := range s.all() {
		if r.Route != route {
			continue
		}
		snap := r.Snapshot()
		if snap.State != StateOpen {
			continue
		}
		member := lo.ContainsBy(snap.Participants, func(p Participant) bool { return p.UserID == userID })
		if !member && len(snap.Participants) >= snap.CapacityMax {
			continue
		}
		out = append(out, candidate{room: r, member: member, at: snap.CreatedAt})
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		if a.member != b.member {
			if a.member {
				return -1
			}
			return 1
		}
		return a.at.Compare(b.at)
	})
	return lo.Map(out, func(c candidate, _ int) *Room { return c.room })
}

// Match seats userID in the oldest open room on route with space, or creates one.
// A candidate that fills up or closes between selection and join is skipped.
func (s *RoomStore) Match(ctx context.Context, route Route, departure *time.Time, userID uuid.UUID) (*Room, Snapshot, error) {
	if route.Departure == "" || route.Destination == "" {
		return nil, Snapshot{}, newError(ErrInvalidRequest, "departure and destination are required")
	}
	entry := s.log.WithFields(logrus.Fields{"user_id": userID, "route": route.String()})

	for _, r := range s.candidates(route, userID) {
		snap, err := r.Join(ctx, userID, nil)
		switch {
		case err == nil:
			entry.WithField("room_id", r.ID).Debug("matched existing room")
			return r, snap, nil
		case errors.Is(err, ErrAlreadyMember):
			return r, r.Snapshot(), nil
		case errors.Is(err, ErrRoomFull), errors.Is(err, ErrRecruitmentClosed):
			continue
		case errors.Is(err, ErrNotFound) && r.Destroyed():
			continue
		default:
			return nil, Snapshot{}, err
		}
	}

	r, err := s.Create(route, departure, s.opts)
	if err != nil {
		return nil, Snapshot{}, err
	}
	snap, err := r.Join(ctx, userID, nil)
	if err != nil {
		r.Shutdown()
		return nil, Snapshot{}, err
	}
	entry.WithField("room_id", r.ID).Info("matched into new room")
	return r, snap, nil
}

// Reap applies Room.Reap to every live room and returns how many were removed.
func (s *RoomStore) Reap(now time.Time, idle time.Duration) int {
	reaped := 0
	for _, r := range s.all() {
		if outcome, ok := r.Reap(now, idle); ok {
			reaped++
			s.log.WithFields(logrus.Fields{"room_id": r.ID, "outcome": outcome}).Info("reaped idle room")
		}
	}
	return reaped
}

// RunReaper calls Reap every interval until ctx is done. A non-positive idle
// disables reaping.
func (s *RoomStore) RunReaper(ctx context.Context, every, idle time.Duration) {
	if idle <= 0 || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Reap(now, idle); n > 0 {
				s.log.WithFields(logrus.Fields{"reaped": n, "rooms": s.Count()}).Info("reaper pass")
			}
		}
	}
}

// Shutdown tears down every room, cancelling their countdowns.
func (s *RoomStore) Shutdown() {
	for _, r := range s.all() {
		r.Shutdown()
	}
}
