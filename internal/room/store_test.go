// internal/room/store_test.go
package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RoomStore, *staticIdentity, *recordingGateway) {
	t.Helper()
	identity := newStaticIdentity()
	gateway := newRecordingGateway()
	opts := testOptions()
	opts.CountdownWindow = 1000
	opts.SettleDelay = time.Hour
	s := NewRoomStore(opts, Deps{Identity: identity, Records: &memoryRecords{}, Gateway: gateway})
	t.Cleanup(s.Shutdown)
	return s, identity, gateway
}

func TestStoreMatchFillsOldestRoomFirst(t *testing.T) {
	s, identity, _ := newTestStore(t)
	route := Route{Departure: "Dorm", Destination: "Airport"}
	ctx := context.Background()

	var first *Room
	for i := 0; i < 4; i++ {
		r, _, err := s.Match(ctx, route, nil, identity.add("r", ""))
		require.NoError(t, err)
		if first == nil {
			first = r
		}
		assert.Equal(t, first.ID, r.ID, "rider %d joins the existing room", i)
	}
	assert.Len(t, first.Snapshot().Participants, 4)

	overflow, snap, err := s.Match(ctx, route, nil, identity.add("late", ""))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, overflow.ID)
	assert.Len(t, snap.Participants, 1)
	assert.Equal(t, 2, s.Count())

	other, _, err := s.Match(ctx, Route{Departure: "Dorm", Destination: "Station"}, nil, identity.add("x", ""))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
	assert.NotEqual(t, overflow.ID, other.ID)
}

func TestStoreMatchReturnsExistingSeat(t *testing.T) {
	s, identity, _ := newTestStore(t)
	route := Route{Departure: "Dorm", Destination: "Airport"}
	user := identity.add("a", "")

	r1, _, err := s.Match(context.Background(), route, nil, user)
	require.NoError(t, err)
	r2, snap, err := s.Match(context.Background(), route, nil, user)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, r2.ID)
	assert.Len(t, snap.Participants, 1)
}

func TestStoreMatchSkipsClosedRooms(t *testing.T) {
	s, identity, _ := newTestStore(t)
	route := Route{Departure: "Dorm", Destination: "Airport"}
	ctx := context.Background()
	a, b := identity.add("a", ""), identity.add("b", "")

	r, _, err := s.Match(ctx, route, nil, a)
	require.NoError(t, err)
	_, _, err = s.Match(ctx, route, nil, b)
	require.NoError(t, err)
	_, err = r.RequestCompleteRecruitment(ctx, a)
	require.NoError(t, err)

	next, _, err := s.Match(ctx, route, nil, identity.add("c", ""))
	require.NoError(t, err)
	assert.NotEqual(t, r.ID, next.ID)
}

func TestStoreMatchUnknownUserCreatesNothing(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, _, err := s.Match(context.Background(), Route{Departure: "A", Destination: "B"}, nil, uuid.New())
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, 0, s.Count())
}

func TestStoreDropsDestroyedRooms(t *testing.T) {
	s, identity, _ := newTestStore(t)
	user := identity.add("a", "")

	r, _, err := s.Match(context.Background(), Route{Departure: "A", Destination: "B"}, nil, user)
	require.NoError(t, err)
	_, err = s.Get(r.ID)
	require.NoError(t, err)

	_, err = r.Leave(context.Background(), user, nil)
	require.NoError(t, err)

	_, err = s.Get(r.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, s.List())
}

func TestStoreCreateValidates(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.Create(Route{Departure: "A"}, nil, s.Defaults())
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	opts := s.Defaults()
	opts.CapacityMin, opts.CapacityMax = 5, 3
	_, err = s.Create(Route{Departure: "A", Destination: "B"}, nil, opts)
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	departure := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	r, err := s.Create(Route{Departure: "A", Destination: "B"}, &departure, s.Defaults())
	require.NoError(t, err)
	snap := r.Snapshot()
	assert.Equal(t, "A - B", snap.Name)
	require.NotNil(t, snap.DepartureTime)
	assert.True(t, departure.Equal(*snap.DepartureTime))
}

func TestStoreListOldestFirst(t *testing.T) {
	s, _, _ := newTestStore(t)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		r, err := s.Create(Route{Departure: "A", Destination: "B"}, nil, s.Defaults())
		require.NoError(t, err)
		ids = append(ids, r.ID)
		time.Sleep(time.Millisecond)
	}

	list := s.List()
	require.Len(t, list, 3)
	for i, snap := range list {
		assert.Equal(t, ids[i], snap.ID)
	}
}

func TestStoreConcurrentMatchNeverOverfills(t *testing.T) {
	s, identity, _ := newTestStore(t)
	route := Route{Departure: "Dorm", Destination: "Airport"}
	users := make([]uuid.UUID, 20)
	for i := range users {
		users[i] = identity.add("r", "")
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u uuid.UUID) {
			defer wg.Done()
			_, _, err := s.Match(context.Background(), route, nil, u)
			assert.NoError(t, err)
		}(u)
	}
	wg.Wait()

	seated := 0
	for _, snap := range s.List() {
		assert.LessOrEqual(t, len(snap.Participants), snap.CapacityMax)
		seated += len(snap.Participants)
	}
	assert.Equal(t, len(users), seated)
}

func TestStoreReapsIdleFinishedRooms(t *testing.T) {
	s, identity, gateway := newTestStore(t)
	route := Route{Departure: "Dorm", Destination: "Airport"}
	ctx := context.Background()
	opts := s.Defaults()

	// Given an open room, a recruited room and a settled room
	open, err := s.Create(route, nil, opts)
	require.NoError(t, err)
	_, err = open.Join(ctx, identity.add("a", ""), nil)
	require.NoError(t, err)

	recruited, err := s.Create(route, nil, opts)
	require.NoError(t, err)
	leader := identity.add("b", "")
	_, err = recruited.Join(ctx, leader, nil)
	require.NoError(t, err)
	_, err = recruited.Join(ctx, identity.add("c", ""), nil)
	require.NoError(t, err)
	_, err = recruited.RequestCompleteRecruitment(ctx, leader)
	require.NoError(t, err)

	settled, err := s.Create(route, nil, opts)
	require.NoError(t, err)
	payer := identity.add("d", "https://pay.example/send/")
	_, err = settled.Join(ctx, payer, nil)
	require.NoError(t, err)
	_, err = settled.Join(ctx, identity.add("e", ""), nil)
	require.NoError(t, err)
	_, err = settled.RequestCompleteRecruitment(ctx, payer)
	require.NoError(t, err)
	_, err = settled.RequestSettlement(ctx, payer, 10000)
	require.NoError(t, err)

	// When nothing has been idle long enough
	assert.Zero(t, s.Reap(time.Now(), time.Hour))
	assert.Equal(t, 3, s.Count())

	// When the reaper runs past the idle timeout
	reaped := s.Reap(time.Now().Add(2*time.Hour), time.Hour)

	// Then only the finished rooms are gone
	assert.Equal(t, 2, reaped)
	assert.Equal(t, 1, s.Count())
	_, err = s.Get(open.ID)
	require.NoError(t, err)
	assert.Equal(t, StateClosed, settled.State())
	assert.True(t, settled.Destroyed())
	assert.Equal(t, StateRecruitmentComplete, recruited.State())
	assert.True(t, recruited.Destroyed())
	assert.Equal(t, 1, gateway.count(EventRoomClosed))
}

func TestStoreRunReaperStopsWithContext(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunReaper(ctx, time.Millisecond, time.Hour)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop")
	}
}
