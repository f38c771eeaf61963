// internal/room/countdown_test.go
package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountdownStartsAtTwoAndResetsBelowTwo(t *testing.T) {
	opts := testOptions()
	opts.CountdownTick = 20 * time.Millisecond
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(2)

	snap, err := h.room.Join(ctx, ids[0], nil)
	require.NoError(t, err)
	assert.False(t, snap.CountdownRunning, "a single rider does not start the clock")
	assert.Equal(t, 30, snap.CountdownRemaining)

	snap, err = h.room.Join(ctx, ids[1], nil)
	require.NoError(t, err)
	assert.True(t, snap.CountdownRunning)
	assert.Equal(t, 30, snap.CountdownRemaining)

	require.Eventually(t, func() bool { return h.gateway.count(EventCountdownTick) > 0 }, time.Second, 5*time.Millisecond)
	tick := h.gateway.ofType(EventCountdownTick)[0]
	require.NotNil(t, tick.Remaining)
	assert.Equal(t, 29, *tick.Remaining)
	assert.Equal(t, StreamShared, tick.Stream)

	snap, err = h.room.Leave(ctx, ids[1], nil)
	require.NoError(t, err)
	assert.False(t, snap.CountdownRunning)
	assert.Equal(t, 30, snap.CountdownRemaining)
	assert.Equal(t, 1, h.gateway.count(EventCountdownReset))

	// A cancelled ticker must not fire again.
	ticks := h.gateway.count(EventCountdownTick)
	time.Sleep(5 * opts.CountdownTick)
	assert.Equal(t, ticks, h.gateway.count(EventCountdownTick))
	assert.Equal(t, StateOpen, h.room.State())
}

func TestCountdownJoinEventPrecedesTicks(t *testing.T) {
	h := newHarness(t, testOptions())
	ctx := context.Background()
	ids := h.riders(2)

	_, err := h.room.Join(ctx, ids[0], nil)
	require.NoError(t, err)
	_, err = h.room.Join(ctx, ids[1], nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return h.gateway.count(EventCountdownTick) > 0 }, time.Second, time.Millisecond)

	lastJoin, firstTick := -1, -1
	for i, ev := range h.gateway.all() {
		if ev.Type == EventParticipantJoined {
			lastJoin = i
		}
		if ev.Type == EventCountdownTick && firstTick < 0 {
			firstTick = i
		}
	}
	assert.Less(t, lastJoin, firstTick)

	events := h.gateway.all()
	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq, "sequence numbers increase")
	}
}

func TestCountdownElapsedCompletesRecruitment(t *testing.T) {
	opts := testOptions()
	opts.CountdownWindow = 3
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(2)

	for _, id := range ids {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return h.room.State() == StateRecruitmentComplete }, time.Second, time.Millisecond)
	snap := h.room.Snapshot()
	assert.Len(t, snap.FinalParticipants, 2)
	assert.False(t, snap.CountdownRunning)
	assert.Equal(t, 1, h.gateway.count(EventRecruitmentComplete))

	require.Eventually(t, func() bool {
		last, ok := h.records.lastSnapshot()
		return ok && last.State == StateRecruitmentComplete
	}, time.Second, time.Millisecond)
}

func TestCountdownWithoutQuorumRestarts(t *testing.T) {
	opts := testOptions()
	opts.CapacityMin = 3
	opts.CountdownWindow = 2
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(2)

	for _, id := range ids {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return h.gateway.count(EventCountdownReset) > 0 }, time.Second, time.Millisecond)
	assert.Equal(t, StateOpen, h.room.State())
	assert.True(t, h.room.Snapshot().CountdownRunning, "the shared clock starts over")
}

func TestCountdownThirdRiderContinuesClock(t *testing.T) {
	opts := testOptions()
	opts.CountdownWindow = 1000
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(3)

	for _, id := range ids[:2] {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}
	require.Eventually(t, func() bool { return h.gateway.count(EventCountdownTick) >= 3 }, time.Second, time.Millisecond)

	snap, err := h.room.Join(ctx, ids[2], nil)
	require.NoError(t, err)
	assert.Less(t, snap.CountdownRemaining, 1000, "third rider does not reset the clock")
	assert.True(t, snap.CountdownRunning)

	require.Eventually(t, func() bool {
		for _, ev := range h.gateway.ofType(EventCountdownTick) {
			if ev.Stream == StreamHandoff && ev.Owner != nil && *ev.Owner == ids[2] {
				return true
			}
		}
		return false
	}, time.Second, time.Millisecond)
}

func TestCountdownFullRoomCompletesImmediately(t *testing.T) {
	opts := testOptions()
	opts.CountdownWindow = 1000
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(4)

	for _, id := range ids {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}

	snap := h.room.Snapshot()
	assert.Equal(t, StateRecruitmentComplete, snap.State)
	assert.Len(t, snap.FinalParticipants, 4)
	assert.Greater(t, snap.CountdownRemaining, 900, "completion did not wait for the timer")
}

func TestCountdownFullRoomWaitsSettleDelay(t *testing.T) {
	opts := testOptions()
	opts.CountdownWindow = 1000
	opts.SettleDelay = 30 * time.Millisecond
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(4)

	for _, id := range ids {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, StateOpen, h.room.State())
	require.Eventually(t, func() bool { return h.room.State() == StateRecruitmentComplete }, time.Second, time.Millisecond)
}

func TestCountdownSettleCancelledByLeave(t *testing.T) {
	opts := testOptions()
	opts.CountdownWindow = 1000
	opts.SettleDelay = 30 * time.Millisecond
	h := newHarness(t, opts)
	ctx := context.Background()
	ids := h.riders(4)

	for _, id := range ids {
		_, err := h.room.Join(ctx, id, nil)
		require.NoError(t, err)
	}
	_, err := h.room.Leave(ctx, ids[3], nil)
	require.NoError(t, err)

	time.Sleep(3 * opts.SettleDelay)
	assert.Equal(t, StateOpen, h.room.State(), "a superseded settle timer is stale")
	assert.True(t, h.room.Snapshot().CountdownRunning)
}

func TestCancelCountdownIsIdempotent(t *testing.T) {
	h := newHarness(t, testOptions())

	h.room.mu.Lock()
	first := h.room.cancelCountdownUnsafe()
	second := h.room.cancelCountdownUnsafe()
	h.room.unlock()

	assert.False(t, first)
	assert.False(t, second)
}

func TestLeaderCompletionIgnoresPendingTimers(t *testing.T) {
	tests := []struct {
		name   string
		riders int
		wait   time.Duration
		opts   func(*Options)
	}{
		{"settle timer of a full room", 4, 100 * time.Millisecond, func(o *Options) {
			o.CountdownWindow = 1000
			o.SettleDelay = 30 * time.Millisecond
		}},
		{"running shared clock", 2, 300 * time.Millisecond, func(o *Options) {
			o.CountdownWindow = 20
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions()
			tt.opts(&opts)
			h := newHarness(t, opts)
			ctx := context.Background()
			ids := h.riders(tt.riders)
			joinAll(t, h.room, ids)
			require.Equal(t, StateOpen, h.room.State())

			// Given the leader closes recruitment while a timer is pending
			snap, err := h.room.RequestCompleteRecruitment(ctx, ids[0])
			require.NoError(t, err)
			ticks := h.gateway.count(EventCountdownTick)

			// When the timer would have fired
			time.Sleep(tt.wait)

			// Then the final roster and its single event are untouched
			after := h.room.Snapshot()
			assert.Equal(t, StateRecruitmentComplete, after.State)
			assert.Equal(t, snap.FinalParticipants, after.FinalParticipants)
			assert.Equal(t, 1, h.gateway.count(EventRecruitmentComplete))
			assert.Equal(t, ticks, h.gateway.count(EventCountdownTick))
		})
	}
}
