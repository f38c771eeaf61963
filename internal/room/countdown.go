// internal/room/countdown.go
package room

import (
	"time"

	"github.com/google/uuid"
)

type countdownMode int

const (
	countdownIdle countdownMode = iota
	countdownShared
	countdownHandoff
	countdownSettling // full room, waiting out SettleDelay before completing
)

// countdown is the per-room recruitment clock. Every field is guarded by the owning
// Room's mutex. gen is bumped on each cancel so a tick or settle timer that fires
// after being superseded can recognise itself as stale and do nothing.
type countdown struct {
	window    int
	remaining int
	mode      countdownMode
	owner     uuid.UUID
	gen       uint64

	stop        chan struct{}
	settleTimer *time.Timer
}

func newCountdown(window int) countdown {
	return countdown{window: window, remaining: window}
}

func (c *countdown) running() bool { return c.mode != countdownIdle }

func (c *countdown) stream() CountdownStream {
	if c.mode == countdownHandoff {
		return StreamHandoff
	}
	return StreamShared
}

// cancelCountdownUnsafe stops any ticker or settle timer. Safe to call when idle.
// Reports whether something was running. Assumes lock is held.
func (r *Room) cancelCountdownUnsafe() bool {
	c := &r.countdown
	wasRunning := c.running()
	c.gen++
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	if c.settleTimer != nil {
		c.settleTimer.Stop()
		c.settleTimer = nil
	}
	c.mode = countdownIdle
	c.owner = uuid.Nil
	return wasRunning
}

// startTickerUnsafe launches a ticker goroutine for the current generation.
// Assumes lock is held and no ticker is running.
func (r *Room) startTickerUnsafe() {
	c := &r.countdown
	stop := make(chan struct{})
	c.stop = stop
	go r.runTicker(c.gen, stop, r.opts.CountdownTick)
}

func (r *Room) runTicker(gen uint64, stop <-chan struct{}, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !r.tick(gen) {
				return
			}
		}
	}
}

// tick advances the clock by one unit. It returns false once the ticker that
// called it should exit.
func (r *Room) tick(gen uint64) bool {
	r.mu.Lock()
	defer r.unlock()

	c := &r.countdown
	if r.destroyed || gen != c.gen || r.state != StateOpen {
		return false
	}

	c.remaining--
	if c.remaining < 0 {
		c.remaining = 0
	}
	r.publishTickUnsafe()
	if c.remaining > 0 {
		return true
	}

	if r.members.Count() >= r.opts.Quorum() {
		r.log.WithField("remaining", 0).Info("countdown elapsed, completing recruitment")
		r.completeRecruitmentUnsafe()
		return false
	}

	// Clock ran out without quorum: start over.
	r.cancelCountdownUnsafe()
	c.remaining = c.window
	r.publishUnsafe(Event{Type: EventCountdownReset, Remaining: intPtr(c.remaining)})
	r.evaluateCountdownUnsafe()
	return false
}

// settleFire completes recruitment for a room that stayed full for SettleDelay.
func (r *Room) settleFire(gen uint64) {
	r.mu.Lock()
	defer r.unlock()

	if r.destroyed || gen != r.countdown.gen || r.state != StateOpen {
		return
	}
	if r.members.Count() < r.opts.Quorum() {
		return
	}
	r.log.WithField("participants", r.members.Count()).Info("room full, completing recruitment")
	r.completeRecruitmentUnsafe()
}

// evaluateCountdownUnsafe applies the countdown policy for the live participant
// count. Called after every membership change while the room is open.
// Assumes lock is held.
func (r *Room) evaluateCountdownUnsafe() {
	if r.destroyed || r.state != StateOpen {
		return
	}
	c := &r.countdown
	n := r.members.Count()

	switch {
	case n >= r.opts.CapacityMax:
		if c.mode == countdownSettling {
			return
		}
		r.cancelCountdownUnsafe()
		if r.opts.SettleDelay <= 0 {
			r.completeRecruitmentUnsafe()
			return
		}
		c.mode = countdownSettling
		gen := c.gen
		c.settleTimer = time.AfterFunc(r.opts.SettleDelay, func() { r.settleFire(gen) })

	case n < 2:
		wasRunning := r.cancelCountdownUnsafe()
		if wasRunning || c.remaining != c.window {
			c.remaining = c.window
			r.publishUnsafe(Event{Type: EventCountdownReset, Remaining: intPtr(c.remaining)})
		}

	case n == 2:
		r.cancelCountdownUnsafe()
		c.remaining = c.window
		c.mode = countdownShared
		r.startTickerUnsafe()

	default:
		// The clock keeps its value; only the owner and stream change.
		newest, _ := r.members.Newest()
		if c.mode == countdownIdle || c.mode == countdownSettling {
			r.cancelCountdownUnsafe()
			if c.remaining <= 0 {
				c.remaining = c.window
			}
			r.startTickerUnsafe()
		}
		c.mode = countdownHandoff
		c.owner = newest.UserID
	}
}

func (r *Room) publishTickUnsafe() {
	c := &r.countdown
	ev := Event{
		Type:      EventCountdownTick,
		Remaining: intPtr(c.remaining),
		Stream:    c.stream(),
	}
	if c.owner != uuid.Nil {
		owner := c.owner
		ev.Owner = &owner
	}
	r.publishUnsafe(ev)
}

func intPtr(v int) *int { return &v }
