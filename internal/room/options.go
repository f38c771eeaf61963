// internal/room/options.go
package room

import (
	"fmt"
	"time"
)

// ReconnectPolicy decides what happens when a member who already has a live
// session joins again.
type ReconnectPolicy string

const (
	// ReconnectResume swaps the session and keeps position and leadership.
	ReconnectResume ReconnectPolicy = "resume"
	// ReconnectFresh treats the reconnect as leave followed by join while recruiting.
	ReconnectFresh ReconnectPolicy = "fresh"
	// ReconnectReject refuses the second session with ErrAlreadyMember.
	ReconnectReject ReconnectPolicy = "reject"
)

// ParseReconnectPolicy accepts "resume", "fresh" or "reject".
func ParseReconnectPolicy(s string) (ReconnectPolicy, error) {
	switch p := ReconnectPolicy(s); p {
	case ReconnectResume, ReconnectFresh, ReconnectReject:
		return p, nil
	case "":
		return ReconnectResume, nil
	default:
		return "", fmt.Errorf("unknown reconnect policy %q", s)
	}
}

// Options tunes a single room. Zero fields fall back to DefaultOptions.
type Options struct {
	CapacityMin         int
	CapacityMax         int
	CountdownWindow     int           // ticks
	CountdownTick       time.Duration // length of one tick
	SettleDelay         time.Duration // wait before completing a full room; 0 completes at once
	Reconnect           ReconnectPolicy
	CollaboratorTimeout time.Duration
	CollaboratorRetries int // extra attempts after the first; negative disables retries
	DuplicateWindow     time.Duration
}

// DefaultOptions mirrors the production settings: rooms of two to four riders,
// a thirty second window and a two second settle delay for full rooms.
func DefaultOptions() Options {
	return Options{
		CapacityMin:         2,
		CapacityMax:         4,
		CountdownWindow:     30,
		CountdownTick:       time.Second,
		SettleDelay:         2 * time.Second,
		Reconnect:           ReconnectResume,
		CollaboratorTimeout: 3 * time.Second,
		CollaboratorRetries: 2,
		DuplicateWindow:     2 * time.Second,
	}
}

// withDefaults fills zero fields. SettleDelay and DuplicateWindow are left alone
// since zero is meaningful for both.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.CapacityMin == 0 {
		o.CapacityMin = def.CapacityMin
	}
	if o.CapacityMax == 0 {
		o.CapacityMax = def.CapacityMax
	}
	if o.CountdownWindow == 0 {
		o.CountdownWindow = def.CountdownWindow
	}
	if o.CountdownTick == 0 {
		o.CountdownTick = def.CountdownTick
	}
	if o.Reconnect == "" {
		o.Reconnect = def.Reconnect
	}
	if o.CollaboratorTimeout == 0 {
		o.CollaboratorTimeout = def.CollaboratorTimeout
	}
	if o.CollaboratorRetries == 0 {
		o.CollaboratorRetries = def.CollaboratorRetries
	}
	return o
}

// Validate rejects capacity bounds a room could never satisfy.
func (o Options) Validate() error {
	o = o.withDefaults()
	switch {
	case o.CapacityMin < 1:
		return newError(ErrInvalidRequest, "capacity_min must be at least 1, got %d", o.CapacityMin)
	case o.CapacityMax < 2:
		return newError(ErrInvalidRequest, "capacity_max must be at least 2, got %d", o.CapacityMax)
	case o.CapacityMin > o.CapacityMax:
		return newError(ErrInvalidRequest, "capacity_min %d exceeds capacity_max %d", o.CapacityMin, o.CapacityMax)
	case o.CountdownWindow < 1:
		return newError(ErrInvalidRequest, "countdown window must be positive, got %d", o.CountdownWindow)
	}
	return nil
}

// Quorum is the single minimum used both for a leader closing recruitment and
// for the countdown completing it.
func (o Options) Quorum() int {
	if o.CapacityMin > 2 {
		return o.CapacityMin
	}
	return 2
}

func (o Options) retry() retryPolicy {
	return retryPolicy{
		timeout:  o.CollaboratorTimeout,
		attempts: o.CollaboratorRetries + 1,
		backoff:  50 * time.Millisecond,
	}
}
