// internal/room/state.go
package room

import (
	"encoding/json"
	"fmt"
)

// State is the room lifecycle stage. Values only ever increase.
type State int

const (
	StateOpen State = iota
	StateRecruitmentComplete
	StateSettled
	StateClosed
)

var stateNames = map[State]string{
	StateOpen:                "open",
	StateRecruitmentComplete: "recruitment_complete",
	StateSettled:             "settled",
	StateClosed:              "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *State) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for st, n := range stateNames {
		if n == name {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown room state %q", name)
}

// AcceptsJoins reports whether new riders may enter.
func (s State) AcceptsJoins() bool { return s == StateOpen }

// RosterFrozen reports whether membership and leadership are fixed.
func (s State) RosterFrozen() bool { return s >= StateRecruitmentComplete }

// CheckTransition validates moving from -> to. Only single forward steps are legal;
// skipping ahead yields the error naming the missing prerequisite.
func CheckTransition(from, to State) error {
	switch {
	case to <= from:
		return newError(ErrIllegalTransition, "cannot move from %s to %s", from, to)
	case to == from+1:
		return nil
	case to == StateSettled:
		return newError(ErrRecruitmentNotComplete, "cannot settle a room in state %s", from)
	case to == StateClosed:
		return newError(ErrSettlementRequired, "cannot close a room in state %s", from)
	default:
		return newError(ErrIllegalTransition, "cannot move from %s to %s", from, to)
	}
}
