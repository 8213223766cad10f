// SPDX-License-Identifier: MPL-2.0

package prepare

import (
	"fmt"
	"slices"
)

// Preparation states.
const (
	StateUnprepared State = iota
	StateLockWait
	StateReusingLocal
	StatePulling
	StateBuilding
	StatePrepared
	StateFailed
)

type (
	// State is the position of a preparation request in its state machine.
	State int

	// Transition is reported to an Observer on every state change.
	Transition struct {
		Fingerprint string
		Spec        string
		From        State
		To          State
	}

	// Observer receives state transitions. It is called synchronously from
	// the preparing goroutine and must not block.
	Observer func(Transition)
)

var stateNames = [...]string{
	StateUnprepared:   "unprepared",
	StateLockWait:     "lock-wait",
	StateReusingLocal: "reusing-local",
	StatePulling:      "pulling",
	StateBuilding:     "building",
	StatePrepared:     "prepared",
	StateFailed:       "failed",
}

// String returns the state name, e.g. "lock-wait".
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends a preparation.
func (s State) Terminal() bool {
	return s == StatePrepared || s == StateFailed
}

// validTransitions lists the allowed successors of each non-terminal state.
var validTransitions = map[State][]State{
	StateUnprepared:   {StateLockWait},
	StateLockWait:     {StateReusingLocal, StatePulling, StateBuilding, StateFailed},
	StateReusingLocal: {StatePrepared},
	StatePulling:      {StatePrepared, StateFailed},
	StateBuilding:     {StatePrepared, StateFailed},
}

// CanTransition reports whether the state machine allows moving from s to next.
func (s State) CanTransition(next State) bool {
	return slices.Contains(validTransitions[s], next)
}
