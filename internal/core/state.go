package core

import "errors"

// RunState is a phase of a matching run
type RunState int

const (
	StateIdle RunState = iota
	StateFiltering
	StatePairing
	StateNotifying
	StateCommitting
	StateDone
	StateFailed
)

var stateNames = map[RunState]string{
	StateIdle:       "idle",
	StateFiltering:  "filtering",
	StatePairing:    "pairing",
	StateNotifying:  "notifying",
	StateCommitting: "committing",
	StateDone:       "done",
	StateFailed:     "failed",
}

func (s RunState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ErrRunInProgress is returned when another run holds the run lease
var ErrRunInProgress = errors.New("another matching run is in progress")

// RunError is a fatal run failure together with the state it happened in
type RunError struct {
	State RunState
	Err   error
}

func (e *RunError) Error() string {
	return e.State.String() + ": " + e.Err.Error()
}

func (e *RunError) Unwrap() error {
	return e.Err
}
