package model

import (
	"encoding/json"
	"fmt"
)

// RunState is the lifecycle state of one scan run on a page.
//
// A run moves Idle -> Starting -> Running -> Finishing and ends in exactly
// one of the terminal states Done, Aborted or Error. After a terminal state
// the engine accepts a new start again.
type RunState int

const (
	// RunStateIdle means no run has been started yet.
	RunStateIdle RunState = iota

	// RunStateStarting is reported once per run, right after enumeration,
	// with the fragment total and zero progress.
	RunStateStarting

	// RunStateRunning is reported after every batch while fragments remain.
	RunStateRunning

	// RunStateFinishing is reported after the batch that drained the queue.
	RunStateFinishing

	// RunStateDone is the normal terminal state.
	RunStateDone

	// RunStateAborted is the terminal state of a cancelled run.
	RunStateAborted

	// RunStateError is the terminal state of a run whose setup failed.
	RunStateError
)

var runStateNames = map[RunState]string{
	RunStateIdle:      "idle",
	RunStateStarting:  "start",
	RunStateRunning:   "running",
	RunStateFinishing: "finishing",
	RunStateDone:      "done",
	RunStateAborted:   "aborted",
	RunStateError:     "error",
}

// String returns the wire name of the state.
func (s RunState) String() string {
	if name, ok := runStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParseRunState converts a wire name back into a RunState.
func ParseRunState(s string) (RunState, error) {
	for state, name := range runStateNames {
		if name == s {
			return state, nil
		}
	}
	return RunStateIdle, fmt.Errorf("%w: %q", ErrUnknownRunState, s)
}

// IsTerminal reports whether the state ends a run.
func (s RunState) IsTerminal() bool {
	return s == RunStateDone || s == RunStateAborted || s == RunStateError
}

// IsActive reports whether a run in this state blocks a new start.
func (s RunState) IsActive() bool {
	return s == RunStateStarting || s == RunStateRunning || s == RunStateFinishing
}

// MarshalJSON encodes the state as its wire name.
func (s RunState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a wire name.
func (s *RunState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseRunState(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
