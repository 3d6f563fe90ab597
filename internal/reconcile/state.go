package reconcile

import "fmt"

// State is a step of a reconciliation run.
type State int

const (
	StateStart          State = iota // Nothing read yet
	StateSnapshotTaken               // Catalog snapshot in hand, tables classified
	StateFindersRunning              // Checking static rows of present tables
	StateFindersDone                 // Apply queue is final
	StateApplyRunning                // Creating tables and inserting rows
	StateDone                        // Terminal: success
	StateError                       // Terminal: a step failed
)

var stateNames = [...]string{
	StateStart:          "start",
	StateSnapshotTaken:  "snapshot taken",
	StateFindersRunning: "finders running",
	StateFindersDone:    "finders done",
	StateApplyRunning:   "apply running",
	StateDone:           "done",
	StateError:          "error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// RunError reports the step at which a run failed.
type RunError struct {
	State State
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("reconcile (%s): %v", e.State, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}
