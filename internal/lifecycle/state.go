// Package lifecycle stops a running process gracefully, with the operator's
// consent, and relaunches it afterwards.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
)

// State is a step of the coordinator state machine.
type State int

const (
	Idle State = iota
	Locating
	Confirming
	Stopping
	WaitingExit
	Stopped
	Aborted
	Relaunching
	Done
)

var stateNames = [...]string{
	Idle:        "idle",
	Locating:    "locating",
	Confirming:  "confirming",
	Stopping:    "stopping",
	WaitingExit: "waiting_exit",
	Stopped:     "stopped",
	Aborted:     "aborted",
	Relaunching: "relaunching",
	Done:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

var (
	// ErrUserAborted is returned when the operator declines to stop the
	// process or cancels waiting for it.
	ErrUserAborted = errors.New("aborted by user")
	// ErrRelaunchFailed wraps failures to start the process again. It is
	// reported, never fatal.
	ErrRelaunchFailed = errors.New("relaunch failed")
)

// StateError records the state in which a lifecycle step failed.
type StateError struct {
	State State
	Err   error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *StateError) Unwrap() error {
	return e.Err
}

// Choice is the answer to a stop confirmation.
type Choice int

const (
	Proceed Choice = iota
	Decline
)

// RetryChoice is the answer when the process is still running after a stop request.
type RetryChoice int

const (
	Retry RetryChoice = iota
	Cancel
)

// Dialog asks the operator questions. Implementations must return promptly
// with ctx.Err() when ctx is cancelled; the coordinator cancels an open
// prompt when the process exits on its own.
type Dialog interface {
	Confirm(ctx context.Context, question string) (Choice, error)
	ConfirmRetry(ctx context.Context, question string) (RetryChoice, error)
}
