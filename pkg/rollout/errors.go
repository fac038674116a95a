package rollout

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/fleetroll/pkg/types"
)

// ErrMalfunctionDetected is matched by errors.Is for every run that rolled back
var ErrMalfunctionDetected = errors.New("malfunction detected in new agents")

// AmbiguousStateError is returned when the live infrastructure matches neither
// terminal state
type AmbiguousStateError struct {
	WorkingDir string
}

func (e *AmbiguousStateError) Error() string {
	return fmt.Sprintf("infrastructure in %s matches neither %s nor %s, fix it manually before rolling out",
		e.WorkingDir, types.StateAllOld, types.StateAllNew)
}

// InvalidStartStateError is returned when a sequence is requested from a
// state a fleet never rests in
type InvalidStartStateError struct {
	State types.RolloutState
}

func (e *InvalidStartStateError) Error() string {
	return fmt.Sprintf("cannot start a rollout from %s: only %s and %s are valid starting states",
		e.State, types.StateAllOld, types.StateAllNew)
}

// MalfunctionError reports a step whose new agents were unhealthy. The fleet
// was reverted to Target.
type MalfunctionError struct {
	State  types.RolloutState
	Agents []string
	Target types.RolloutState
	Reason string
}

func (e *MalfunctionError) Error() string {
	msg := fmt.Sprintf("%v after applying %s, rolled back to %s", ErrMalfunctionDetected, e.State, e.Target)
	if len(e.Agents) > 0 {
		msg += fmt.Sprintf(" (unhealthy: %s)", strings.Join(e.Agents, ", "))
	}
	return msg
}

func (e *MalfunctionError) Is(target error) bool {
	return target == ErrMalfunctionDetected
}

// RollbackFailedError is returned when the rollback apply itself failed. No
// further recovery is attempted.
type RollbackFailedError struct {
	State  types.RolloutState
	Target types.RolloutState
	Err    error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("malfunction detected after applying %s and rollback to %s failed: %v",
		e.State, e.Target, e.Err)
}

func (e *RollbackFailedError) Unwrap() error {
	return e.Err
}
