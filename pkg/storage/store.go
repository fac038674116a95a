package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/fleetroll/pkg/types"
)

var (
	// ErrLocked is returned when another process holds the journal
	ErrLocked = errors.New("another rollout holds the lock on this working directory")

	// ErrInFlight is returned when a previous run left a step unfinished
	ErrInFlight = errors.New("a previous rollout did not finish")
)

// InFlight marks the step a run is currently executing
type InFlight struct {
	RunID     string             `json:"run_id"`
	From      types.RolloutState `json:"from"`
	Target    types.RolloutState `json:"target"`
	Step      types.RolloutState `json:"step"`
	StartedAt time.Time          `json:"started_at"`
}

func (f *InFlight) String() string {
	return fmt.Sprintf("run %s (%s -> %s) stopped at %s, started %s",
		f.RunID, f.From, f.Target, f.Step, f.StartedAt.Format(time.RFC3339))
}

// InFlightError reports the marker left behind by an unfinished run
type InFlightError struct {
	Entry *InFlight
}

func (e *InFlightError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInFlight, e.Entry)
}

func (e *InFlightError) Is(target error) bool {
	return target == ErrInFlight
}
