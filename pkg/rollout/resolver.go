package rollout

import (
	"context"

	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/rs/zerolog"
)

// Planner is the part of the provisioner the resolver needs
type Planner interface {
	Plan(ctx context.Context, vars map[string]string, planFile string) (bool, error)
}

// Resolver determines which terminal state the live infrastructure is in
type Resolver struct {
	planner    Planner
	variable   string
	values     types.StateValues
	workingDir string
	logger     zerolog.Logger
}

// NewResolver creates a resolver selecting states through variable
func NewResolver(planner Planner, variable string, values types.StateValues, workingDir string) *Resolver {
	return &Resolver{
		planner:    planner,
		variable:   variable,
		values:     values,
		workingDir: workingDir,
		logger:     log.WithComponent("resolver"),
	}
}

// Resolve plans against each terminal state without saving the plan. The
// first one with no changes is the current state. ALL_NEW is only queried
// when ALL_OLD shows changes.
func (r *Resolver) Resolve(ctx context.Context) (types.RolloutState, error) {
	for _, state := range []types.RolloutState{types.StateAllOld, types.StateAllNew} {
		changes, err := r.planner.Plan(ctx, r.vars(state), "")
		if err != nil {
			return 0, err
		}
		if !changes {
			r.logger.Info().Str("state", state.String()).Msg("Resolved current state")
			return state, nil
		}
		r.logger.Debug().Str("state", state.String()).Msg("Infrastructure differs from state")
	}
	return 0, &AmbiguousStateError{WorkingDir: r.workingDir}
}

func (r *Resolver) vars(state types.RolloutState) map[string]string {
	return map[string]string{r.variable: r.values.Value(state)}
}
