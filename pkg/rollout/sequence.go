package rollout

import "github.com/cuemby/fleetroll/pkg/types"

// PlanSequence returns the states a rollout from current passes through.
// The first element is current itself and is never applied; it is the
// rollback target for the whole run.
func PlanSequence(current types.RolloutState) (types.Sequence, error) {
	switch current {
	case types.StateAllOld:
		return types.Sequence{
			types.StateAllOld,
			types.StateCanaryNew,
			types.StateHalfAndHalf,
			types.StateAllNew,
		}, nil
	case types.StateAllNew:
		return types.Sequence{
			types.StateAllNew,
			types.StateCanaryOld,
			types.StateHalfAndHalf,
			types.StateAllOld,
		}, nil
	default:
		return nil, &InvalidStartStateError{State: current}
	}
}
