package rollout

import (
	"errors"
	"testing"

	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanSequence(t *testing.T) {
	tests := []struct {
		current  types.RolloutState
		expected types.Sequence
		canary   types.RolloutState
		target   types.RolloutState
	}{
		{
			current:  types.StateAllOld,
			expected: types.Sequence{types.StateAllOld, types.StateCanaryNew, types.StateHalfAndHalf, types.StateAllNew},
			canary:   types.StateCanaryNew,
			target:   types.StateAllNew,
		},
		{
			current:  types.StateAllNew,
			expected: types.Sequence{types.StateAllNew, types.StateCanaryOld, types.StateHalfAndHalf, types.StateAllOld},
			canary:   types.StateCanaryOld,
			target:   types.StateAllOld,
		},
	}

	for _, tt := range tests {
		t.Run(tt.current.String(), func(t *testing.T) {
			seq, err := PlanSequence(tt.current)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, seq)

			require.Len(t, seq, 4)
			assert.Equal(t, tt.current, seq.RollbackTarget())
			assert.Equal(t, tt.target, seq.Target())
			assert.True(t, seq[0].IsTerminal())
			assert.True(t, seq[3].IsTerminal())
			assert.Equal(t, tt.canary, seq[1])
			assert.Equal(t, types.StateHalfAndHalf, seq[2])
			assert.Equal(t, []types.RolloutState{tt.canary, types.StateHalfAndHalf, tt.target}, seq.Steps())
		})
	}
}

func TestPlanSequenceInvalidStart(t *testing.T) {
	for _, state := range []types.RolloutState{
		types.StateHalfAndHalf,
		types.StateCanaryNew,
		types.StateCanaryOld,
		types.RolloutState(17),
	} {
		t.Run(state.String(), func(t *testing.T) {
			seq, err := PlanSequence(state)
			assert.Nil(t, seq)

			var invalid *InvalidStartStateError
			require.True(t, errors.As(err, &invalid))
			assert.Equal(t, state, invalid.State)
			assert.Contains(t, err.Error(), state.String())
		})
	}
}
