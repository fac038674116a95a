package provisioner

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/cuemby/fleetroll/pkg/types"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planJSON = `{
  "format_version": "1.2",
  "resource_changes": [
    {
      "address": "random_string.bamboo_agent_blue[0]",
      "type": "random_string",
      "name": "bamboo_agent_blue",
      "change": {
        "actions": ["delete"],
        "before": {"id": "abc123", "length": 6},
        "after": null
      }
    },
    {
      "address": "aws_instance.bamboo_agent[\"abc123\"]",
      "type": "aws_instance",
      "name": "bamboo_agent",
      "change": {
        "actions": ["update"],
        "before": {"id": "i-1"},
        "after": {"id": "i-1"}
      }
    }
  ]
}`

func TestChangeSetFromPlan(t *testing.T) {
	var plan tfjson.Plan
	require.NoError(t, json.Unmarshal([]byte(planJSON), &plan))

	cs := ChangeSetFromPlan(&plan)
	require.Len(t, cs.Changes, 2)

	first := cs.Changes[0]
	assert.Equal(t, "random_string", first.Type)
	assert.Equal(t, "bamboo_agent_blue", first.Name)
	assert.Equal(t, types.Actions{types.ActionDelete}, first.Actions)
	assert.Equal(t, "abc123", first.Before["id"])
	assert.Nil(t, first.After)

	second := cs.Changes[1]
	assert.True(t, second.Actions.Contains(types.ActionUpdate))
	assert.Equal(t, "i-1", second.After["id"])
}

func TestChangeSetFromNilPlan(t *testing.T) {
	cs := ChangeSetFromPlan(nil)
	require.NotNil(t, cs)
	assert.Empty(t, cs.Changes)
}

func TestDecodeAgents(t *testing.T) {
	raw := json.RawMessage(`[
		{"name": "bamboo-agent-abc", "id": "abc", "ip": "10.0.0.4"},
		{"name": "bamboo-agent-7", "id": 7}
	]`)

	agents, err := DecodeAgents(raw)
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "abc", agents[0].ID)
	assert.Equal(t, "10.0.0.4", agents[0].Attributes["ip"])
	assert.Equal(t, "7", agents[1].ID)
	assert.Equal(t, []string{"bamboo-agent-abc", "bamboo-agent-7"}, agents.Names())
}

func TestDecodeAgentsErrors(t *testing.T) {
	_, err := DecodeAgents(json.RawMessage(`{"name": "x"}`))
	assert.Error(t, err)

	_, err = DecodeAgents(json.RawMessage(`[{"id": "x"}]`))
	assert.Error(t, err)

	agents, err := DecodeAgents(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestFleetAgents(t *testing.T) {
	outputs := map[string]json.RawMessage{
		"bamboo_agents": json.RawMessage(`[{"name": "bamboo-agent-a", "id": "a"}]`),
	}

	agents, err := FleetAgents(outputs, "bamboo_agents")
	require.NoError(t, err)
	assert.Len(t, agents, 1)

	_, err = FleetAgents(outputs, "missing")
	assert.Error(t, err)
}

func TestVarAssignmentsSorted(t *testing.T) {
	assignments := varAssignments(map[string]string{
		"rollout_state": "all_blue",
		"agent_count":   "4",
	})
	assert.Equal(t, []string{"agent_count=4", "rollout_state=all_blue"}, assignments)
	assert.Empty(t, varAssignments(nil))
}

func TestErrorCarriesOutput(t *testing.T) {
	cause := errors.New("exit status 1")
	err := fmt.Errorf("failed to roll out: %w", &Error{
		Op:         OpApply,
		WorkingDir: "/srv/agents",
		Stdout:     "Plan: 1 to add\n",
		Stderr:     "Error: quota exceeded\n",
		Err:        cause,
	})

	assert.True(t, IsOp(err, OpApply))
	assert.False(t, IsOp(err, OpPlan))
	assert.ErrorIs(t, err, cause)

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "terraform apply failed in /srv/agents: exit status 1", perr.Error())
	assert.Equal(t, "Plan: 1 to add\nError: quota exceeded\n", perr.Output())
}

func TestScalar(t *testing.T) {
	assert.Equal(t, "abc", Scalar("abc"))
	assert.Equal(t, "12", Scalar(float64(12)))
	assert.Equal(t, "4294967296123", Scalar(float64(4294967296123)))
	assert.Equal(t, "12345678901234567890", Scalar(json.Number("12345678901234567890")))
	assert.Equal(t, "true", Scalar(true))
	assert.Equal(t, "", Scalar(nil))
	assert.Equal(t, "", Scalar(map[string]interface{}{}))
}
