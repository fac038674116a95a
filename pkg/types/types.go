package types

import (
	"fmt"
	"strings"
	"time"
)

// RolloutState is a position on the axis between the two fleet colors
type RolloutState int

const (
	StateAllOld RolloutState = iota
	StateCanaryNew
	StateHalfAndHalf
	StateCanaryOld
	StateAllNew
)

// AllStates lists every rollout state in axis order
var AllStates = []RolloutState{
	StateAllOld,
	StateCanaryNew,
	StateHalfAndHalf,
	StateCanaryOld,
	StateAllNew,
}

var stateNames = map[RolloutState]string{
	StateAllOld:      "ALL_OLD",
	StateCanaryNew:   "CANARY_NEW",
	StateHalfAndHalf: "HALF_AND_HALF",
	StateCanaryOld:   "CANARY_OLD",
	StateAllNew:      "ALL_NEW",
}

// Blue/green names used by the bamboo fleet module
var colorAliases = map[string]RolloutState{
	"ALL_BLUE":     StateAllOld,
	"CANARY_GREEN": StateCanaryNew,
	"CANARY_BLUE":  StateCanaryOld,
	"ALL_GREEN":    StateAllNew,
}

func (s RolloutState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("RolloutState(%d)", int(s))
}

// IsTerminal reports whether the state is a homogeneous fleet (all old or all new)
func (s RolloutState) IsTerminal() bool {
	return s == StateAllOld || s == StateAllNew
}

// Valid reports whether s is one of the known states
func (s RolloutState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// ParseRolloutState parses a state name. Both ALL_OLD style names and the
// ALL_BLUE style color names are accepted, case-insensitively.
func ParseRolloutState(name string) (RolloutState, error) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	for state, n := range stateNames {
		if n == key {
			return state, nil
		}
	}
	if state, ok := colorAliases[key]; ok {
		return state, nil
	}
	return 0, fmt.Errorf("unknown rollout state %q", name)
}

// MarshalText encodes the state by name
func (s RolloutState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid rollout state %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts any name ParseRolloutState does
func (s *RolloutState) UnmarshalText(text []byte) error {
	state, err := ParseRolloutState(string(text))
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// StateValues maps each rollout state to the value of the Terraform variable
// that selects it
type StateValues map[RolloutState]string

// DefaultStateValues returns the values understood by the blue/green fleet module
func DefaultStateValues() StateValues {
	return StateValues{
		StateAllOld:      "all_blue",
		StateCanaryNew:   "canary_green",
		StateHalfAndHalf: "half_and_half",
		StateCanaryOld:   "canary_blue",
		StateAllNew:      "all_green",
	}
}

// Value returns the variable value for a state, falling back to the defaults
func (v StateValues) Value(state RolloutState) string {
	if value, ok := v[state]; ok && value != "" {
		return value
	}
	return DefaultStateValues()[state]
}

// Validate checks that every state has a distinct, non-empty value
func (v StateValues) Validate() error {
	seen := make(map[string]RolloutState)
	for _, state := range AllStates {
		value := v.Value(state)
		if value == "" {
			return fmt.Errorf("no value for state %s", state)
		}
		if other, dup := seen[value]; dup {
			return fmt.Errorf("states %s and %s share value %q", other, state, value)
		}
		seen[value] = state
	}
	return nil
}

// Sequence is the ordered list of states a rollout passes through.
// Element 0 is the starting terminal state and the rollback target.
type Sequence []RolloutState

// RollbackTarget returns the state to revert to when new agents malfunction
func (s Sequence) RollbackTarget() RolloutState {
	return s[0]
}

// Steps returns the states that are actually applied
func (s Sequence) Steps() []RolloutState {
	if len(s) == 0 {
		return nil
	}
	return s[1:]
}

// Target returns the final state of the sequence
func (s Sequence) Target() RolloutState {
	return s[len(s)-1]
}

func (s Sequence) String() string {
	names := make([]string, len(s))
	for i, state := range s {
		names[i] = state.String()
	}
	return strings.Join(names, " -> ")
}

// Mode is the orchestrator-level state of a rollout run
type Mode string

const (
	ModeRunning    Mode = "running"
	ModeCompleted  Mode = "completed"
	ModeRolledBack Mode = "rolled_back"
	ModeFailed     Mode = "failed"
)

// Agent is a running fleet member as reported by the provisioner output
type Agent struct {
	ID         string
	Name       string
	Attributes map[string]interface{}
}

// Agents is a list of fleet members
type Agents []Agent

// Names returns the agent names in order
func (a Agents) Names() []string {
	names := make([]string, len(a))
	for i, agent := range a {
		names[i] = agent.Name
	}
	return names
}

// Difference returns the agents of a whose name does not appear in before
func (a Agents) Difference(before Agents) Agents {
	known := make(map[string]bool, len(before))
	for _, agent := range before {
		known[agent.Name] = true
	}

	var added Agents
	for _, agent := range a {
		if !known[agent.Name] {
			added = append(added, agent)
		}
	}
	return added
}

// Action is a planned change on a resource
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionNoop   Action = "no-op"
)

// Actions is the set of planned actions for one resource
type Actions []Action

// Contains reports whether the action set holds action
func (a Actions) Contains(action Action) bool {
	for _, candidate := range a {
		if candidate == action {
			return true
		}
	}
	return false
}

// ResourceChange is one record of a plan's change set
type ResourceChange struct {
	Address string
	Type    string
	Name    string
	Actions Actions
	Before  map[string]interface{}
	After   map[string]interface{}
}

// ChangeSet is the structured diff produced by a plan
type ChangeSet struct {
	Changes []ResourceChange
}

// StepResult records what happened while applying one rollout state
type StepResult struct {
	State       RolloutState
	Drained     []string
	DrainFailed []string
	NewAgents   Agents
	Healthy     bool
	Duration    time.Duration
}
