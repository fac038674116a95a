/*
Package types defines the core data structures used throughout fleetroll.

The types in this package describe a blue/green fleet rollout: the rollout
states, the agents reported by the provisioner, and the change sets produced
by a plan. They carry no behaviour beyond small helpers and are shared by the
provisioner, drain, health and rollout packages.

# Rollout States

A rollout moves a fleet along a one-dimensional axis between two colors:

	ALL_OLD ── CANARY_NEW ── HALF_AND_HALF ── CANARY_OLD ── ALL_NEW

Only ALL_OLD and ALL_NEW are terminal. A rollout always starts and ends on a
terminal state and passes exactly one canary step and the half/half step on
the way:

	from ALL_OLD: ALL_OLD → CANARY_NEW → HALF_AND_HALF → ALL_NEW
	from ALL_NEW: ALL_NEW → CANARY_OLD → HALF_AND_HALF → ALL_OLD

The fleet module selects a state through a single Terraform variable.
StateValues maps each state to the value of that variable; the defaults use
the color names of the bamboo agent module (all_blue, canary_green, ...).

# Sequences

A Sequence is the ordered list of states for one run. Element 0 is never
applied. It is kept so the orchestrator knows where to roll back to:

	seq := types.Sequence{types.StateAllOld, types.StateCanaryNew, types.StateHalfAndHalf, types.StateAllNew}
	seq.RollbackTarget() // ALL_OLD
	seq.Steps()          // [CANARY_NEW HALF_AND_HALF ALL_NEW]

# Agents

Agents are read from the fleet output before and after every apply. New
agents are the set difference by name:

	added := after.Difference(before)

# Change Sets

ChangeSet is a provider-neutral copy of the plan's resource_changes. Only
records whose actions contain "delete" and whose type is the agent identity
resource denote agents about to be destroyed; the drain package applies that
filter.
*/
package types
