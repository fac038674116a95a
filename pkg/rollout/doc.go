/*
Package rollout implements the blue/green rollout state machine.

A fleet rests in one of two terminal states, ALL_OLD or ALL_NEW. The Resolver
finds out which by planning against each with no saved plan: the state whose
plan shows no changes is the current one. PlanSequence turns that state into
the fixed path of the run:

	ALL_OLD -> CANARY_NEW -> HALF_AND_HALF -> ALL_NEW
	ALL_NEW -> CANARY_OLD -> HALF_AND_HALF -> ALL_OLD

The first element is never applied. It is the rollback target of the run.

# Steps

For every following state the Orchestrator runs, strictly in order:

 1. read the running agents from the fleet output
 2. plan the state into the plan file
 3. show the plan as a change set
 4. drain the agents whose resources the plan destroys
 5. apply the plan
 6. read the running agents again; new agents are the difference
 7. evaluate the new agents with the health monitor

A failing provisioner call aborts the run at once and leaves the fleet where it
is, without rollback. Unhealthy new agents trigger a single apply of the
rollback target, after which Run returns a *MalfunctionError. If that apply
fails too, Run returns a *RollbackFailedError and nothing else is attempted.
*/
package rollout
