/*
Package drain stops fleet agents before the resources backing them are destroyed.

Destroying an agent's resource while it still runs a job loses that job. Each
rollout step therefore asks the drain package two things, strictly before the
step's apply:

 1. Selector.PendingDestruction: which agents does this plan destroy? A change
    record denotes an agent when its type is the agent identity resource
    (random_string for the bamboo module), its name carries the configured
    prefix and its actions contain "delete". The agent name is
    "<agent prefix>-<before.id>".
 2. Coordinator.Drain: stop those agents and wait until every stop call has
    returned.

Stops run on a bounded worker pool. Agents have no ordering requirement
between each other, so one failing stop never holds up the rest. A failed
stop is logged as a warning and recorded in the Report; it only aborts the
step when Config.FailOnError is set, because the resource is destroyed either
way.

Three Stopper implementations cover the usual agent setups:

	LogStopper   audit line only
	ExecStopper  ["ssh", "{{.Name}}", "sudo", "systemctl", "stop", "bamboo-agent"]
	HTTPStopper  POST https://bamboo.example.com/rest/agents/{{.Name}}/disable
*/
package drain
