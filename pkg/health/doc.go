/*
Package health decides whether freshly provisioned agents can be trusted.

After each rollout step the orchestrator hands the set of agents that did not
exist before the step to a Monitor. The monitor answers with a Report: healthy
when every new agent became ready within the deadline, unhealthy otherwise.
An unhealthy report triggers the rollback.

# Checkers

Readiness of a single agent is probed by a Checker:

	HTTPChecker  GET a URL, accept a status range and optionally a body substring
	TCPChecker   dial host:port
	ExecChecker  run a command, ready on exit 0

A CheckerFactory builds one checker per agent. TemplateFactory renders its
target templates against the agent, so a single configuration covers the
whole fleet:

	factory := &health.TemplateFactory{
		Type:   health.CheckTypeHTTP,
		Target: `http://{{index .Attributes "private_ip"}}:8085/status`,
	}

# Polling

PollingMonitor waits StartPeriod, then runs every checker each Interval. An
agent becomes ready after SuccessThreshold consecutive successes and drops back
after Retries consecutive failures. Evaluation ends healthy as soon as all
agents are ready at once, and unhealthy when the timeout passes first.

Cancelling the caller's context aborts Evaluate with the context error rather
than a verdict, so a user interrupt never looks like a malfunction.

StaticMonitor returns a fixed verdict and is used when health checking is
disabled.
*/
package health
