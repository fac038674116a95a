/*
Package metrics provides Prometheus metrics for fleetroll rollouts.

All collectors are package-level variables registered with the default
registry at init. A rollout is a short-lived batch job rather than a scraped
service, so metrics are exported at the end of a run instead of over HTTP:

  - WriteTextfile writes the text exposition format for the node exporter
    textfile collector (`--metrics-file`)
  - Push sends the registry to a Pushgateway (`metrics.pushgateway_url`)

# Metrics

Rollout:

	fleetroll_rollouts_total{result}              completed, rolled_back, failed
	fleetroll_rollout_duration_seconds
	fleetroll_steps_total{state,result}           healthy, unhealthy, failed
	fleetroll_step_duration_seconds{state}
	fleetroll_current_state{state}                1 for the last applied state
	fleetroll_rollbacks_total{result}             success, failure

Agents:

	fleetroll_agents_drained_total{result}        success, failure
	fleetroll_drain_duration_seconds
	fleetroll_new_agents_total
	fleetroll_health_evaluation_duration_seconds{verdict}

Provisioner:

	fleetroll_provisioner_calls_total{op,status}
	fleetroll_provisioner_call_duration_seconds{op}

# Timing

Timer wraps the common start/observe pattern:

	timer := metrics.NewTimer()
	err := tf.Apply(ctx, planFile)
	timer.ObserveDurationVec(metrics.ProvisionerCallDuration, "apply")
*/
package metrics
