package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// Rollout metrics
	RolloutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetroll_rollouts_total",
			Help: "Total number of rollout runs by result",
		},
		[]string{"result"},
	)

	RolloutDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetroll_rollout_duration_seconds",
			Help:    "Duration of a full rollout run in seconds",
			Buckets: prometheus.ExponentialBuckets(30, 2, 10),
		},
	)

	StepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetroll_steps_total",
			Help: "Total number of rollout steps by target state and result",
		},
		[]string{"state", "result"},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetroll_step_duration_seconds",
			Help:    "Duration of a rollout step in seconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 12),
		},
		[]string{"state"},
	)

	CurrentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleetroll_current_state",
			Help: "Last state applied to the fleet (1 for the current state, 0 otherwise)",
		},
		[]string{"state"},
	)

	RollbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetroll_rollbacks_total",
			Help: "Total number of rollbacks by result",
		},
		[]string{"result"},
	)

	// Agent metrics
	AgentsDrainedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetroll_agents_drained_total",
			Help: "Total number of agent drain attempts by result",
		},
		[]string{"result"},
	)

	DrainDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fleetroll_drain_duration_seconds",
			Help:    "Time taken to stop a single agent in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	NewAgentsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fleetroll_new_agents_total",
			Help: "Total number of agents created by rollout steps",
		},
	)

	HealthEvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetroll_health_evaluation_duration_seconds",
			Help:    "Time taken to evaluate new agents in seconds by verdict",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"verdict"},
	)

	// Provisioner metrics
	ProvisionerCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fleetroll_provisioner_calls_total",
			Help: "Total number of provisioner calls by operation and status",
		},
		[]string{"op", "status"},
	)

	ProvisionerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fleetroll_provisioner_call_duration_seconds",
			Help:    "Provisioner call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"op"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(RolloutsTotal)
	prometheus.MustRegister(RolloutDuration)
	prometheus.MustRegister(StepsTotal)
	prometheus.MustRegister(StepDuration)
	prometheus.MustRegister(CurrentState)
	prometheus.MustRegister(RollbacksTotal)
	prometheus.MustRegister(AgentsDrainedTotal)
	prometheus.MustRegister(DrainDuration)
	prometheus.MustRegister(NewAgentsTotal)
	prometheus.MustRegister(HealthEvaluationDuration)
	prometheus.MustRegister(ProvisionerCallsTotal)
	prometheus.MustRegister(ProvisionerCallDuration)
}

// SetCurrentState marks state as the one last applied
func SetCurrentState(state string, all []string) {
	for _, s := range all {
		CurrentState.WithLabelValues(s).Set(0)
	}
	CurrentState.WithLabelValues(state).Set(1)
}

// WriteTextfile writes all registered metrics in the text exposition format,
// suitable for the node exporter textfile collector
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Push sends all registered metrics to a Pushgateway under the given job
func Push(url, job string) error {
	if err := push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push(); err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}
