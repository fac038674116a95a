// Package telemetry sets up OpenTelemetry tracing for rollout runs. A run gets
// one span, each step a child span; exporters are none, stdout or otlp.
package telemetry
