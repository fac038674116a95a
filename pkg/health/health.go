package health

import (
	"context"
	"time"
)

// CheckType names a kind of readiness probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
	CheckTypeNone CheckType = "none"
)

// Result is the outcome of probing one agent once
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker probes the readiness of one agent
type Checker interface {
	Check(ctx context.Context) Result
	Type() CheckType
}

// Config controls how often agents are probed and how results add up
type Config struct {
	// Interval between two probe rounds
	Interval time.Duration

	// Timeout bounds a single probe
	Timeout time.Duration

	// Retries is how many failures in a row turn a ready agent back to not ready
	Retries int

	// SuccessThreshold is how many successes in a row make an agent ready
	SuccessThreshold int

	// StartPeriod delays the first round so agents can boot and register
	StartPeriod time.Duration
}

// DefaultConfig probes every 30s and trusts the first success
func DefaultConfig() Config {
	return Config{
		Interval:         30 * time.Second,
		Timeout:          10 * time.Second,
		Retries:          3,
		SuccessThreshold: 1,
	}
}

// Status accumulates probe results for one agent
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastResult           Result

	// Healthy is true once the agent counts as ready
	Healthy bool

	StartedAt time.Time
}

// NewStatus returns the status of an agent that has not been probed yet.
// New agents start out not ready.
func NewStatus() *Status {
	return &Status{StartedAt: time.Now()}
}

// Update folds one probe result into the status
func (s *Status) Update(result Result, cfg Config) {
	s.LastResult = result

	if !result.Healthy {
		s.ConsecutiveSuccesses = 0
		s.ConsecutiveFailures++
		if s.ConsecutiveFailures >= cfg.Retries {
			s.Healthy = false
		}
		return
	}

	s.ConsecutiveFailures = 0
	s.ConsecutiveSuccesses++
	if s.ConsecutiveSuccesses >= max(cfg.SuccessThreshold, 1) {
		s.Healthy = true
	}
}

// InStartPeriod reports whether the agent is still within its boot grace period
func (s *Status) InStartPeriod(cfg Config) bool {
	return cfg.StartPeriod > 0 && time.Since(s.StartedAt) < cfg.StartPeriod
}
