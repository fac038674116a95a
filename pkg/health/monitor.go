package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/rs/zerolog"
)

// Report is the verdict on a set of newly created agents
type Report struct {
	// Healthy is false when the agents must not be trusted
	Healthy bool

	// Ready and NotReady partition the evaluated agents by name
	Ready    []string
	NotReady []string

	Message string
}

// Monitor decides whether newly created agents are healthy enough to keep
type Monitor interface {
	// Evaluate blocks until a verdict is reached or timeout elapses, which
	// counts as unhealthy. The error is only set when ctx ends first.
	Evaluate(ctx context.Context, agents types.Agents, timeout time.Duration) (Report, error)
}

// StaticMonitor returns a fixed verdict without contacting any agent
type StaticMonitor struct {
	Healthy bool
}

// Evaluate returns the configured verdict
func (m *StaticMonitor) Evaluate(ctx context.Context, agents types.Agents, timeout time.Duration) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report := Report{Healthy: m.Healthy, Message: "static verdict"}
	if m.Healthy {
		report.Ready = agents.Names()
	} else {
		report.NotReady = agents.Names()
	}
	return report, nil
}

// PollingMonitor polls every new agent until all report ready
type PollingMonitor struct {
	factory CheckerFactory
	config  Config
	logger  zerolog.Logger
}

// NewPollingMonitor creates a monitor that builds checkers with factory
func NewPollingMonitor(factory CheckerFactory, cfg Config) *PollingMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	return &PollingMonitor{
		factory: factory,
		config:  cfg,
		logger:  log.WithComponent("health"),
	}
}

type agentCheck struct {
	agent   types.Agent
	checker Checker
	status  *Status
}

// Evaluate polls the agents every Interval after StartPeriod. The agents are
// healthy once all of them are ready at the same time.
func (m *PollingMonitor) Evaluate(ctx context.Context, agents types.Agents, timeout time.Duration) (Report, error) {
	if len(agents) == 0 {
		return Report{Healthy: true, Message: "no new agents to evaluate"}, nil
	}

	checks := make([]*agentCheck, 0, len(agents))
	for _, agent := range agents {
		checker, err := m.factory.Checker(agent)
		if err != nil {
			return Report{
				Healthy:  false,
				NotReady: agents.Names(),
				Message:  fmt.Sprintf("failed to build health check: %v", err),
			}, nil
		}
		checks = append(checks, &agentCheck{agent: agent, checker: checker, status: NewStatus()})
	}

	evalCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	m.logger.Info().
		Int("agents", len(agents)).
		Dur("timeout", timeout).
		Dur("interval", m.config.Interval).
		Msg("Waiting for new agents to become ready")

	if m.config.StartPeriod > 0 {
		select {
		case <-time.After(m.config.StartPeriod):
		case <-evalCtx.Done():
			return m.expired(ctx, checks)
		}
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		m.checkAll(evalCtx, checks)
		if evalCtx.Err() != nil {
			return m.expired(ctx, checks)
		}

		report := summarize(checks)
		if len(report.NotReady) == 0 {
			report.Healthy = true
			report.Message = fmt.Sprintf("all %d agents ready", len(report.Ready))
			return report, nil
		}

		m.logger.Debug().
			Strs("not_ready", report.NotReady).
			Msg("Agents not ready yet")

		select {
		case <-ticker.C:
		case <-evalCtx.Done():
			return m.expired(ctx, checks)
		}
	}
}

func (m *PollingMonitor) checkAll(ctx context.Context, checks []*agentCheck) {
	for _, c := range checks {
		checkCtx := ctx
		var cancel context.CancelFunc = func() {}
		if m.config.Timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		}
		result := c.checker.Check(checkCtx)
		cancel()

		if ctx.Err() != nil {
			// Results of checks cut short by the deadline say nothing about the agent
			return
		}

		wasHealthy := c.status.Healthy
		c.status.Update(result, m.config)

		logger := log.WithAgent(m.logger, c.agent.Name)
		switch {
		case c.status.Healthy && !wasHealthy:
			logger.Info().Str("result", result.Message).Msg("Agent ready")
		case !c.status.Healthy && wasHealthy:
			logger.Warn().Str("result", result.Message).Msg("Agent no longer ready")
		}
	}
}

// expired builds the verdict once the evaluation context ended. A cancelled
// parent context is an abort, not a verdict.
func (m *PollingMonitor) expired(parent context.Context, checks []*agentCheck) (Report, error) {
	if err := parent.Err(); err != nil {
		return Report{}, err
	}

	report := summarize(checks)
	report.Healthy = false

	reasons := make([]string, 0, len(report.NotReady))
	for _, c := range checks {
		if !c.status.Healthy {
			reason := c.status.LastResult.Message
			if reason == "" {
				reason = "never checked"
			}
			reasons = append(reasons, fmt.Sprintf("%s: %s", c.agent.Name, reason))
		}
	}
	report.Message = fmt.Sprintf("timed out waiting for %d agent(s): %s",
		len(report.NotReady), strings.Join(reasons, "; "))
	return report, nil
}

func summarize(checks []*agentCheck) Report {
	var report Report
	for _, c := range checks {
		if c.status.Healthy {
			report.Ready = append(report.Ready, c.agent.Name)
		} else {
			report.NotReady = append(report.NotReady, c.agent.Name)
		}
	}
	sort.Strings(report.Ready)
	sort.Strings(report.NotReady)
	return report
}
