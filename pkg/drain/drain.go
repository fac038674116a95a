package drain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/fleetroll/pkg/events"
	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config controls how agents are drained
type Config struct {
	// Parallelism is the number of agents stopped at the same time
	Parallelism int

	// Timeout bounds a single stop call; zero means no limit
	Timeout time.Duration

	// FailOnError turns any stop failure into an error for the whole drain
	FailOnError bool
}

// DefaultConfig stops agents one at a time and tolerates failures
func DefaultConfig() Config {
	return Config{
		Parallelism: 1,
		Timeout:     10 * time.Minute,
		FailOnError: false,
	}
}

// Report is the outcome of draining a destroy set
type Report struct {
	// Drained lists the agents stopped successfully, in request order
	Drained []string

	// Failed maps agents whose stop failed to the failure
	Failed map[string]error
}

// FailedAgents returns the names of the agents that failed to stop, sorted
func (r *Report) FailedAgents() []string {
	names := make([]string, 0, len(r.Failed))
	for name := range r.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DrainError is returned when FailOnError is set and agents failed to stop
type DrainError struct {
	Failed map[string]error
}

func (e *DrainError) Error() string {
	report := &Report{Failed: e.Failed}
	names := report.FailedAgents()
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failed[name])
	}
	return fmt.Sprintf("failed to drain %d agent(s): %s", len(names), strings.Join(parts, "; "))
}

// Coordinator stops agents that are about to be destroyed
type Coordinator struct {
	stopper Stopper
	config  Config
	events  events.Publisher
	logger  zerolog.Logger
}

// NewCoordinator creates a drain coordinator
func NewCoordinator(stopper Stopper, cfg Config) *Coordinator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Coordinator{
		stopper: stopper,
		config:  cfg,
		logger:  log.WithComponent("drain"),
	}
}

// WithEvents publishes one event per agent on p
func (c *Coordinator) WithEvents(p events.Publisher) *Coordinator {
	c.events = p
	return c
}

// WithLogger replaces the coordinator's logger
func (c *Coordinator) WithLogger(logger zerolog.Logger) *Coordinator {
	c.logger = logger
	return c
}

// Drain stops every agent and returns once all stop calls have finished.
// Agents are independent; one failure never prevents the others from being
// stopped. The returned error is the context error if ctx ended, or a
// *DrainError when FailOnError is set and any stop failed.
func (c *Coordinator) Drain(ctx context.Context, agents []string) (*Report, error) {
	report := &Report{Failed: make(map[string]error)}
	if len(agents) == 0 {
		return report, nil
	}

	c.logger.Info().
		Int("agents", len(agents)).
		Int("parallelism", c.config.Parallelism).
		Msg("Draining agents")

	var (
		mu      sync.Mutex
		stopped = make([]bool, len(agents))
	)

	g := new(errgroup.Group)
	g.SetLimit(c.config.Parallelism)

	for i, agent := range agents {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			err := c.stopOne(ctx, agent)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[agent] = err
			} else {
				stopped[i] = true
			}
			return nil
		})
	}
	_ = g.Wait()

	for i, agent := range agents {
		if stopped[i] {
			report.Drained = append(report.Drained, agent)
		}
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if len(report.Failed) > 0 && c.config.FailOnError {
		return report, &DrainError{Failed: report.Failed}
	}
	return report, nil
}

func (c *Coordinator) stopOne(ctx context.Context, agent string) error {
	logger := log.WithAgent(c.logger, agent)

	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	events.Emit(c.events, events.EventAgentDraining, "Stopping agent", map[string]string{"agent": agent})
	timer := metrics.NewTimer()

	if err := c.stopper.Stop(ctx, agent); err != nil {
		timer.ObserveDuration(metrics.DrainDuration)
		metrics.AgentsDrainedTotal.WithLabelValues("failure").Inc()
		logger.Warn().Err(err).Msg("Failed to stop agent, its resource will be destroyed anyway")
		events.Emit(c.events, events.EventAgentDrainFailed, err.Error(), map[string]string{"agent": agent})
		return err
	}

	timer.ObserveDuration(metrics.DrainDuration)
	metrics.AgentsDrainedTotal.WithLabelValues("success").Inc()
	logger.Info().Dur("duration", timer.Duration()).Msg("Stopped agent")
	events.Emit(c.events, events.EventAgentDrained, "Stopped agent", map[string]string{"agent": agent})
	return nil
}
