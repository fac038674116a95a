package rollout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/fleetroll/pkg/drain"
	"github.com/cuemby/fleetroll/pkg/events"
	"github.com/cuemby/fleetroll/pkg/health"
	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/metrics"
	"github.com/cuemby/fleetroll/pkg/provisioner"
	"github.com/cuemby/fleetroll/pkg/storage"
	"github.com/cuemby/fleetroll/pkg/telemetry"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Provisioner executes the infrastructure changes of a rollout
type Provisioner interface {
	Planner
	Show(ctx context.Context, planFile string) (*types.ChangeSet, error)
	Apply(ctx context.Context, planFile string) error
	ApplyVars(ctx context.Context, vars map[string]string) error
	Output(ctx context.Context) (map[string]json.RawMessage, error)
}

// Drainer stops agents before their resources are destroyed
type Drainer interface {
	Drain(ctx context.Context, agents []string) (*drain.Report, error)
}

// Journal records the step a run is executing
type Journal interface {
	Record(entry storage.InFlight) error
	Clear() error
}

// Config holds the rollout settings of one fleet
type Config struct {
	// StateVariable is the Terraform variable selecting the rollout state
	StateVariable string

	// FleetOutput is the Terraform output listing the running agents
	FleetOutput string

	// PlanFile is where step plans are saved, relative to the working directory
	PlanFile string

	// HealthTimeout is the budget for new agents to become ready after each step
	HealthTimeout time.Duration

	StateValues types.StateValues
}

// DefaultConfig returns the settings of the blue/green agent fleet module
func DefaultConfig() Config {
	return Config{
		StateVariable: "rollout_state",
		FleetOutput:   "bamboo_agents",
		PlanFile:      "plan.out",
		HealthTimeout: 2 * time.Hour,
		StateValues:   types.DefaultStateValues(),
	}
}

// Result describes a finished run
type Result struct {
	RunID  string
	From   types.RolloutState
	Target types.RolloutState
	Mode   types.Mode
	Steps  []types.StepResult

	// Rollback is true when the rollback target was applied
	Rollback bool
}

// Orchestrator walks a rollout sequence step by step
type Orchestrator struct {
	provisioner Provisioner
	drainer     Drainer
	selector    drain.Selector
	monitor     health.Monitor
	config      Config

	events  events.Publisher
	journal Journal
	tracer  *telemetry.Tracer
	logger  zerolog.Logger
}

// NewOrchestrator creates an orchestrator. Events, journal and tracer are
// optional and set with the With methods.
func NewOrchestrator(p Provisioner, drainer Drainer, selector drain.Selector, monitor health.Monitor, cfg Config) *Orchestrator {
	defaults := DefaultConfig()
	if cfg.StateVariable == "" {
		cfg.StateVariable = defaults.StateVariable
	}
	if cfg.FleetOutput == "" {
		cfg.FleetOutput = defaults.FleetOutput
	}
	if cfg.PlanFile == "" {
		cfg.PlanFile = defaults.PlanFile
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = defaults.HealthTimeout
	}

	return &Orchestrator{
		provisioner: p,
		drainer:     drainer,
		selector:    selector,
		monitor:     monitor,
		config:      cfg,
		tracer:      telemetry.NoopTracer(),
		logger:      log.WithComponent("rollout"),
	}
}

// WithEvents publishes rollout events on p
func (o *Orchestrator) WithEvents(p events.Publisher) *Orchestrator {
	o.events = p
	return o
}

// WithJournal records in-flight steps in j
func (o *Orchestrator) WithJournal(j Journal) *Orchestrator {
	o.journal = j
	return o
}

// WithTracer records spans with t
func (o *Orchestrator) WithTracer(t *telemetry.Tracer) *Orchestrator {
	if t != nil {
		o.tracer = t
	}
	return o
}

// Run applies every state of seq after the first. On a malfunction the first
// state is applied again directly and a *MalfunctionError is returned along
// with the result. Provisioner failures abort the run without rollback.
func (o *Orchestrator) Run(ctx context.Context, seq types.Sequence) (*Result, error) {
	if len(seq) == 0 {
		return nil, fmt.Errorf("empty rollout sequence")
	}

	result := &Result{
		RunID:  uuid.New().String(),
		From:   seq.RollbackTarget(),
		Target: seq.Target(),
		Mode:   types.ModeRunning,
	}
	if len(seq.Steps()) == 0 {
		result.Mode = types.ModeCompleted
		return result, nil
	}

	logger := log.WithRunID(o.logger, result.RunID)
	ctx, span := o.tracer.StartRunSpan(ctx, result.RunID, result.From.String(), result.Target.String())
	defer span.End()

	timer := metrics.NewTimer()
	logger.Info().
		Str("from", result.From.String()).
		Str("target", result.Target.String()).
		Str("sequence", seq.String()).
		Msg("Starting rollout")
	o.emit(events.EventRolloutStarted, "Starting rollout "+seq.String(), result, nil)

	err := o.run(ctx, seq, result, logger)

	timer.ObserveDuration(metrics.RolloutDuration)
	metrics.RolloutsTotal.WithLabelValues(string(result.Mode)).Inc()
	span.SetAttributes(telemetry.AttrMode.String(string(result.Mode)))

	switch result.Mode {
	case types.ModeCompleted:
		telemetry.RecordSuccess(span)
		o.clearJournal(logger)
		logger.Info().Dur("duration", timer.Duration()).Msg("Rollout completed")
		o.emit(events.EventRolloutCompleted, "Rollout completed", result, nil)
	case types.ModeRolledBack:
		telemetry.RecordError(span, err)
		o.clearJournal(logger)
		logger.Warn().Err(err).Msg("Rollout rolled back")
		o.emit(events.EventRolloutFailed, err.Error(), result, nil)
	default:
		telemetry.RecordError(span, err)
		logger.Error().Err(err).Msg("Rollout failed")
		o.emit(events.EventRolloutFailed, err.Error(), result, nil)
	}
	return result, err
}

func (o *Orchestrator) run(ctx context.Context, seq types.Sequence, result *Result, logger zerolog.Logger) error {
	steps := seq.Steps()
	for i, state := range steps {
		step, malfunction, err := o.step(ctx, result, state, i+1, len(steps))
		result.Steps = append(result.Steps, step)
		if err != nil {
			result.Mode = types.ModeFailed
			return err
		}
		if malfunction != nil {
			return o.rollback(ctx, result, malfunction, logger)
		}
	}
	result.Mode = types.ModeCompleted
	return nil
}

// step runs the protocol for one state: read agents, plan, show, drain the
// destroy set, apply, read agents again and evaluate the new ones. A non-nil
// *MalfunctionError means the new agents were unhealthy.
func (o *Orchestrator) step(ctx context.Context, result *Result, state types.RolloutState, index, total int) (types.StepResult, *MalfunctionError, error) {
	step := types.StepResult{State: state}
	start := time.Now()
	labels := map[string]string{"state": state.String()}

	logger := log.WithState(log.WithRunID(o.logger, result.RunID), state.String())
	ctx, span := o.tracer.StartStepSpan(ctx, state.String(), index)
	defer span.End()

	outcome := "failure"
	defer func() {
		metrics.StepsTotal.WithLabelValues(state.String(), outcome).Inc()
		metrics.StepDuration.WithLabelValues(state.String()).Observe(time.Since(start).Seconds())
	}()

	fail := func(err error) (types.StepResult, *MalfunctionError, error) {
		telemetry.RecordError(span, err)
		step.Duration = time.Since(start)
		return step, nil, err
	}

	logger.Info().Str("step", fmt.Sprintf("%d/%d", index, total)).Msgf("Rolling out %s", state)
	o.emit(events.EventStepStarted, "Rolling out "+state.String(), result, labels)

	if o.journal != nil {
		err := o.journal.Record(storage.InFlight{
			RunID:     result.RunID,
			From:      result.From,
			Target:    result.Target,
			Step:      state,
			StartedAt: start,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to record step in journal: %w", err))
		}
	}

	before, err := o.agents(ctx)
	if err != nil {
		return fail(err)
	}

	if _, err := o.provisioner.Plan(ctx, o.vars(state), o.config.PlanFile); err != nil {
		return fail(err)
	}

	changes, err := o.provisioner.Show(ctx, o.config.PlanFile)
	if err != nil {
		return fail(err)
	}

	// Agents must be stopped before apply destroys their resources
	if doomed := o.selector.PendingDestruction(changes); len(doomed) > 0 {
		report, err := o.drainer.Drain(ctx, doomed)
		if report != nil {
			step.Drained = report.Drained
			step.DrainFailed = report.FailedAgents()
		}
		if err != nil {
			return fail(err)
		}
	}
	span.SetAttributes(telemetry.AttrDrained.Int(len(step.Drained)))

	if err := o.provisioner.Apply(ctx, o.config.PlanFile); err != nil {
		return fail(err)
	}
	metrics.SetCurrentState(state.String(), stateNames())
	o.emit(events.EventStepApplied, "Applied "+state.String(), result, labels)

	after, err := o.agents(ctx)
	if err != nil {
		return fail(err)
	}
	step.NewAgents = after.Difference(before)
	metrics.NewAgentsTotal.Add(float64(len(step.NewAgents)))
	span.SetAttributes(telemetry.AttrNewAgents.Int(len(step.NewAgents)))

	logger.Info().Strs("new_agents", step.NewAgents.Names()).Msg("New agents")
	if len(step.NewAgents) > 0 {
		o.emit(events.EventAgentsCreated, "New agents created", result, map[string]string{
			"state":  state.String(),
			"agents": strings.Join(step.NewAgents.Names(), ","),
			"count":  strconv.Itoa(len(step.NewAgents)),
		})
	}

	healthTimer := metrics.NewTimer()
	report, err := o.monitor.Evaluate(ctx, step.NewAgents, o.config.HealthTimeout)
	if err != nil {
		healthTimer.ObserveDurationVec(metrics.HealthEvaluationDuration, "aborted")
		return fail(fmt.Errorf("health evaluation after %s aborted: %w", state, err))
	}
	step.Healthy = report.Healthy
	step.Duration = time.Since(start)
	span.SetAttributes(telemetry.AttrHealthy.Bool(report.Healthy))

	if !report.Healthy {
		healthTimer.ObserveDurationVec(metrics.HealthEvaluationDuration, "unhealthy")
		outcome = "unhealthy"
		logger.Warn().
			Strs("not_ready", report.NotReady).
			Str("reason", report.Message).
			Msg("New agents seem to malfunction, rolling back")
		o.emit(events.EventStepUnhealthy, report.Message, result, map[string]string{
			"state":     state.String(),
			"not_ready": strings.Join(report.NotReady, ","),
		})

		malfunction := &MalfunctionError{
			State:  state,
			Agents: report.NotReady,
			Target: result.From,
			Reason: report.Message,
		}
		telemetry.RecordError(span, malfunction)
		return step, malfunction, nil
	}

	healthTimer.ObserveDurationVec(metrics.HealthEvaluationDuration, "healthy")
	outcome = "success"
	logger.Info().Str("result", report.Message).Msg("New agents healthy")
	o.emit(events.EventStepHealthy, report.Message, result, labels)
	telemetry.RecordSuccess(span)
	return step, nil, nil
}

// rollback applies the rollback target in a single call. There is no reverse
// walk through the intermediate states and no retry.
func (o *Orchestrator) rollback(ctx context.Context, result *Result, malfunction *MalfunctionError, logger zerolog.Logger) error {
	target := result.From
	labels := map[string]string{"state": malfunction.State.String(), "target": target.String()}

	ctx, span := o.tracer.StartSpan(ctx, "rollout.rollback", telemetry.AttrTargetState.String(target.String()))
	defer span.End()

	logger.Warn().Str("target", target.String()).Msg("Rolling back")
	o.emit(events.EventRollbackStarted, "Rolling back to "+target.String(), result, labels)
	result.Rollback = true

	if err := o.provisioner.ApplyVars(ctx, o.vars(target)); err != nil {
		metrics.RollbacksTotal.WithLabelValues("failure").Inc()
		telemetry.RecordError(span, err)
		o.emit(events.EventRollbackFailed, err.Error(), result, labels)
		result.Mode = types.ModeFailed
		return &RollbackFailedError{State: malfunction.State, Target: target, Err: err}
	}

	metrics.RollbacksTotal.WithLabelValues("success").Inc()
	metrics.SetCurrentState(target.String(), stateNames())
	telemetry.RecordSuccess(span)
	o.emit(events.EventRollbackCompleted, "Rolled back to "+target.String(), result, labels)
	result.Mode = types.ModeRolledBack
	return malfunction
}

// agents reads the running fleet from the provisioner outputs
func (o *Orchestrator) agents(ctx context.Context) (types.Agents, error) {
	outputs, err := o.provisioner.Output(ctx)
	if err != nil {
		return nil, err
	}
	agents, err := provisioner.FleetAgents(outputs, o.config.FleetOutput)
	if err != nil {
		return nil, fmt.Errorf("failed to read running agents: %w", err)
	}
	return agents, nil
}

func (o *Orchestrator) vars(state types.RolloutState) map[string]string {
	return map[string]string{o.config.StateVariable: o.config.StateValues.Value(state)}
}

func (o *Orchestrator) clearJournal(logger zerolog.Logger) {
	if o.journal == nil {
		return
	}
	if err := o.journal.Clear(); err != nil {
		logger.Warn().Err(err).Msg("Failed to clear journal")
	}
}

func (o *Orchestrator) emit(eventType events.EventType, message string, result *Result, metadata map[string]string) {
	if o.events == nil {
		return
	}
	md := map[string]string{"run_id": result.RunID}
	for k, v := range metadata {
		md[k] = v
	}
	events.Emit(o.events, eventType, message, md)
}

func stateNames() []string {
	names := make([]string, len(types.AllStates))
	for i, state := range types.AllStates {
		names[i] = state.String()
	}
	return names
}

// IsRollback reports whether err means the rollback target was applied
func IsRollback(err error) bool {
	return errors.Is(err, ErrMalfunctionDetected)
}
