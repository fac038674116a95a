package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cuemby/fleetroll/pkg/drain"
	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/rollout"
	"github.com/cuemby/fleetroll/pkg/storage"
	"github.com/cuemby/fleetroll/pkg/telemetry"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/spf13/cobra"
)

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Roll the fleet over to the other color",
	Long: `Roll the fleet over to the other color.

The module is first planned with its default variables. Without changes the
fleet is already at the desired state and nothing is done. Otherwise the
current color is resolved and every intermediate state is applied in turn.

Exit codes:
  0  rollout completed, or nothing to do
  1  new agents malfunctioned and the fleet was rolled back
  2  fatal error, the fleet was left where it was
  3  new agents malfunctioned and the rollback failed

Examples:
  # Roll out the module in the current directory
  fleetroll rollout

  # Roll out without health checks; a malfunction will not be detected
  fleetroll rollout --skip-health

  # Use a config file and give new agents 30 minutes to register
  fleetroll rollout -c fleetroll.yaml --health-timeout 30m`,
	RunE: runRollout,
}

func init() {
	rolloutCmd.Flags().Bool("force", false, "Start even if a previous rollout did not finish")
	rolloutCmd.Flags().Bool("skip-health", false, "Run with health.type none, treating every new agent as healthy")
	rolloutCmd.Flags().Duration("health-timeout", 2*time.Hour, "Time new agents get to become ready after each step")
	rolloutCmd.Flags().String("metrics-file", "", "Write Prometheus metrics to this file when the run ends")
	rolloutCmd.Flags().String("events-file", "", "Append rollout events as JSON lines to this file")

	rootCmd.AddCommand(rolloutCmd)
}

func runRollout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	force, _ := cmd.Flags().GetBool("force")
	skipHealth, _ := cmd.Flags().GetBool("skip-health")
	if err := requireHealthCheck(cfg, skipHealth); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := storage.Open(cfg.JournalPath(), cfg.Journal.LockTimeout.Std())
	if err != nil {
		return err
	}
	defer journal.Close()

	if err := journal.EnsureIdle(); err != nil {
		if !force || !errors.Is(err, storage.ErrInFlight) {
			return fmt.Errorf("%w (run `fleetroll unlock` once the fleet is checked, or pass --force)", err)
		}
		log.Logger.Warn().Err(err).Msg("Ignoring unfinished rollout")
	}

	tf, err := newTerraform(cfg)
	if err != nil {
		return err
	}
	if err := tf.Init(ctx); err != nil {
		return err
	}

	changes, err := tf.Plan(ctx, nil, "")
	if err != nil {
		return err
	}
	if !changes {
		fmt.Println("Module is already at the desired state, nothing to do.")
		return nil
	}

	rolloutCfg, err := cfg.RolloutConfig()
	if err != nil {
		return err
	}

	current, err := rollout.NewResolver(tf, rolloutCfg.StateVariable, rolloutCfg.StateValues, tf.WorkingDir()).Resolve(ctx)
	if err != nil {
		return err
	}
	seq, err := rollout.PlanSequence(current)
	if err != nil {
		return err
	}
	fmt.Printf("Rolling out %s\n", seq)

	stopper, err := newStopper(cfg)
	if err != nil {
		return err
	}

	audit, err := openEventLog(cfg.EventsFile)
	if err != nil {
		return err
	}
	defer func() {
		if err := audit.Close(); err != nil {
			log.Errorf("Failed to write events", err)
		}
	}()

	tracer, err := telemetry.NewTracer(cfg.TracingSettings(), "fleetroll", Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			log.Errorf("Failed to flush traces", err)
		}
	}()

	coordinator := drain.NewCoordinator(stopper, cfg.DrainSettings()).WithEvents(audit.publisher())
	orchestrator := rollout.NewOrchestrator(tf, coordinator, cfg.Selector, newMonitor(cfg), rolloutCfg).
		WithEvents(audit.publisher()).
		WithJournal(journal).
		WithTracer(tracer)

	result, err := orchestrator.Run(ctx, seq)
	exportMetrics(cfg)
	printResult(result)
	return err
}

// printResult prints one line per applied step and the final mode
func printResult(result *rollout.Result) {
	if result == nil {
		return
	}

	fmt.Println()
	for _, step := range result.Steps {
		verdict := "healthy"
		if !step.Healthy {
			verdict = "unhealthy"
		}
		line := fmt.Sprintf("  %-14s %-9s new: %s", step.State, verdict, names(step.NewAgents.Names()))
		if len(step.DrainFailed) > 0 {
			line += fmt.Sprintf("  drain failed: %s", names(step.DrainFailed))
		}
		fmt.Println(line)
	}

	switch result.Mode {
	case types.ModeCompleted:
		fmt.Printf("✓ Rollout %s completed: fleet is at %s\n", result.RunID, result.Target)
	case types.ModeRolledBack:
		fmt.Printf("✗ Rollout %s rolled back: fleet is at %s\n", result.RunID, result.From)
	default:
		fmt.Printf("✗ Rollout %s failed\n", result.RunID)
	}
}

func names(list []string) string {
	if len(list) == 0 {
		return "-"
	}
	return strings.Join(list, ", ")
}
