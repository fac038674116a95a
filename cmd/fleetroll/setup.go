package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/fleetroll/pkg/config"
	"github.com/cuemby/fleetroll/pkg/drain"
	"github.com/cuemby/fleetroll/pkg/events"
	"github.com/cuemby/fleetroll/pkg/health"
	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/metrics"
	"github.com/cuemby/fleetroll/pkg/provisioner"
	"github.com/spf13/cobra"
)

// loadConfig reads the configuration file, applies flag overrides, validates
// the result and initializes logging
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if dir, _ := cmd.Flags().GetString("working-dir"); dir != "" {
		cfg.WorkingDir = dir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	if jsonOutput, _ := cmd.Flags().GetBool("log-json"); jsonOutput {
		cfg.Log.JSON = true
	}
	if f := cmd.Flags().Lookup("health-timeout"); f != nil && f.Changed {
		timeout, _ := cmd.Flags().GetDuration("health-timeout")
		cfg.Health.Timeout = config.Duration(timeout)
	}
	if f := cmd.Flags().Lookup("metrics-file"); f != nil && f.Changed {
		cfg.Metrics.Textfile, _ = cmd.Flags().GetString("metrics-file")
	}
	if f := cmd.Flags().Lookup("events-file"); f != nil && f.Changed {
		cfg.EventsFile, _ = cmd.Flags().GetString("events-file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

func newTerraform(cfg *config.Config) (*provisioner.Terraform, error) {
	return provisioner.NewTerraform(provisioner.Config{
		WorkingDir: cfg.WorkingDir,
		ExecPath:   cfg.TerraformPath,
	})
}

// newStopper builds the drain stopper selected by drain.type
func newStopper(cfg *config.Config) (drain.Stopper, error) {
	switch cfg.Drain.Type {
	case "exec":
		return drain.NewExecStopper(cfg.Drain.Command)
	case "http":
		return drain.NewHTTPStopper(cfg.Drain.URL, cfg.Drain.Method)
	default:
		return &drain.LogStopper{Logger: log.WithComponent("drain")}, nil
	}
}

// errHealthDisabled means rollout was asked to run without any health check
var errHealthDisabled = errors.New("health.type is none: new agents would never be checked and no rollback could happen; configure a health check or pass --skip-health")

// requireHealthCheck refuses a rollout without health checks unless skip is set
func requireHealthCheck(cfg *config.Config, skip bool) error {
	if cfg.Health.Type == string(health.CheckTypeNone) && !skip {
		return errHealthDisabled
	}
	return nil
}

// newMonitor builds the health monitor selected by health.type
func newMonitor(cfg *config.Config) health.Monitor {
	if cfg.Health.Type == string(health.CheckTypeNone) {
		log.Warn("Health checking is disabled, new agents are always considered healthy")
		return &health.StaticMonitor{Healthy: true}
	}

	factory := &health.TemplateFactory{
		Type:       health.CheckType(cfg.Health.Type),
		Target:     cfg.Health.Target,
		Command:    cfg.Health.Command,
		ExpectBody: cfg.Health.ExpectBody,
		Timeout:    cfg.Health.CheckTimeout.Std(),
	}
	return health.NewPollingMonitor(factory, cfg.HealthSettings())
}

// eventLog writes rollout events to a JSONL file while a run is active
type eventLog struct {
	broker *events.Broker
	sink   *events.JSONLSink
	closer io.Closer
}

func openEventLog(path string) (*eventLog, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}

	broker := events.NewBroker()
	sink := events.NewJSONLSink(broker, f)
	broker.Start()
	return &eventLog{broker: broker, sink: sink, closer: f}, nil
}

// publisher returns the broker, or nil when no event log is configured
func (l *eventLog) publisher() events.Publisher {
	if l == nil {
		return nil
	}
	return l.broker
}

func (l *eventLog) Close() error {
	if l == nil {
		return nil
	}
	l.broker.Stop()
	if err := l.sink.Wait(); err != nil {
		_ = l.closer.Close()
		return err
	}
	return l.closer.Close()
}

// exportMetrics writes the textfile and pushes to the gateway when configured.
// Export failures are logged and never change the outcome of a run.
func exportMetrics(cfg *config.Config) {
	if cfg.Metrics.Textfile != "" {
		if err := metrics.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			log.Errorf("Metrics export failed", err)
		}
	}
	if cfg.Metrics.PushgatewayURL != "" {
		if err := metrics.Push(cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			log.Errorf("Metrics push failed", err)
		}
	}
}

// shutdownTimeout bounds flushing spans after a run
const shutdownTimeout = 10 * time.Second
