package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/fleetroll/pkg/drain"
	"github.com/cuemby/fleetroll/pkg/health"
	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/rollout"
	"github.com/cuemby/fleetroll/pkg/storage"
	"github.com/cuemby/fleetroll/pkg/telemetry"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string in YAML
type Duration time.Duration

// UnmarshalYAML parses values like "90s" or "2h"
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string like \"30s\"", value.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes the duration string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the time.Duration
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the fleetroll configuration file
type Config struct {
	// WorkingDir is the Terraform module directory
	WorkingDir string `yaml:"working_dir"`

	// TerraformPath is the terraform binary; empty means look it up in PATH
	TerraformPath string `yaml:"terraform_path"`

	StateVariable string `yaml:"state_variable" validate:"required"`
	FleetOutput   string `yaml:"fleet_output" validate:"required"`
	PlanFile      string `yaml:"plan_file" validate:"required"`

	// StateValues overrides the variable value per state, keyed by state name
	StateValues map[string]string `yaml:"state_values"`

	Selector drain.Selector `yaml:"selector"`
	Drain    DrainConfig    `yaml:"drain"`
	Health   HealthConfig   `yaml:"health"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Journal  JournalConfig  `yaml:"journal"`

	// EventsFile receives one JSON line per rollout event
	EventsFile string `yaml:"events_file"`
}

// DrainConfig selects how agents are stopped before destruction
type DrainConfig struct {
	// Type is log, exec or http
	Type string `yaml:"type" validate:"oneof=log exec http"`

	// Command is the exec argv; arguments are templates over {{.Name}}
	Command []string `yaml:"command" validate:"required_if=Type exec"`

	// URL is the http stop endpoint template
	URL    string `yaml:"url" validate:"required_if=Type http"`
	Method string `yaml:"method" validate:"omitempty,oneof=GET POST PUT DELETE PATCH"`

	Parallelism int      `yaml:"parallelism" validate:"min=1"`
	Timeout     Duration `yaml:"timeout" validate:"min=0"`
	FailOnError bool     `yaml:"fail_on_error"`
}

// HealthConfig selects how new agents are judged
type HealthConfig struct {
	// Type is http, tcp, exec or none
	Type string `yaml:"type" validate:"oneof=http tcp exec none"`

	// Target is the URL (http) or host:port (tcp) template
	Target     string   `yaml:"target" validate:"required_if=Type http,required_if=Type tcp"`
	Command    []string `yaml:"command" validate:"required_if=Type exec"`
	ExpectBody string   `yaml:"expect_body"`

	// Timeout is the budget for all new agents of a step to become ready
	Timeout Duration `yaml:"timeout" validate:"gt=0"`

	Interval         Duration `yaml:"interval" validate:"gt=0"`
	CheckTimeout     Duration `yaml:"check_timeout" validate:"min=0"`
	Retries          int      `yaml:"retries" validate:"min=1"`
	SuccessThreshold int      `yaml:"success_threshold" validate:"min=1"`
	StartPeriod      Duration `yaml:"start_period" validate:"min=0"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `yaml:"json"`
}

// MetricsConfig configures metrics export at the end of a run
type MetricsConfig struct {
	// Textfile is written in Prometheus text format for node_exporter
	Textfile string `yaml:"textfile"`

	PushgatewayURL string `yaml:"pushgateway_url" validate:"omitempty,url"`
	Job            string `yaml:"job" validate:"required_with=PushgatewayURL"`
}

// TracingConfig configures span export
type TracingConfig struct {
	Exporter     string            `yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint     string            `yaml:"endpoint" validate:"required_if=Exporter otlp"`
	Insecure     bool              `yaml:"insecure"`
	Headers      map[string]string `yaml:"headers"`
	SamplingRate float64           `yaml:"sampling_rate" validate:"min=0,max=1"`
}

// JournalConfig configures the run journal
type JournalConfig struct {
	// Path defaults to .fleetroll.db inside the working directory
	Path        string   `yaml:"path"`
	LockTimeout Duration `yaml:"lock_timeout" validate:"gt=0"`
}

// Default returns the configuration of the blue/green agent fleet module
func Default() *Config {
	rolloutCfg := rollout.DefaultConfig()
	drainCfg := drain.DefaultConfig()
	healthCfg := health.DefaultConfig()

	return &Config{
		WorkingDir:    ".",
		StateVariable: rolloutCfg.StateVariable,
		FleetOutput:   rolloutCfg.FleetOutput,
		PlanFile:      rolloutCfg.PlanFile,
		Selector:      drain.DefaultSelector(),
		Drain: DrainConfig{
			Type:        "log",
			Parallelism: drainCfg.Parallelism,
			Timeout:     Duration(drainCfg.Timeout),
		},
		Health: HealthConfig{
			Type:             "none",
			Timeout:          Duration(rolloutCfg.HealthTimeout),
			Interval:         Duration(healthCfg.Interval),
			CheckTimeout:     Duration(healthCfg.Timeout),
			Retries:          healthCfg.Retries,
			SuccessThreshold: healthCfg.SuccessThreshold,
		},
		Log: LogConfig{
			Level: string(log.InfoLevel),
		},
		Metrics: MetricsConfig{
			Job: "fleetroll",
		},
		Tracing: TracingConfig{
			Exporter:     telemetry.ExporterNone,
			SamplingRate: 1.0,
		},
		Journal: JournalConfig{
			LockTimeout: Duration(time.Second),
		},
	}
}

// Load reads the YAML file at path over the defaults. An empty path returns
// the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and that every state maps to a distinct value
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			msgs := make([]string, 0, len(invalid))
			for _, fe := range invalid {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fieldPath(fe.Namespace()), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	values, err := c.States()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := values.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: state_values: %w", err)
	}
	return nil
}

// States returns the state values with the overrides applied
func (c *Config) States() (types.StateValues, error) {
	values := types.DefaultStateValues()
	for name, value := range c.StateValues {
		state, err := types.ParseRolloutState(name)
		if err != nil {
			return nil, fmt.Errorf("state_values: %w", err)
		}
		values[state] = value
	}
	return values, nil
}

// RolloutConfig returns the orchestrator settings
func (c *Config) RolloutConfig() (rollout.Config, error) {
	values, err := c.States()
	if err != nil {
		return rollout.Config{}, err
	}
	return rollout.Config{
		StateVariable: c.StateVariable,
		FleetOutput:   c.FleetOutput,
		PlanFile:      c.PlanFile,
		HealthTimeout: c.Health.Timeout.Std(),
		StateValues:   values,
	}, nil
}

// DrainSettings returns the drain coordinator settings
func (c *Config) DrainSettings() drain.Config {
	return drain.Config{
		Parallelism: c.Drain.Parallelism,
		Timeout:     c.Drain.Timeout.Std(),
		FailOnError: c.Drain.FailOnError,
	}
}

// HealthSettings returns the polling settings
func (c *Config) HealthSettings() health.Config {
	return health.Config{
		Interval:         c.Health.Interval.Std(),
		Timeout:          c.Health.CheckTimeout.Std(),
		Retries:          c.Health.Retries,
		SuccessThreshold: c.Health.SuccessThreshold,
		StartPeriod:      c.Health.StartPeriod.Std(),
	}
}

// TracingSettings returns the tracer settings
func (c *Config) TracingSettings() telemetry.TracingConfig {
	cfg := telemetry.DefaultTracingConfig()
	cfg.Exporter = c.Tracing.Exporter
	cfg.Endpoint = c.Tracing.Endpoint
	cfg.Insecure = c.Tracing.Insecure
	cfg.Headers = c.Tracing.Headers
	cfg.SamplingRate = c.Tracing.SamplingRate
	return cfg
}

// JournalPath returns the journal file, defaulting into the working directory
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.WorkingDir, storage.DefaultFileName)
}

// fieldPath turns "Config.Health.Timeout" into "Health.Timeout"
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}
