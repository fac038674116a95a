package provisioner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cuemby/fleetroll/pkg/log"
	"github.com/cuemby/fleetroll/pkg/metrics"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/hashicorp/terraform-exec/tfexec"
	tfjson "github.com/hashicorp/terraform-json"
	"github.com/rs/zerolog"
)

var lookPath = exec.LookPath

// Terraform drives the terraform binary for one module directory
type Terraform struct {
	tf         *tfexec.Terraform
	workingDir string
	logger     zerolog.Logger

	// terraform writes to shared buffers, so commands run one at a time
	mu     sync.Mutex
	stdout bytes.Buffer
	stderr bytes.Buffer
}

// Config holds provisioner configuration
type Config struct {
	// WorkingDir is the Terraform module directory
	WorkingDir string

	// ExecPath is the terraform binary; looked up on PATH when empty
	ExecPath string
}

// NewTerraform creates a new Terraform client
func NewTerraform(cfg Config) (*Terraform, error) {
	workingDir, err := filepath.Abs(cfg.WorkingDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}

	execPath := cfg.ExecPath
	if execPath == "" {
		execPath, err = lookPath("terraform")
		if err != nil {
			return nil, fmt.Errorf("failed to find terraform binary: %w", err)
		}
	}

	tf, err := tfexec.NewTerraform(workingDir, execPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create terraform client: %w", err)
	}

	t := &Terraform{
		tf:         tf,
		workingDir: workingDir,
		logger:     log.WithComponent("terraform"),
	}
	tf.SetStdout(&t.stdout)
	tf.SetStderr(&t.stderr)
	tf.SetLogger(printfLogger{logger: t.logger})
	return t, nil
}

// WorkingDir returns the absolute module directory
func (t *Terraform) WorkingDir() string {
	return t.workingDir
}

// Init runs terraform init
func (t *Terraform) Init(ctx context.Context) error {
	return t.run(OpInit, func() error {
		return t.tf.Init(ctx)
	})
}

// Plan runs terraform plan with the given variables and reports whether the
// plan has changes. When planFile is set the plan is saved there.
func (t *Terraform) Plan(ctx context.Context, vars map[string]string, planFile string) (bool, error) {
	opts := make([]tfexec.PlanOption, 0, len(vars)+1)
	for _, assignment := range varAssignments(vars) {
		opts = append(opts, tfexec.Var(assignment))
	}
	if planFile != "" {
		opts = append(opts, tfexec.Out(t.path(planFile)))
	}

	var changes bool
	err := t.run(OpPlan, func() error {
		var err error
		changes, err = t.tf.Plan(ctx, opts...)
		return err
	})
	return changes, err
}

// Show reads a saved plan and returns its change set
func (t *Terraform) Show(ctx context.Context, planFile string) (*types.ChangeSet, error) {
	var plan *tfjson.Plan
	err := t.run(OpShow, func() error {
		var err error
		plan, err = t.tf.ShowPlanFile(ctx, t.path(planFile), tfexec.JSONNumber(true))
		return err
	})
	if err != nil {
		return nil, err
	}
	return ChangeSetFromPlan(plan), nil
}

// Apply applies a saved plan. Plan files are single use and removed after a
// successful apply.
func (t *Terraform) Apply(ctx context.Context, planFile string) error {
	path := t.path(planFile)
	if err := t.run(OpApply, func() error {
		return t.tf.Apply(ctx, tfexec.DirOrPlan(path))
	}); err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		t.logger.Warn().Err(err).Str("plan_file", path).Msg("Failed to remove plan file")
	}
	return nil
}

// ApplyVars plans and applies in one auto-approved call with the given variables
func (t *Terraform) ApplyVars(ctx context.Context, vars map[string]string) error {
	opts := make([]tfexec.ApplyOption, 0, len(vars))
	for _, assignment := range varAssignments(vars) {
		opts = append(opts, tfexec.Var(assignment))
	}
	return t.run(OpApply, func() error {
		return t.tf.Apply(ctx, opts...)
	})
}

// Output returns the raw value of every root module output
func (t *Terraform) Output(ctx context.Context) (map[string]json.RawMessage, error) {
	var outputs map[string]tfexec.OutputMeta
	err := t.run(OpOutput, func() error {
		var err error
		outputs, err = t.tf.Output(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	values := make(map[string]json.RawMessage, len(outputs))
	for name, meta := range outputs {
		values[name] = meta.Value
	}
	return values, nil
}

// run executes one terraform command and turns a failure into an *Error with
// the captured output
func (t *Terraform) run(op Op, fn func() error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stdout.Reset()
	t.stderr.Reset()

	t.logger.Debug().Str("op", string(op)).Msg("Running terraform")
	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveDurationVec(metrics.ProvisionerCallDuration, string(op))
	if err != nil {
		metrics.ProvisionerCallsTotal.WithLabelValues(string(op), "failure").Inc()
		return &Error{
			Op:         op,
			WorkingDir: t.workingDir,
			Stdout:     t.stdout.String(),
			Stderr:     t.stderr.String(),
			Err:        err,
		}
	}
	metrics.ProvisionerCallsTotal.WithLabelValues(string(op), "success").Inc()
	return nil
}

func (t *Terraform) path(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(t.workingDir, file)
}

// varAssignments renders variables as sorted name=value pairs so command
// lines are deterministic
func varAssignments(vars map[string]string) []string {
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	assignments := make([]string, len(names))
	for i, name := range names {
		assignments[i] = fmt.Sprintf("%s=%s", name, vars[name])
	}
	return assignments
}

// ChangeSetFromPlan converts a terraform JSON plan into a change set
func ChangeSetFromPlan(plan *tfjson.Plan) *types.ChangeSet {
	cs := &types.ChangeSet{}
	if plan == nil {
		return cs
	}

	for _, rc := range plan.ResourceChanges {
		if rc == nil {
			continue
		}
		change := types.ResourceChange{
			Address: rc.Address,
			Type:    rc.Type,
			Name:    rc.Name,
		}
		if rc.Change != nil {
			for _, action := range rc.Change.Actions {
				change.Actions = append(change.Actions, types.Action(action))
			}
			change.Before = asObject(rc.Change.Before)
			change.After = asObject(rc.Change.After)
		}
		cs.Changes = append(cs.Changes, change)
	}
	return cs
}

func asObject(v interface{}) map[string]interface{} {
	if obj, ok := v.(map[string]interface{}); ok {
		return obj
	}
	return nil
}

// printfLogger adapts zerolog to terraform-exec's logger
type printfLogger struct {
	logger zerolog.Logger
}

func (l printfLogger) Printf(format string, v ...interface{}) {
	l.logger.Debug().Msgf(format, v...)
}
