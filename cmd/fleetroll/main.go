package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/cuemby/fleetroll/pkg/provisioner"
	"github.com/cuemby/fleetroll/pkg/rollout"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Process exit codes
const (
	exitOK             = 0
	exitRolledBack     = 1
	exitFatal          = 2
	exitRollbackFailed = 3
)

func main() {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	os.Exit(exitCode(err))
}

var rootCmd = &cobra.Command{
	Use:   "fleetroll",
	Short: "fleetroll - staged blue/green rollouts of Terraform-managed agent fleets",
	Long: `fleetroll rolls a fleet of worker agents from one color to the other
through Terraform, one step at a time:

  ALL_OLD -> CANARY_NEW -> HALF_AND_HALF -> ALL_NEW

Agents about to be destroyed are drained before every apply, and the agents a
step creates must become healthy before the next step starts. Otherwise the
fleet is reverted to its starting state in a single apply.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"fleetroll version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "Path to the fleetroll YAML configuration")
	flags.StringP("working-dir", "d", "", "Terraform module directory (overrides working_dir)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON instead of console output")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("fleetroll version %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Built: %s\n", BuildTime)
	},
}

// exitCode maps a command error to the process exit code. Rollback is checked
// before malfunction because a failed rollback also wraps a tool error.
func exitCode(err error) int {
	var rollbackErr *rollout.RollbackFailedError
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &rollbackErr):
		return exitRollbackFailed
	case errors.Is(err, rollout.ErrMalfunctionDetected):
		return exitRolledBack
	default:
		return exitFatal
	}
}

// printError reports err on stderr followed by the output terraform printed
func printError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var toolErr *provisioner.Error
	if errors.As(err, &toolErr) {
		if output := toolErr.Output(); output != "" {
			fmt.Fprintf(os.Stderr, "\nterraform %s output:\n%s", toolErr.Op, output)
		}
	}
}
