package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/fleetroll/pkg/rollout"
	"github.com/cuemby/fleetroll/pkg/storage"
	"github.com/cuemby/fleetroll/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current fleet state and the rollout it would take",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		journal, err := storage.Open(cfg.JournalPath(), cfg.Journal.LockTimeout.Std())
		if err != nil {
			return err
		}
		entry, err := journal.Current()
		journal.Close()
		if err != nil {
			return err
		}
		if entry != nil {
			fmt.Printf("Unfinished rollout: %s\n", entry)
		}

		tf, err := newTerraform(cfg)
		if err != nil {
			return err
		}
		if err := tf.Init(ctx); err != nil {
			return err
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

		fmt.Printf("Working directory: %s\n", tf.WorkingDir())
		fmt.Printf("Current state:     %s (%s=%s)\n", current, rolloutCfg.StateVariable, rolloutCfg.StateValues.Value(current))
		fmt.Printf("Next rollout:      %s\n", seq)
		return nil
	},
}

var sequenceCmd = &cobra.Command{
	Use:   "sequence STATE",
	Short: "Print the rollout sequence starting from a terminal state",
	Long: `Print the rollout sequence starting from a terminal state.

STATE is ALL_OLD or ALL_NEW; the color names ALL_BLUE and ALL_GREEN are
accepted too.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		state, err := types.ParseRolloutState(args[0])
		if err != nil {
			return err
		}
		seq, err := rollout.PlanSequence(state)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), seq)
		return nil
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Clear the marker left by an unfinished rollout",
	Long: `Clear the marker left by an unfinished rollout.

A rollout interrupted between apply and health evaluation leaves the fleet in
an intermediate state. Check the fleet, bring it back to ALL_OLD or ALL_NEW,
then run unlock so the next rollout can start.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		journal, err := storage.Open(cfg.JournalPath(), cfg.Journal.LockTimeout.Std())
		if err != nil {
			return err
		}
		defer journal.Close()

		entry, err := journal.Current()
		if err != nil {
			return err
		}
		if entry == nil {
			fmt.Fprintln(cmd.OutOrStdout(), "No unfinished rollout.")
			return nil
		}
		if err := journal.Clear(); err != nil {
			return fmt.Errorf("failed to clear journal: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Cleared %s\n", entry)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return enc.Close()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sequenceCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(configCmd)
}
