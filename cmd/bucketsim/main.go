package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nvandessel/bucketsim/internal/config"
	"github.com/nvandessel/bucketsim/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "bucketsim",
		Short: "Bucketing hash simulator - fairness checks for experiment assignment",
		Long: `bucketsim validates a deterministic hashing scheme that assigns members
of a population to control and treatment buckets.

It simulates a weighted population across many randomly named experiments
and tests whether each partition splits close to 50/50 and whether a
member's assignments stay uncorrelated across experiments.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory (results live in <root>/.bucketsim)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.bucketsim/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newRunsCmd(),
		newSnapshotCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

// loadConfig resolves the effective configuration for cmd: file, then
// environment, then the --log-level flag. Command flags are applied by the
// caller.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg, nil
}

// newLogger returns the operational logger for cmd. Logs go to stderr so
// --json output on stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}
