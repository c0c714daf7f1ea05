package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "cloudtrim",
		Short: "CloudTrim - Cloud Cost Optimization Execution Engine",
		Long: `CloudTrim executes approved cloud cost-optimization opportunities through
an ordered, retryable, auditable pipeline.

Features:
  - Six-phase execution pipeline with verification
  - Automatic backup and compensating rollback on failure
  - OPA guardrails evaluated before any change
  - Per-resource mutual exclusion and bounded retries
  - SQLite audit trail of every execution, step, and event
  - Prometheus metrics and OpenTelemetry tracing`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newInitCommand())
	rootCmd.AddCommand(newExecuteCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newCancelCommand())
	rootCmd.AddCommand(newExecutionsCommand())
	rootCmd.AddCommand(newPoliciesCommand())

	return rootCmd
}
