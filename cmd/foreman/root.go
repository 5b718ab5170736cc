package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Multi-agent task and workflow orchestrator",
	Long: `Foreman orchestrates a fleet of specialized agents: it queues tasks
by priority and dependency, assigns them to capable agents within
resource limits, retries failures, and drives multi-step workflows
with approval gates.

Core capabilities:
- Priority queue with dependency resolution and cycle detection
- Capability and class based agent matching
- Resource-aware dispatch with automatic deferral
- Workflow pipelines with pause, resume, cancel, and approval gates
- Live dashboard and SQLite-backed execution history`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (overrides discovery)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
