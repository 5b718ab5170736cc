package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/pkg/models"
)

var (
	submitName     string
	submitClass    string
	submitPriority string
	submitParams   []string
	submitTimeout  time.Duration
)

var submitCmd = &cobra.Command{
	Use:   "submit <capability>",
	Short: "Submit a single task and wait for its result",
	Long: `Submit one task against the default fleet and block until it reaches
a terminal status. Parameters are passed as repeated --param key=value
flags.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitName, "name", "", "Task name (defaults to the capability)")
	submitCmd.Flags().StringVar(&submitClass, "class", "", "Restrict to agents of this class")
	submitCmd.Flags().StringVar(&submitPriority, "priority", "normal", "Priority: low, normal, high, critical")
	submitCmd.Flags().StringArrayVar(&submitParams, "param", nil, "Task parameter as key=value (repeatable)")
	submitCmd.Flags().DurationVar(&submitTimeout, "timeout", 0, "Per-attempt execution timeout")

	rootCmd.AddCommand(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	capability := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, _, journal, err := buildSystem(cfg)
	if err != nil {
		return err
	}
	if journal != nil {
		defer journal.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		return err
	}
	defer orch.Stop()

	params := make(map[string]any, len(submitParams))
	for _, p := range submitParams {
		k, v, found := strings.Cut(p, "=")
		if !found {
			return fmt.Errorf("invalid --param %q, want key=value", p)
		}
		params[k] = v
	}

	name := submitName
	if name == "" {
		name = capability
	}

	taskID, err := orch.SubmitTask(&models.Task{
		Name:       name,
		Capability: capability,
		AgentClass: submitClass,
		Priority:   models.ParsePriority(submitPriority),
		Params:     params,
		Timeout:    submitTimeout,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Submitted %s (%s)\n", taskID, name)

	task, err := orch.WaitForTask(ctx, taskID)
	if err != nil {
		return err
	}

	switch task.Status {
	case models.TaskStatusCompleted:
		color.New(color.FgGreen).Printf("✓ %s completed", taskID)
		if task.AssignedAgent != "" {
			fmt.Printf(" on %s", task.AssignedAgent)
		}
		fmt.Println()
		for k, v := range task.Result {
			fmt.Printf("  %s: %v\n", k, v)
		}
		return nil
	case models.TaskStatusCancelled:
		color.New(color.FgYellow).Printf("~ %s cancelled: %s\n", taskID, task.Error)
		return nil
	default:
		color.New(color.FgRed).Printf("✗ %s %s: %s\n", taskID, task.Status, task.Error)
		return fmt.Errorf("task %s %s", taskID, task.Status)
	}
}
