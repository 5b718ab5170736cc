package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/workflow"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var workflowAutoApprove bool

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Run and validate workflow definitions",
}

var workflowRunCmd = &cobra.Command{
	Use:   "run <file.yaml>",
	Short: "Execute a workflow definition to completion",
	Long: `Load a workflow YAML file, start the orchestrator with the default
fleet, and drive the workflow until it completes, fails, or is
interrupted. Steps marked require_approval prompt on stdin unless
--auto-approve is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkflowRun,
}

var workflowValidateCmd = &cobra.Command{
	Use:   "validate <file.yaml>",
	Short: "Check a workflow definition without executing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		def, err := workflow.LoadDefinition(args[0])
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Printf("✓ %s: %d steps\n", def.Name, len(def.Steps))
		return nil
	},
}

func init() {
	workflowRunCmd.Flags().BoolVar(&workflowAutoApprove, "auto-approve", false, "Bypass approval gates")
	workflowCmd.AddCommand(workflowRunCmd)
	workflowCmd.AddCommand(workflowValidateCmd)
}

func runWorkflowRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	orch, engine, journal, err := buildSystem(cfg)
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

	wf, err := engine.CreateFromFile(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Running workflow %s (%s) with %d steps\n", wf.Name, wf.ID, len(wf.Steps))

	if !workflowAutoApprove {
		go promptApprovals(ctx, engine)
	}

	execErr := engine.Execute(ctx, wf.ID, workflowAutoApprove)
	printWorkflowResult(engine, wf.ID)
	return execErr
}

// promptApprovals answers approval requests from stdin.
func promptApprovals(ctx context.Context, engine *workflow.Engine) {
	reader := bufio.NewReader(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-engine.Approvals().RequestCh():
			fmt.Printf("Step %q (%s) requires approval. Approve? [y/N] ", req.StepName, req.Capability)
			line, err := reader.ReadString('\n')
			if err != nil {
				engine.RejectStep(req.WorkflowID, req.StepID, "no response")
				continue
			}
			if answer := strings.ToLower(strings.TrimSpace(line)); answer == "y" || answer == "yes" {
				engine.ApproveStep(req.WorkflowID, req.StepID)
			} else {
				engine.RejectStep(req.WorkflowID, req.StepID, "rejected at prompt")
			}
		}
	}
}

// printWorkflowResult renders the final per-step report.
func printWorkflowResult(engine *workflow.Engine, workflowID string) {
	st, err := engine.GetStatus(workflowID)
	if err != nil {
		return
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	for _, step := range st.Steps {
		switch step.Status {
		case models.StepStatusCompleted:
			green.Printf("  ✓ %s\n", step.Name)
		case models.StepStatusSkipped:
			yellow.Printf("  ~ %s (skipped: %s)\n", step.Name, step.Error)
		case models.StepStatusFailed:
			red.Printf("  ✗ %s (%s)\n", step.Name, step.Error)
		default:
			fmt.Printf("  - %s (%s)\n", step.Name, step.Status)
		}
	}

	fmt.Println()
	switch st.Status {
	case models.WorkflowStatusCompleted:
		green.Printf("Workflow %s completed (%.0f%%)\n", st.Name, st.Progress)
	case models.WorkflowStatusCancelled:
		yellow.Printf("Workflow %s cancelled\n", st.Name)
	default:
		red.Printf("Workflow %s %s: %s\n", st.Name, st.Status, st.Error)
	}
}
