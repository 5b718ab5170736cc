package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/history"
	"github.com/ShayCichocki/foreman/pkg/models"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent task and workflow history",
	Long: `Display recent execution history from the SQLite journal.

Shows:
  - Recent tasks with status, agent, and duration
  - Recent workflows with step progress
  - Outcome counts by status`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 15, "How many entries to show")
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := cfg.History.Path
	if path == "" {
		path = config.DefaultHistoryPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No history yet. Run 'foreman run' to start.")
		return nil
	}

	journal, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer journal.Close()

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)
	bold := color.New(color.Bold)

	counts, err := journal.TaskCounts()
	if err != nil {
		return err
	}
	bold.Println("Task outcomes")
	if len(counts) == 0 {
		fmt.Println("  none recorded")
	}
	for status, n := range counts {
		switch status {
		case models.TaskStatusCompleted:
			green.Printf("  %-10s %d\n", status, n)
		case models.TaskStatusFailed:
			red.Printf("  %-10s %d\n", status, n)
		default:
			fmt.Printf("  %-10s %d\n", status, n)
		}
	}

	tasks, err := journal.RecentTasks(statusLimit)
	if err != nil {
		return err
	}
	fmt.Println()
	bold.Println("Recent tasks")
	for _, rec := range tasks {
		line := fmt.Sprintf("  %-14s %-28s %-10s %-22s %s",
			rec.ID, rec.Name, rec.Status, rec.AgentID, rec.Duration)
		switch rec.Status {
		case models.TaskStatusCompleted:
			green.Println(line)
		case models.TaskStatusFailed:
			red.Printf("%s  %s\n", line, rec.Error)
		default:
			yellow.Println(line)
		}
	}
	if len(tasks) == 0 {
		fmt.Println("  none")
	}

	workflows, err := journal.RecentWorkflows(statusLimit)
	if err != nil {
		return err
	}
	fmt.Println()
	bold.Println("Recent workflows")
	for _, rec := range workflows {
		line := fmt.Sprintf("  %-12s %-24s %-10s %d/%d steps",
			rec.ID, rec.Name, rec.Status, rec.StepsDone, rec.StepsTotal)
		switch rec.Status {
		case models.WorkflowStatusCompleted:
			green.Println(line)
		case models.WorkflowStatusFailed:
			red.Printf("%s  %s\n", line, rec.Error)
		default:
			yellow.Println(line)
		}
	}
	if len(workflows) == 0 {
		fmt.Println("  none")
	}

	return nil
}
