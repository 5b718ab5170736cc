package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/foreman/internal/config"
	"github.com/ShayCichocki/foreman/internal/executor"
	"github.com/ShayCichocki/foreman/internal/history"
	"github.com/ShayCichocki/foreman/internal/orchestrator"
	"github.com/ShayCichocki/foreman/internal/tui"
	"github.com/ShayCichocki/foreman/internal/workflow"
)

var (
	runDashboard   bool
	runWatchDir    string
	runAutoApprove bool
	runNoHistory   bool
	runDebug       bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the orchestrator with the default agent fleet",
	Long: `Start the orchestrator, register the default agent fleet, and keep
dispatching until interrupted.

Workflow YAML files dropped into the watch directory are picked up
and executed automatically. With --dashboard the live TUI renders
agents, tasks, workflows, and the event stream.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDashboard, "dashboard", false, "Show the live dashboard")
	runCmd.Flags().StringVar(&runWatchDir, "watch-dir", "", "Directory to watch for workflow YAML files")
	runCmd.Flags().BoolVar(&runAutoApprove, "auto-approve", false, "Bypass workflow approval gates")
	runCmd.Flags().BoolVar(&runNoHistory, "no-history", false, "Disable the SQLite execution journal")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")
}

// loadConfig loads configuration, honoring the --config override.
func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromPath(configPath)
	}
	return config.Load()
}

// buildSystem assembles the orchestrator, engine, and journal from config.
func buildSystem(cfg *config.Config) (*orchestrator.Orchestrator, *workflow.Engine, *history.Store, error) {
	logger := orchestrator.NopLogger()
	if cfg.Debug.Enabled || runDebug {
		logPath := cfg.Debug.LogFile
		if logPath == "" {
			logPath = "foreman-debug.log"
		}
		var err error
		logger, err = orchestrator.NewDebugLogger(logPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open debug log: %w", err)
		}
	}

	var journal *history.Store
	if !runNoHistory {
		path := cfg.History.Path
		if path == "" {
			path = config.DefaultHistoryPath()
		}
		var err error
		journal, err = history.Open(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open history: %w", err)
		}
	}

	execs := executor.NewRegistry()
	execs.RegisterSimulated()

	orch := orchestrator.New(orchestrator.Options{
		Config:    cfg,
		Logger:    logger,
		Executors: execs,
		History:   journal,
	})
	orch.Registry().RegisterDefaults()

	engine := workflow.NewEngine(orch, cfg.Approval.Timeout)
	engine.SetDebugLog(logger.Log)

	return orch, engine, journal, nil
}

func runRun(cmd *cobra.Command, args []string) error {
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

	watchDir := runWatchDir
	if watchDir == "" {
		watchDir = cfg.Watch.Dir
	}
	if watchDir != "" {
		watcher, err := workflow.NewWatcher(engine, watchDir, runAutoApprove)
		if err != nil {
			return fmt.Errorf("watch %s: %w", watchDir, err)
		}
		defer watcher.Close()
		go watcher.Run(ctx)
		fmt.Printf("Watching %s for workflow files\n", watchDir)
	}

	if runDashboard {
		return tui.Run(orch, engine, cfg.TUI.RefreshRate)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	green.Printf("Foreman started with %d agents. Ctrl-C to stop.\n", orch.Registry().Count())

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down")
			return nil
		case ev := <-orch.Events():
			switch ev.Type {
			case orchestrator.EventTaskFailed, orchestrator.EventAgentUnhealthy:
				red.Printf("[%s] %s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.TaskID, ev.Message)
			case orchestrator.EventTaskRetrying, orchestrator.EventResourceDeferred:
				yellow.Printf("[%s] %s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.TaskID, ev.Message)
			default:
				fmt.Printf("[%s] %s %s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.TaskID, ev.AgentID)
			}
		}
	}
}
