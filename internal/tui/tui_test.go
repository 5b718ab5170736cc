package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/internal/orchestrator"
	"github.com/ShayCichocki/foreman/pkg/models"
)

func TestRingBufferEviction(t *testing.T) {
	rb := NewRingBuffer(3)
	rb.Append("a")
	rb.Append("b")

	lines := rb.Lines()
	if len(lines) != 2 || lines[0] != "a" || lines[1] != "b" {
		t.Fatalf("lines = %v", lines)
	}

	rb.Append("c")
	rb.Append("d")

	lines = rb.Lines()
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines after eviction, got %d", len(lines))
	}
	if lines[0] != "b" || lines[2] != "d" {
		t.Errorf("expected oldest-first [b c d], got %v", lines)
	}
	if rb.Len() != 3 {
		t.Errorf("Len = %d, want 3", rb.Len())
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{3725 * time.Second, "1h02m05s"},
		{-time.Second, "0s"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFormatCounts(t *testing.T) {
	if got := formatCounts(nil); got != "none" {
		t.Errorf("empty counts = %q", got)
	}
	got := formatCounts(map[string]int{"idle": 3, "busy": 1})
	if got != "1 busy, 3 idle" {
		t.Errorf("counts = %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate short = %q", got)
	}
	got := truncate("a very long task name", 10)
	if len([]rune(got)) > 10 || !strings.HasSuffix(got, "…") {
		t.Errorf("truncate long = %q", got)
	}
}

func TestAgentsPanelView(t *testing.T) {
	p := NewAgentsPanel()

	view := p.View()
	if !strings.Contains(view, "no agents registered") {
		t.Errorf("empty view = %q", view)
	}

	p.SetAgents([]*models.Agent{
		{ID: "forecaster-01", Class: "forecaster", Status: models.AgentStatusBusy, CurrentTask: "task-1"},
		{ID: "analyst-01", Class: "data_analyst", Status: models.AgentStatusIdle},
	})

	view = p.View()
	if !strings.Contains(view, "forecaster-01") || !strings.Contains(view, "analyst-01") {
		t.Errorf("view missing agents: %q", view)
	}
	// Sorted by ID, so the analyst row comes first.
	if strings.Index(view, "analyst-01") > strings.Index(view, "forecaster-01") {
		t.Error("agents not sorted by ID")
	}
}

func TestTasksPanelOrdersActiveFirst(t *testing.T) {
	p := NewTasksPanel()

	now := time.Now()
	p.SetTasks([]*models.Task{
		{ID: "task-old", Name: "done", Status: models.TaskStatusCompleted, CreatedAt: now.Add(-time.Hour)},
		{ID: "task-run", Name: "running", Status: models.TaskStatusRunning, CreatedAt: now.Add(-2 * time.Hour)},
	})

	view := p.View()
	if strings.Index(view, "task-run") > strings.Index(view, "task-old") {
		t.Error("active task should render before terminal task")
	}
}

func TestEventsPanelView(t *testing.T) {
	p := NewEventsPanel()

	view := p.View(10)
	if !strings.Contains(view, "no events yet") {
		t.Errorf("empty view = %q", view)
	}

	p.Add(orchestrator.Event{
		Type:      orchestrator.EventTaskCompleted,
		TaskID:    "task-1",
		AgentID:   "forecaster-01",
		Timestamp: time.Now(),
	})

	view = p.View(10)
	if !strings.Contains(view, "task-1") || !strings.Contains(view, "task_completed") {
		t.Errorf("view missing event: %q", view)
	}
}

func TestWorkflowsPanelView(t *testing.T) {
	p := NewWorkflowsPanel()

	p.SetWorkflows([]*models.Workflow{{
		ID:     "wf-1",
		Name:   "pipeline",
		Status: models.WorkflowStatusRunning,
		Steps: []*models.WorkflowStep{
			{ID: "a", Status: models.StepStatusCompleted},
			{ID: "b", Status: models.StepStatusRunning},
		},
		CreatedAt: time.Now(),
	}})

	view := p.View()
	if !strings.Contains(view, "wf-1") || !strings.Contains(view, "1 done") || !strings.Contains(view, "1 running") {
		t.Errorf("view = %q", view)
	}
}
