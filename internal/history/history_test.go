package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/foreman/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func terminalTask(id string, status models.TaskStatus, completedAt time.Time) *models.Task {
	started := completedAt.Add(-2 * time.Second)
	return &models.Task{
		ID:            id,
		Name:          "forecast " + id,
		Capability:    "forecasting",
		AssignedAgent: "forecaster-001",
		Status:        status,
		Priority:      models.PriorityNormal,
		Result:        models.Result{"mape": 8.2},
		CreatedAt:     completedAt.Add(-time.Minute),
		StartedAt:     &started,
		CompletedAt:   &completedAt,
	}
}

func TestRecordAndRecentTasks(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	if err := s.RecordTask(terminalTask("task-1", models.TaskStatusCompleted, now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	if err := s.RecordTask(terminalTask("task-2", models.TaskStatusFailed, now)); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	records, err := s.RecentTasks(10)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "task-2" {
		t.Errorf("expected newest first, got %s", records[0].ID)
	}
	if records[0].Status != models.TaskStatusFailed {
		t.Errorf("status = %s", records[0].Status)
	}
	if records[0].AgentID != "forecaster-001" {
		t.Errorf("agent = %s", records[0].AgentID)
	}
	if records[0].Duration != 2*time.Second {
		t.Errorf("duration = %v, want 2s", records[0].Duration)
	}
	if records[0].Result["mape"] != 8.2 {
		t.Errorf("result = %v", records[0].Result)
	}
	if records[0].CompletedAt == nil {
		t.Error("expected completed_at to round-trip")
	}
}

func TestRecordTaskUpsert(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	task := terminalTask("task-1", models.TaskStatusFailed, now)
	task.Error = "first attempt"
	if err := s.RecordTask(task); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}

	task.Status = models.TaskStatusCompleted
	task.Error = ""
	task.RetryCount = 1
	if err := s.RecordTask(task); err != nil {
		t.Fatalf("RecordTask update: %v", err)
	}

	records, err := s.RecentTasks(10)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record after upsert, got %d", len(records))
	}
	if records[0].Status != models.TaskStatusCompleted || records[0].RetryCount != 1 {
		t.Errorf("upsert did not apply: %+v", records[0])
	}
}

func TestRecordAndRecentWorkflows(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	wf := &models.Workflow{
		ID:     "wf-1",
		Name:   "pipeline",
		Status: models.WorkflowStatusCompleted,
		Steps: []*models.WorkflowStep{
			{ID: "a", Status: models.StepStatusCompleted},
			{ID: "b", Status: models.StepStatusSkipped},
			{ID: "c", Status: models.StepStatusFailed},
		},
		CreatedAt:   now.Add(-time.Minute),
		CompletedAt: &now,
	}
	if err := s.RecordWorkflow(wf); err != nil {
		t.Fatalf("RecordWorkflow: %v", err)
	}

	records, err := s.RecentWorkflows(10)
	if err != nil {
		t.Fatalf("RecentWorkflows: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].StepsTotal != 3 || records[0].StepsDone != 2 {
		t.Errorf("steps = %d/%d, want 2/3", records[0].StepsDone, records[0].StepsTotal)
	}
}

func TestTaskCounts(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	s.RecordTask(terminalTask("task-1", models.TaskStatusCompleted, now))
	s.RecordTask(terminalTask("task-2", models.TaskStatusCompleted, now))
	s.RecordTask(terminalTask("task-3", models.TaskStatusFailed, now))

	counts, err := s.TaskCounts()
	if err != nil {
		t.Fatalf("TaskCounts: %v", err)
	}
	if counts[models.TaskStatusCompleted] != 2 || counts[models.TaskStatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestPurge(t *testing.T) {
	s := openTestStore(t)

	now := time.Now()
	s.RecordTask(terminalTask("old", models.TaskStatusCompleted, now.Add(-2*time.Hour)))
	s.RecordTask(terminalTask("recent", models.TaskStatusCompleted, now))

	oldDone := now.Add(-48 * time.Hour)
	s.RecordWorkflow(&models.Workflow{
		ID: "wf-old", Name: "old", Status: models.WorkflowStatusCompleted,
		CreatedAt: oldDone.Add(-time.Minute), CompletedAt: &oldDone,
	})

	removed, err := s.Purge(time.Hour, 24*time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}

	records, err := s.RecentTasks(10)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(records) != 1 || records[0].ID != "recent" {
		t.Errorf("expected only the recent task to survive, got %+v", records)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now()
	if err := s.RecordTask(terminalTask("task-1", models.TaskStatusCompleted, now)); err != nil {
		t.Fatalf("RecordTask: %v", err)
	}
	s.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	records, err := s2.RecentTasks(10)
	if err != nil {
		t.Fatalf("RecentTasks: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("expected data to survive reopen, got %d records", len(records))
	}
}
