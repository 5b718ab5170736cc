package models

import (
	"testing"
	"time"
)

func TestTaskStatusValid(t *testing.T) {
	valid := []TaskStatus{
		TaskStatusPending, TaskStatusWaitingDependencies, TaskStatusAssigned,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled,
	}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if TaskStatus("bogus").Valid() {
		t.Error("expected bogus status to be invalid")
	}
}

func TestTaskStatusTerminal(t *testing.T) {
	terminal := []TaskStatus{TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}
	open := []TaskStatus{TaskStatusPending, TaskStatusWaitingDependencies, TaskStatusAssigned, TaskStatusRunning}
	for _, s := range open {
		if s.Terminal() {
			t.Errorf("expected %q to be non-terminal", s)
		}
	}
}

func TestParsePriority(t *testing.T) {
	cases := map[string]TaskPriority{
		"critical": PriorityCritical,
		"high":     PriorityHigh,
		"normal":   PriorityNormal,
		"low":      PriorityLow,
		"":         PriorityNormal,
		"weird":    PriorityNormal,
	}
	for in, want := range cases {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestTaskCanRetry(t *testing.T) {
	task := &Task{MaxRetries: 2}
	if !task.CanRetry() {
		t.Error("expected fresh task to be retryable")
	}
	task.RetryCount = 2
	if task.CanRetry() {
		t.Error("expected exhausted task to not be retryable")
	}
}

func TestAgentAvailable(t *testing.T) {
	agent := &Agent{Status: AgentStatusIdle, Load: 0.0, Health: HealthHealthy}
	if !agent.Available() {
		t.Error("expected idle healthy agent to be available")
	}

	busy := &Agent{Status: AgentStatusBusy, Load: 0.5, Health: HealthHealthy}
	if busy.Available() {
		t.Error("expected busy agent to be unavailable")
	}

	loaded := &Agent{Status: AgentStatusIdle, Load: 1.0, Health: HealthHealthy}
	if loaded.Available() {
		t.Error("expected fully loaded agent to be unavailable")
	}

	sick := &Agent{Status: AgentStatusIdle, Load: 0.0, Health: HealthUnhealthy}
	if sick.Available() {
		t.Error("expected unhealthy agent to be unavailable")
	}
}

func TestAgentCanHandle(t *testing.T) {
	agent := &Agent{Capabilities: []Capability{{Name: "model_training"}, {Name: "cross_validation"}}}
	if !agent.CanHandle("model_training") {
		t.Error("expected declared capability to match")
	}
	if agent.CanHandle("forecast_generation") {
		t.Error("expected undeclared capability to not match")
	}
}

func TestPerformanceRecord(t *testing.T) {
	var p Performance
	p.Record(2*time.Second, true)
	p.Record(4*time.Second, true)
	p.Record(6*time.Second, false)

	if p.Completed != 2 || p.Failed != 1 {
		t.Errorf("expected 2 completed / 1 failed, got %d / %d", p.Completed, p.Failed)
	}
	wantRate := 2.0 / 3.0
	if p.SuccessRate < wantRate-0.001 || p.SuccessRate > wantRate+0.001 {
		t.Errorf("expected success rate %.3f, got %.3f", wantRate, p.SuccessRate)
	}
	if p.AverageDuration != 4*time.Second {
		t.Errorf("expected average duration 4s, got %s", p.AverageDuration)
	}
}

func TestWorkflowProgress(t *testing.T) {
	w := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusCompleted},
		{ID: "b", Status: StepStatusSkipped},
		{ID: "c", Status: StepStatusPending},
		{ID: "d", Status: StepStatusPending},
	}}
	if got := w.Progress(); got != 50.0 {
		t.Errorf("expected progress 50, got %.1f", got)
	}

	empty := &Workflow{}
	if got := empty.Progress(); got != 100.0 {
		t.Errorf("expected empty workflow progress 100, got %.1f", got)
	}
}

func TestWorkflowCompleteAndFailed(t *testing.T) {
	w := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusCompleted},
		{ID: "b", Status: StepStatusSkipped},
	}}
	if !w.Complete() {
		t.Error("expected workflow with completed+skipped steps to be complete")
	}

	failedOK := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusFailed, AllowFailure: true},
	}}
	if failedOK.Failed() {
		t.Error("expected allow-failure step to not fail the workflow")
	}

	failedBad := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusFailed},
	}}
	if !failedBad.Failed() {
		t.Error("expected failed step to fail the workflow")
	}
}

func TestWorkflowNextEligibleStep(t *testing.T) {
	w := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusCompleted},
		{ID: "b", Status: StepStatusPending, Dependencies: []string{"a"}},
		{ID: "c", Status: StepStatusPending, Dependencies: []string{"b"}},
	}}
	next := w.NextEligibleStep()
	if next == nil || next.ID != "b" {
		t.Fatalf("expected next eligible step b, got %v", next)
	}

	blocked := &Workflow{Steps: []*WorkflowStep{
		{ID: "a", Status: StepStatusRunning},
		{ID: "b", Status: StepStatusPending, Dependencies: []string{"a"}},
	}}
	if blocked.NextEligibleStep() != nil {
		t.Error("expected no eligible step while dependency is running")
	}
}

func TestMessageExpired(t *testing.T) {
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	expired := &Message{ExpiresAt: &past}
	if !expired.Expired() {
		t.Error("expected past expiry to be expired")
	}
	fresh := &Message{ExpiresAt: &future}
	if fresh.Expired() {
		t.Error("expected future expiry to not be expired")
	}
	forever := &Message{}
	if forever.Expired() {
		t.Error("expected nil expiry to never expire")
	}
}
