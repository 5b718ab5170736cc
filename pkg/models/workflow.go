package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// WorkflowStatusCreated indicates the workflow exists but has not started.
	WorkflowStatusCreated WorkflowStatus = "created"
	// WorkflowStatusRunning indicates the driver is executing steps.
	WorkflowStatusRunning WorkflowStatus = "running"
	// WorkflowStatusPaused indicates the driver is halted and resumable.
	WorkflowStatusPaused WorkflowStatus = "paused"
	// WorkflowStatusCompleted indicates every step completed or was skipped.
	WorkflowStatusCompleted WorkflowStatus = "completed"
	// WorkflowStatusFailed indicates a non-allow-failure step failed or the
	// workflow deadlocked.
	WorkflowStatusFailed WorkflowStatus = "failed"
	// WorkflowStatusCancelled indicates the workflow was cancelled.
	WorkflowStatusCancelled WorkflowStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case WorkflowStatusCreated, WorkflowStatusRunning, WorkflowStatusPaused,
		WorkflowStatusCompleted, WorkflowStatusFailed, WorkflowStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed, failed, and cancelled.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusFailed || s == WorkflowStatusCancelled
}

// StepStatus represents the lifecycle state of one workflow step.
type StepStatus string

const (
	// StepStatusPending indicates the step has not been dispatched.
	StepStatusPending StepStatus = "pending"
	// StepStatusRunning indicates the step's task is in flight.
	StepStatusRunning StepStatus = "running"
	// StepStatusCompleted indicates the step finished successfully.
	StepStatusCompleted StepStatus = "completed"
	// StepStatusFailed indicates the step exhausted its retries.
	StepStatusFailed StepStatus = "failed"
	// StepStatusSkipped indicates a failed allow-failure step was passed over.
	StepStatusSkipped StepStatus = "skipped"
	// StepStatusCancelled indicates the step was cancelled.
	StepStatusCancelled StepStatus = "cancelled"
)

// Terminal returns true once the step can no longer change state.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped, StepStatusCancelled:
		return true
	default:
		return false
	}
}

// WorkflowStep is one node in a workflow's step graph.
type WorkflowStep struct {
	// ID identifies the step within its workflow.
	ID string `json:"id"`
	// Name is the human-readable step name.
	Name string `json:"name"`
	// Capability is the operation the step's task requires.
	Capability string `json:"capability"`
	// AgentClass restricts the step's task to agents of this class.
	AgentClass string `json:"agent_class"`
	// Params is the payload for the step's task.
	Params map[string]any `json:"params,omitempty"`
	// Dependencies lists step IDs that must complete first.
	Dependencies []string `json:"dependencies,omitempty"`
	// Status is the current step state.
	Status StepStatus `json:"status"`
	// Priority is passed through to the step's task.
	Priority TaskPriority `json:"priority"`
	// AllowFailure lets the workflow continue past a failed step.
	AllowFailure bool `json:"allow_failure"`
	// RequireApproval gates dispatch on an external approval.
	RequireApproval bool `json:"require_approval"`
	// RetryCount is the step-level retry counter, independent of the
	// task-level one.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the step-level retry budget.
	MaxRetries int `json:"max_retries"`
	// Timeout bounds each task attempt spawned by this step.
	Timeout time.Duration `json:"timeout,omitempty"`
	// Resources is passed through to the step's task.
	Resources []ResourceRequirement `json:"resources,omitempty"`
	// TaskID links to the most recent task dispatched for this step.
	TaskID string `json:"task_id,omitempty"`
	// Result holds the step output on success.
	Result Result `json:"result,omitempty"`
	// Error holds the failure message, if any.
	Error string `json:"error,omitempty"`
	// StartedAt is when the step was first dispatched.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the step reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Workflow is a directed graph of steps driven to completion.
type Workflow struct {
	// ID is the unique identifier for this workflow.
	ID string `json:"id"`
	// Name is the human-readable workflow name.
	Name string `json:"name"`
	// Steps is the ordered step list; order is presentation only,
	// execution order follows dependencies.
	Steps []*WorkflowStep `json:"steps"`
	// Status is the current lifecycle state.
	Status WorkflowStatus `json:"status"`
	// Error holds the failure reason, if any.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the workflow was created.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when the driver first ran.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the workflow reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (w *Workflow) Step(id string) *WorkflowStep {
	for _, s := range w.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Progress is the fraction of completed-or-skipped steps over total steps,
// as a percentage. It is always derived, never estimated from elapsed time.
func (w *Workflow) Progress() float64 {
	if len(w.Steps) == 0 {
		return 100.0
	}
	done := 0
	for _, s := range w.Steps {
		if s.Status == StepStatusCompleted || s.Status == StepStatusSkipped {
			done++
		}
	}
	return float64(done) / float64(len(w.Steps)) * 100.0
}

// Complete returns true when every step is completed or skipped.
func (w *Workflow) Complete() bool {
	for _, s := range w.Steps {
		if s.Status != StepStatusCompleted && s.Status != StepStatusSkipped {
			return false
		}
	}
	return true
}

// Failed returns true when any non-allow-failure step has failed.
func (w *Workflow) Failed() bool {
	for _, s := range w.Steps {
		if s.Status == StepStatusFailed && !s.AllowFailure {
			return true
		}
	}
	return false
}

// NextEligibleStep returns the first pending step whose dependencies are
// all completed, or nil when none is eligible.
func (w *Workflow) NextEligibleStep() *WorkflowStep {
	completed := make(map[string]bool, len(w.Steps))
	for _, s := range w.Steps {
		if s.Status == StepStatusCompleted {
			completed[s.ID] = true
		}
	}
	for _, s := range w.Steps {
		if s.Status != StepStatusPending {
			continue
		}
		eligible := true
		for _, dep := range s.Dependencies {
			if !completed[dep] {
				eligible = false
				break
			}
		}
		if eligible {
			return s
		}
	}
	return nil
}
