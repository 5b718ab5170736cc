package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is queued and unassigned.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusWaitingDependencies indicates the task is held until its
	// dependency tasks complete. It is a sub-state of pending.
	TaskStatusWaitingDependencies TaskStatus = "waiting_dependencies"
	// TaskStatusAssigned indicates the task has an agent but has not started.
	TaskStatusAssigned TaskStatus = "assigned"
	// TaskStatusRunning indicates the task is executing.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed permanently.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusWaitingDependencies, TaskStatusAssigned,
		TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed, failed, and cancelled.
// Terminal tasks are immutable.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed || s == TaskStatusCancelled
}

// TaskPriority orders tasks across queue buckets. Higher values win.
type TaskPriority int

const (
	// PriorityLow is the lowest scheduling priority.
	PriorityLow TaskPriority = 1
	// PriorityNormal is the default scheduling priority.
	PriorityNormal TaskPriority = 2
	// PriorityHigh preempts normal and low work.
	PriorityHigh TaskPriority = 3
	// PriorityCritical preempts everything else.
	PriorityCritical TaskPriority = 4
)

// Valid returns true if the priority is a known value.
func (p TaskPriority) Valid() bool {
	return p >= PriorityLow && p <= PriorityCritical
}

// String returns the lowercase priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority maps a priority name to its value.
// Unknown names fall back to normal.
func ParsePriority(s string) TaskPriority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// ResourceRequirement declares how much of one resource type a task needs.
type ResourceRequirement struct {
	// Type is the resource type name (e.g. "cpu", "memory").
	Type string `json:"type" yaml:"type"`
	// Amount is how much of the resource the task reserves.
	Amount float64 `json:"amount" yaml:"amount"`
	// Unit describes the amount (e.g. "percent", "mb").
	Unit string `json:"unit,omitempty" yaml:"unit,omitempty"`
}

// Result is the opaque outcome bag a task execution returns.
type Result map[string]any

// Task represents one schedulable unit of work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Name is the human-readable task name.
	Name string `json:"name"`
	// Capability is the operation the task requires of its agent.
	Capability string `json:"capability"`
	// AgentClass restricts assignment to agents of this class.
	AgentClass string `json:"agent_class"`
	// Priority is the queue bucket for this task.
	Priority TaskPriority `json:"priority"`
	// Params is the opaque payload handed to the executor.
	Params map[string]any `json:"params,omitempty"`
	// Dependencies lists task IDs that must complete first.
	Dependencies []string `json:"dependencies,omitempty"`
	// Status is the current lifecycle state.
	Status TaskStatus `json:"status"`
	// AssignedAgent is the ID of the agent executing this task.
	AssignedAgent string `json:"assigned_agent,omitempty"`
	// CreatedAt is when the task was submitted.
	CreatedAt time.Time `json:"created_at"`
	// StartedAt is when execution began, if it has.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Result holds the execution output on success.
	Result Result `json:"result,omitempty"`
	// Error holds the failure message, if any.
	Error string `json:"error,omitempty"`
	// RetryCount is the number of retries consumed so far.
	RetryCount int `json:"retry_count"`
	// MaxRetries is the retry budget for execution failures.
	MaxRetries int `json:"max_retries"`
	// Resources lists the capacity this task reserves while assigned.
	Resources []ResourceRequirement `json:"resources,omitempty"`
	// Timeout bounds a single execution attempt. Zero means none.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// ExecutionTime returns the wall time of the last attempt, or zero when
// the task has not both started and finished.
func (t *Task) ExecutionTime() time.Duration {
	if t.StartedAt == nil || t.CompletedAt == nil {
		return 0
	}
	return t.CompletedAt.Sub(*t.StartedAt)
}

// CanRetry returns true while retry budget remains.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}
