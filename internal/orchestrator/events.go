// Package orchestrator manages the coordination of agents and tasks.
package orchestrator

import (
	"time"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskQueued indicates a task was accepted into the queue.
	EventTaskQueued EventType = "task_queued"
	// EventTaskAssigned indicates a task was matched to an agent.
	EventTaskAssigned EventType = "task_assigned"
	// EventTaskStarted indicates a task has started execution.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task failed permanently.
	EventTaskFailed EventType = "task_failed"
	// EventTaskRetrying indicates a failed task was requeued for retry.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
	// EventAgentUnhealthy indicates the health sweep flagged an agent.
	EventAgentUnhealthy EventType = "agent_unhealthy"
	// EventResourceDeferred indicates a task was deferred on resources.
	EventResourceDeferred EventType = "resource_deferred"
)

// Event represents an event emitted by the orchestrator. These events
// feed the dashboard and any external observers.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskName is the name of the related task, if applicable.
	TaskName string
	// AgentID is the ID of the related agent, if applicable.
	AgentID string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
