// Package models defines the shared data model for foreman: agents, tasks,
// workflows, and inter-agent messages.
package models

import "time"

// AgentStatus represents the current state of an agent.
type AgentStatus string

const (
	// AgentStatusIdle indicates the agent is ready for work.
	AgentStatusIdle AgentStatus = "idle"
	// AgentStatusBusy indicates the agent is executing a task.
	AgentStatusBusy AgentStatus = "busy"
	// AgentStatusCompleted indicates the agent just finished a task.
	AgentStatusCompleted AgentStatus = "completed"
	// AgentStatusError indicates the agent's last task failed.
	AgentStatusError AgentStatus = "error"
	// AgentStatusPaused indicates the agent is temporarily suspended.
	AgentStatusPaused AgentStatus = "paused"
	// AgentStatusInitializing indicates the agent is starting up.
	AgentStatusInitializing AgentStatus = "initializing"
	// AgentStatusTerminating indicates the agent is shutting down.
	AgentStatusTerminating AgentStatus = "terminating"
)

// Valid returns true if the status is a known value.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusIdle, AgentStatusBusy, AgentStatusCompleted,
		AgentStatusError, AgentStatusPaused, AgentStatusInitializing,
		AgentStatusTerminating:
		return true
	default:
		return false
	}
}

// HealthHealthy and HealthUnhealthy are the two health flag values.
const (
	HealthHealthy   = "healthy"
	HealthUnhealthy = "unhealthy"
)

// Capability is a named operation an agent can perform.
type Capability struct {
	// Name is the operation name tasks request (e.g. "model_training").
	Name string `json:"name"`
	// Description explains what the capability does.
	Description string `json:"description,omitempty"`
	// EstimatedDuration is the expected execution time.
	EstimatedDuration time.Duration `json:"estimated_duration,omitempty"`
	// Cost is the per-resource-type cost of exercising the capability.
	Cost map[string]float64 `json:"cost,omitempty"`
}

// Performance holds an agent's running task statistics.
type Performance struct {
	// Completed is the number of tasks finished successfully.
	Completed int `json:"completed"`
	// Failed is the number of tasks that failed.
	Failed int `json:"failed"`
	// AverageDuration is the cumulative mean execution time.
	AverageDuration time.Duration `json:"average_duration"`
	// SuccessRate is Completed / (Completed + Failed).
	SuccessRate float64 `json:"success_rate"`
	// UpdatedAt is when the statistics last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Record folds one task outcome into the running statistics.
func (p *Performance) Record(duration time.Duration, success bool) {
	total := p.Completed + p.Failed
	// Cumulative mean over all outcomes, success or not.
	p.AverageDuration = (p.AverageDuration*time.Duration(total) + duration) / time.Duration(total+1)
	if success {
		p.Completed++
	} else {
		p.Failed++
	}
	p.SuccessRate = float64(p.Completed) / float64(p.Completed+p.Failed)
	p.UpdatedAt = time.Now()
}

// Agent represents a logical worker with a declared capability set.
type Agent struct {
	// ID is the unique identifier for this agent.
	ID string `json:"id"`
	// Name is the human-readable agent name.
	Name string `json:"name"`
	// Class groups agents by specialty (e.g. "model_trainer").
	Class string `json:"class"`
	// Status is the current lifecycle state.
	Status AgentStatus `json:"status"`
	// Capabilities lists the operations this agent can perform.
	Capabilities []Capability `json:"capabilities"`
	// CurrentTask is the ID of the task being executed, if any.
	CurrentTask string `json:"current_task,omitempty"`
	// Load is the current load factor in [0, 1].
	Load float64 `json:"load"`
	// Health is "healthy" or "unhealthy".
	Health string `json:"health"`
	// Performance holds running task statistics.
	Performance Performance `json:"performance"`
	// ErrorCount is the number of errors observed on this agent.
	ErrorCount int `json:"error_count"`
	// LastError is the most recent error message, if any.
	LastError string `json:"last_error,omitempty"`
	// Config is an opaque per-agent configuration bag.
	Config map[string]any `json:"config,omitempty"`
	// CreatedAt is when the agent registered.
	CreatedAt time.Time `json:"created_at"`
	// LastActivity is the last time the agent did anything.
	LastActivity time.Time `json:"last_activity"`
}

// Available reports whether the agent may be assigned a new task:
// idle, not fully loaded, and healthy.
func (a *Agent) Available() bool {
	return a.Status == AgentStatusIdle && a.Load < 1.0 && a.Health == HealthHealthy
}

// CanHandle returns true if the capability name is in the declared set.
func (a *Agent) CanHandle(capability string) bool {
	for _, c := range a.Capabilities {
		if c.Name == capability {
			return true
		}
	}
	return false
}

// GetCapability returns the named capability, or nil if not declared.
func (a *Agent) GetCapability(name string) *Capability {
	for i := range a.Capabilities {
		if a.Capabilities[i].Name == name {
			return &a.Capabilities[i]
		}
	}
	return nil
}

// Touch updates the last-activity timestamp.
func (a *Agent) Touch() {
	a.LastActivity = time.Now()
}

// Uptime returns how long the agent has been registered.
func (a *Agent) Uptime() time.Duration {
	return time.Since(a.CreatedAt)
}
