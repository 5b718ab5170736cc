// Package registry holds agent records and exposes availability queries.
// It owns all agent mutation; nothing executes tasks here.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/foreman/internal/bus"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// ErrAgentBusy indicates removal was attempted on a busy agent.
var ErrAgentBusy = errors.New("agent is busy")

// ErrAgentNotFound indicates the agent ID is not registered.
var ErrAgentNotFound = errors.New("agent not found")

// Filter narrows List results.
type Filter struct {
	// Class, when non-empty, restricts to agents of that class.
	Class string
	// AvailableOnly restricts to agents that may take new work.
	AvailableOnly bool
}

// Registry is the bookkeeping home for agents: capabilities, status,
// load, health, and performance. Registration also creates the agent's
// mailbox on the message bus.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*models.Agent
	bus    *bus.MessageBus
	// debugLog is an optional logging function.
	debugLog func(format string, args ...interface{})
}

// New creates an empty registry attached to the message bus.
func New(b *bus.MessageBus) *Registry {
	return &Registry{
		agents:   make(map[string]*models.Agent),
		bus:      b,
		debugLog: func(format string, args ...interface{}) {},
	}
}

// SetDebugLog sets the debug logging function.
func (r *Registry) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		r.debugLog = fn
	}
}

// Register creates an agent record, registers its mailbox, and subscribes
// it to status updates and broadcasts.
func (r *Registry) Register(name, class string, capabilities []models.Capability, config map[string]any) *models.Agent {
	now := time.Now()
	agent := &models.Agent{
		ID:           class + "-" + uuid.New().String()[:8],
		Name:         name,
		Class:        class,
		Status:       models.AgentStatusIdle,
		Capabilities: capabilities,
		Health:       models.HealthHealthy,
		Config:       config,
		CreatedAt:    now,
		LastActivity: now,
	}

	r.mu.Lock()
	r.agents[agent.ID] = agent
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Register(agent.ID)
		r.bus.Subscribe(agent.ID, models.MessageStatusUpdate)
		r.bus.Subscribe(agent.ID, models.MessageBroadcast)
	}

	r.debugLog("[registry.Register] agent %s (%s) registered with %d capabilities", agent.ID, name, len(capabilities))
	return agent
}

// Get returns the agent by ID.
func (r *Registry) Get(id string) (*models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agent, ok := r.agents[id]
	return agent, ok
}

// List returns agents matching the filter, any order.
func (r *Registry) List(filter Filter) []*models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.Agent
	for _, agent := range r.agents {
		if filter.Class != "" && agent.Class != filter.Class {
			continue
		}
		if filter.AvailableOnly && !agent.Available() {
			continue
		}
		out = append(out, agent)
	}
	return out
}

// UpdateStatus sets the agent's lifecycle state.
func (r *Registry) UpdateStatus(id string, status models.AgentStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid agent status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("update status %s: %w", id, ErrAgentNotFound)
	}
	agent.Status = status
	agent.Touch()
	return nil
}

// SetCurrentTask records the task an agent is working on ("" to clear).
func (r *Registry) SetCurrentTask(id, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("set current task %s: %w", id, ErrAgentNotFound)
	}
	agent.CurrentTask = taskID
	agent.Touch()
	return nil
}

// AdjustLoad shifts the agent's load factor by delta, clamped to [0, 1].
func (r *Registry) AdjustLoad(id string, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("adjust load %s: %w", id, ErrAgentNotFound)
	}
	agent.Load += delta
	if agent.Load < 0 {
		agent.Load = 0
	}
	if agent.Load > 1 {
		agent.Load = 1
	}
	return nil
}

// RecordOutcome folds a task outcome into the agent's running statistics.
// Failures also bump the error counter and record the message.
func (r *Registry) RecordOutcome(id string, duration time.Duration, success bool, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("record outcome %s: %w", id, ErrAgentNotFound)
	}
	agent.Performance.Record(duration, success)
	if !success {
		agent.ErrorCount++
		agent.LastError = errMsg
	}
	agent.Touch()
	return nil
}

// MarkUnhealthy flags the agent as unhealthy.
func (r *Registry) MarkUnhealthy(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("mark unhealthy %s: %w", id, ErrAgentNotFound)
	}
	agent.Health = models.HealthUnhealthy
	return nil
}

// SweepInactive marks busy agents with no activity inside the window as
// unhealthy, and restores health to idle agents. Returns the IDs newly
// marked unhealthy.
func (r *Registry) SweepInactive(window time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-window)
	var flagged []string
	for _, agent := range r.agents {
		if agent.Status == models.AgentStatusBusy && agent.LastActivity.Before(cutoff) {
			if agent.Health != models.HealthUnhealthy {
				agent.Health = models.HealthUnhealthy
				agent.ErrorCount++
				flagged = append(flagged, agent.ID)
				r.debugLog("[registry.SweepInactive] agent %s unresponsive since %s", agent.ID, agent.LastActivity.Format(time.RFC3339))
			}
			continue
		}
		if agent.Health == models.HealthUnhealthy && agent.Status == models.AgentStatusIdle {
			agent.Health = models.HealthHealthy
			agent.ErrorCount = 0
		}
	}
	return flagged
}

// Reset clears error state and returns the agent to idle, zero load,
// healthy.
func (r *Registry) Reset(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("reset %s: %w", id, ErrAgentNotFound)
	}
	agent.Status = models.AgentStatusIdle
	agent.CurrentTask = ""
	agent.Load = 0
	agent.Health = models.HealthHealthy
	agent.ErrorCount = 0
	agent.LastError = ""
	agent.Touch()
	return nil
}

// Remove deletes the agent. Rejected while the agent is busy.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	agent, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrAgentNotFound)
	}
	if agent.Status == models.AgentStatusBusy {
		r.mu.Unlock()
		return fmt.Errorf("remove %s: %w", id, ErrAgentBusy)
	}
	delete(r.agents, id)
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Unregister(id)
	}
	return nil
}

// Count returns the number of registered agents.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// CountByStatus returns agent counts keyed by status.
func (r *Registry) CountByStatus() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int)
	for _, agent := range r.agents {
		out[string(agent.Status)]++
	}
	return out
}
