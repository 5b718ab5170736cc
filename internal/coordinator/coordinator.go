// Package coordinator tracks agent status reports and applies
// coordination rules and error recovery across the fleet.
package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/ShayCichocki/foreman/internal/bus"
	"github.com/ShayCichocki/foreman/pkg/models"
)

// StatusReport is the coordinator's view of one agent.
type StatusReport struct {
	// AgentID identifies the reporting agent.
	AgentID string `json:"agent_id"`
	// Status is the agent's lifecycle state.
	Status models.AgentStatus `json:"status"`
	// CurrentTask is the task in flight, empty when idle.
	CurrentTask string `json:"current_task,omitempty"`
	// Health is "healthy" or "unhealthy".
	Health string `json:"health"`
	// ResourceUsage maps resource type to its current usage level.
	ResourceUsage map[string]float64 `json:"resource_usage,omitempty"`
	// ErrorCount is the agent's accumulated error count.
	ErrorCount int `json:"error_count"`
	// LastActivity is when the agent last did anything.
	LastActivity time.Time `json:"last_activity"`
	// Uptime is how long the agent has been registered.
	Uptime time.Duration `json:"uptime"`
}

// RuleResult is what a coordination rule recommends.
type RuleResult struct {
	Actions         []string
	Recommendations []string
}

// Rule inspects the current status reports and suggests actions.
type Rule func(reports map[string]StatusReport, workflowContext map[string]any) RuleResult

// ErrorHandler attempts recovery for one class of agent error.
type ErrorHandler func(agentID string, errorInfo map[string]any) (RuleResult, error)

// Outcome aggregates the results of a coordination pass.
type Outcome struct {
	Success         bool
	Actions         []string
	Recommendations []string
	Warnings        []string
}

// Health summarizes fleet health.
type Health struct {
	TotalAgents      int     `json:"total_agents"`
	HealthyAgents    int     `json:"healthy_agents"`
	ErrorAgents      int     `json:"error_agents"`
	HealthPercentage float64 `json:"health_percentage"`
	SystemStatus     string  `json:"system_status"`
}

// Coordinator holds status reports and runs rules over them. Rules never
// mutate agents directly; they emit recommendations the orchestrator or
// an operator acts on.
type Coordinator struct {
	mu            sync.RWMutex
	bus           *bus.MessageBus
	reports       map[string]StatusReport
	rules         []Rule
	errorHandlers map[string]ErrorHandler
	debugLog      func(format string, args ...interface{})
}

// New creates a coordinator with the built-in load balancing and error
// recovery rules already registered.
func New(b *bus.MessageBus) *Coordinator {
	c := &Coordinator{
		bus:           b,
		reports:       make(map[string]StatusReport),
		errorHandlers: make(map[string]ErrorHandler),
		debugLog:      func(format string, args ...interface{}) {},
	}
	c.RegisterRule(LoadBalancingRule)
	c.RegisterRule(ErrorRecoveryRule)
	return c
}

// SetDebugLog sets the debug logging function.
func (c *Coordinator) SetDebugLog(fn func(format string, args ...interface{})) {
	if fn != nil {
		c.debugLog = fn
	}
}

// RegisterRule appends a coordination rule.
func (c *Coordinator) RegisterRule(rule Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = append(c.rules, rule)
}

// RegisterErrorHandler binds a handler to an error type, replacing any
// previous binding.
func (c *Coordinator) RegisterErrorHandler(errorType string, handler ErrorHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHandlers[errorType] = handler
}

// UpdateStatus stores the agent's report and broadcasts it on the bus.
func (c *Coordinator) UpdateStatus(report StatusReport) {
	c.mu.Lock()
	c.reports[report.AgentID] = report
	c.mu.Unlock()

	if c.bus != nil {
		_ = c.bus.Send(&models.Message{
			Sender: "coordinator",
			Type:   models.MessageStatusUpdate,
			Payload: map[string]any{
				"agent_id": report.AgentID,
				"status":   string(report.Status),
				"health":   report.Health,
			},
		})
	}
}

// Report returns the stored report for an agent.
func (c *Coordinator) Report(agentID string) (StatusReport, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	report, ok := c.reports[agentID]
	return report, ok
}

// Coordinate runs every registered rule against the current reports. A
// panicking rule is recorded as a warning and does not stop the pass.
func (c *Coordinator) Coordinate(workflowContext map[string]any) Outcome {
	c.mu.RLock()
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	reports := make(map[string]StatusReport, len(c.reports))
	for id, r := range c.reports {
		reports[id] = r
	}
	c.mu.RUnlock()

	outcome := Outcome{Success: true}
	for i, rule := range rules {
		result, err := runRule(rule, reports, workflowContext)
		if err != nil {
			outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("rule %d failed: %v", i, err))
			continue
		}
		outcome.Actions = append(outcome.Actions, result.Actions...)
		outcome.Recommendations = append(outcome.Recommendations, result.Recommendations...)
	}
	return outcome
}

// runRule executes one rule, converting a panic into an error.
func runRule(rule Rule, reports map[string]StatusReport, ctx map[string]any) (result RuleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule(reports, ctx), nil
}

// HandleError runs the handler registered for the error's type, falling
// back to the default heartbeat probe when no handler matches or the
// handler itself fails.
func (c *Coordinator) HandleError(agentID string, errorInfo map[string]any) RuleResult {
	errorType, _ := errorInfo["type"].(string)
	if errorType == "" {
		errorType = "unknown"
	}

	c.debugLog("[coordinator.HandleError] agent %s reported %s error", agentID, errorType)

	c.mu.RLock()
	handler, ok := c.errorHandlers[errorType]
	c.mu.RUnlock()

	if ok {
		result, err := handler(agentID, errorInfo)
		if err == nil {
			return result
		}
		c.debugLog("[coordinator.HandleError] handler for %s failed: %v", errorType, err)
	}

	return c.defaultRecovery(agentID)
}

// defaultRecovery probes the agent with a heartbeat request. The reply
// is checked on the next message processing pass; here we only record
// whether the probe could be sent.
func (c *Coordinator) defaultRecovery(agentID string) RuleResult {
	result := RuleResult{Recommendations: []string{"Monitor agent closely"}}

	if c.bus == nil {
		result.Actions = append(result.Actions, "no message bus; manual inspection required")
		return result
	}

	correlationID, err := c.bus.SendRequest("coordinator", agentID, models.MessageHeartbeat,
		map[string]any{"ping": true}, 5*time.Second)
	if err != nil {
		result.Actions = append(result.Actions, fmt.Sprintf("heartbeat failed: %v", err))
		return result
	}

	result.Actions = append(result.Actions, fmt.Sprintf("heartbeat probe sent (correlation %s)", correlationID))
	return result
}

// SystemHealth summarizes the fleet from the stored reports.
func (c *Coordinator) SystemHealth() Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	h := Health{TotalAgents: len(c.reports)}
	for _, report := range c.reports {
		if report.Health == models.HealthHealthy {
			h.HealthyAgents++
		}
		if report.ErrorCount > 0 {
			h.ErrorAgents++
		}
	}

	if h.TotalAgents > 0 {
		h.HealthPercentage = float64(h.HealthyAgents) / float64(h.TotalAgents) * 100
	}
	if h.HealthyAgents == h.TotalAgents {
		h.SystemStatus = "healthy"
	} else {
		h.SystemStatus = "degraded"
	}
	return h
}

// LoadBalancingRule flags agents with cpu usage above 80 and suggests
// redistributing work to healthy idle agents.
func LoadBalancingRule(reports map[string]StatusReport, _ map[string]any) RuleResult {
	var result RuleResult

	var overloaded, idle []string
	for agentID, report := range reports {
		if report.ResourceUsage["cpu"] > 80 {
			overloaded = append(overloaded, agentID)
		}
		if report.Status == models.AgentStatusIdle && report.Health == models.HealthHealthy {
			idle = append(idle, agentID)
		}
	}

	if len(overloaded) > 0 {
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("consider redistributing load from agents: %v", overloaded))
	}
	if len(overloaded) > 0 && len(idle) > 0 {
		result.Actions = append(result.Actions,
			fmt.Sprintf("redistribute tasks from %v to %v", overloaded, idle))
	}
	return result
}

// ErrorRecoveryRule flags agents whose error count exceeds 5.
func ErrorRecoveryRule(reports map[string]StatusReport, _ map[string]any) RuleResult {
	var result RuleResult
	for agentID, report := range reports {
		if report.ErrorCount > 5 {
			result.Actions = append(result.Actions,
				fmt.Sprintf("agent %s has high error count, run health check", agentID))
		}
	}
	return result
}
