package coordinator

import (
	"errors"
	"strings"
	"testing"

	"github.com/ShayCichocki/foreman/internal/bus"
	"github.com/ShayCichocki/foreman/pkg/models"
)

func newTestCoordinator() (*Coordinator, *bus.MessageBus) {
	b := bus.New()
	return New(b), b
}

func TestUpdateStatusBroadcasts(t *testing.T) {
	c, b := newTestCoordinator()
	b.Register("watcher")
	b.Subscribe("watcher", models.MessageStatusUpdate)

	c.UpdateStatus(StatusReport{
		AgentID: "a1",
		Status:  models.AgentStatusBusy,
		Health:  models.HealthHealthy,
	})

	report, ok := c.Report("a1")
	if !ok || report.Status != models.AgentStatusBusy {
		t.Fatalf("stored report = %v, %v", report, ok)
	}

	msgs := b.Receive("watcher", 10)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 broadcast, got %d", len(msgs))
	}
	if msgs[0].Payload["agent_id"] != "a1" {
		t.Errorf("unexpected payload %v", msgs[0].Payload)
	}
}

func TestLoadBalancingRule(t *testing.T) {
	reports := map[string]StatusReport{
		"hot":  {AgentID: "hot", Status: models.AgentStatusBusy, Health: models.HealthHealthy, ResourceUsage: map[string]float64{"cpu": 95}},
		"cool": {AgentID: "cool", Status: models.AgentStatusIdle, Health: models.HealthHealthy, ResourceUsage: map[string]float64{"cpu": 5}},
	}

	result := LoadBalancingRule(reports, nil)
	if len(result.Recommendations) == 0 {
		t.Error("expected overload recommendation")
	}
	if len(result.Actions) != 1 || !strings.Contains(result.Actions[0], "hot") {
		t.Errorf("expected redistribution action, got %v", result.Actions)
	}
}

func TestLoadBalancingRuleNoIdleAgents(t *testing.T) {
	reports := map[string]StatusReport{
		"hot": {AgentID: "hot", Status: models.AgentStatusBusy, Health: models.HealthHealthy, ResourceUsage: map[string]float64{"cpu": 95}},
	}

	result := LoadBalancingRule(reports, nil)
	if len(result.Actions) != 0 {
		t.Errorf("expected no actions without idle agents, got %v", result.Actions)
	}
	if len(result.Recommendations) != 1 {
		t.Errorf("expected one recommendation, got %v", result.Recommendations)
	}
}

func TestErrorRecoveryRule(t *testing.T) {
	reports := map[string]StatusReport{
		"flaky":  {AgentID: "flaky", ErrorCount: 6},
		"steady": {AgentID: "steady", ErrorCount: 5},
	}

	result := ErrorRecoveryRule(reports, nil)
	if len(result.Actions) != 1 || !strings.Contains(result.Actions[0], "flaky") {
		t.Errorf("expected action for flaky only, got %v", result.Actions)
	}
}

func TestCoordinateSurvivesPanickingRule(t *testing.T) {
	c, _ := newTestCoordinator()
	c.RegisterRule(func(reports map[string]StatusReport, ctx map[string]any) RuleResult {
		panic("bad rule")
	})
	c.RegisterRule(func(reports map[string]StatusReport, ctx map[string]any) RuleResult {
		return RuleResult{Actions: []string{"still ran"}}
	})

	outcome := c.Coordinate(nil)
	if !outcome.Success {
		t.Error("pass should succeed despite a bad rule")
	}
	if len(outcome.Warnings) != 1 {
		t.Errorf("expected one warning, got %v", outcome.Warnings)
	}

	found := false
	for _, a := range outcome.Actions {
		if a == "still ran" {
			found = true
		}
	}
	if !found {
		t.Error("rule after the panicking one did not run")
	}
}

func TestHandleErrorUsesRegisteredHandler(t *testing.T) {
	c, _ := newTestCoordinator()
	c.RegisterErrorHandler("timeout", func(agentID string, errorInfo map[string]any) (RuleResult, error) {
		return RuleResult{Actions: []string{"restarted " + agentID}}, nil
	})

	result := c.HandleError("a1", map[string]any{"type": "timeout"})
	if len(result.Actions) != 1 || result.Actions[0] != "restarted a1" {
		t.Errorf("expected handler result, got %v", result.Actions)
	}
}

func TestHandleErrorFallsBackToHeartbeat(t *testing.T) {
	c, b := newTestCoordinator()
	b.Register("coordinator")
	b.Register("a1")

	// Failing handler falls through to the default probe.
	c.RegisterErrorHandler("timeout", func(agentID string, errorInfo map[string]any) (RuleResult, error) {
		return RuleResult{}, errors.New("handler broken")
	})

	result := c.HandleError("a1", map[string]any{"type": "timeout"})
	if len(result.Actions) != 1 || !strings.Contains(result.Actions[0], "heartbeat probe sent") {
		t.Errorf("expected heartbeat probe, got %v", result.Actions)
	}

	msgs := b.Receive("a1", 10)
	if len(msgs) != 1 || msgs[0].Type != models.MessageHeartbeat {
		t.Fatalf("expected heartbeat message, got %v", msgs)
	}
}

func TestSystemHealth(t *testing.T) {
	c, _ := newTestCoordinator()

	c.UpdateStatus(StatusReport{AgentID: "a1", Health: models.HealthHealthy})
	c.UpdateStatus(StatusReport{AgentID: "a2", Health: models.HealthHealthy, ErrorCount: 2})
	c.UpdateStatus(StatusReport{AgentID: "a3", Health: models.HealthUnhealthy, ErrorCount: 7})

	h := c.SystemHealth()
	if h.TotalAgents != 3 || h.HealthyAgents != 2 || h.ErrorAgents != 2 {
		t.Errorf("health = %+v", h)
	}
	if h.SystemStatus != "degraded" {
		t.Errorf("expected degraded, got %s", h.SystemStatus)
	}
}

func TestSystemHealthEmpty(t *testing.T) {
	c, _ := newTestCoordinator()

	h := c.SystemHealth()
	if h.SystemStatus != "healthy" {
		t.Errorf("empty fleet should be healthy, got %s", h.SystemStatus)
	}
	if h.HealthPercentage != 0 {
		t.Errorf("expected 0 percentage, got %f", h.HealthPercentage)
	}
}
