package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// AgentsPanel lists the fleet with status, load, and success rate.
type AgentsPanel struct {
	agents []*models.Agent
	width  int

	headerStyle lipgloss.Style
	rowStyle    lipgloss.Style
	emptyStyle  lipgloss.Style
	idleStyle   lipgloss.Style
	busyStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	pausedStyle lipgloss.Style
}

// NewAgentsPanel creates a new AgentsPanel instance.
func NewAgentsPanel() *AgentsPanel {
	return &AgentsPanel{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245")),

		rowStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		emptyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),

		idleStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		busyStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		pausedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
	}
}

// SetAgents updates the fleet snapshot, sorted by ID for stable rows.
func (p *AgentsPanel) SetAgents(agents []*models.Agent) {
	p.agents = make([]*models.Agent, len(agents))
	copy(p.agents, agents)
	sort.Slice(p.agents, func(i, j int) bool { return p.agents[i].ID < p.agents[j].ID })
}

// SetSize sets the panel width.
func (p *AgentsPanel) SetSize(width int) {
	p.width = width
}

// View renders one row per agent.
func (p *AgentsPanel) View() string {
	var b strings.Builder

	b.WriteString(p.headerStyle.Render(fmt.Sprintf("%-22s %-14s %-9s %-6s %-8s %-7s %s",
		"AGENT", "CLASS", "STATUS", "LOAD", "SUCCESS", "ERRORS", "TASK")))
	b.WriteString("\n")

	if len(p.agents) == 0 {
		b.WriteString(p.emptyStyle.Render("  no agents registered"))
		return b.String()
	}

	for _, agent := range p.agents {
		status := p.statusStyle(agent.Status).Render(fmt.Sprintf("%-9s", agent.Status))
		task := agent.CurrentTask
		if task == "" {
			task = "-"
		}
		row := fmt.Sprintf("%-22s %-14s %s %-6.2f %-8s %-7d %s",
			agent.ID,
			agent.Class,
			status,
			agent.Load,
			fmt.Sprintf("%.0f%%", agent.Performance.SuccessRate*100),
			agent.ErrorCount,
			task)
		b.WriteString(p.rowStyle.Render(row))
		b.WriteString("\n")
	}

	return b.String()
}

func (p *AgentsPanel) statusStyle(status models.AgentStatus) lipgloss.Style {
	switch status {
	case models.AgentStatusIdle:
		return p.idleStyle
	case models.AgentStatusBusy:
		return p.busyStyle
	case models.AgentStatusError:
		return p.errorStyle
	case models.AgentStatusPaused:
		return p.pausedStyle
	default:
		return p.rowStyle
	}
}
