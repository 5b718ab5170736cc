package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/internal/orchestrator"
)

// StatsPanel displays the system snapshot: uptime, agent and task
// counts, queue depths, and resource utilization bars.
type StatsPanel struct {
	stats orchestrator.Stats
	width int

	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	headerStyle   lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	warningStyle  lipgloss.Style
	pausedStyle   lipgloss.Style
}

// NewStatsPanel creates a new StatsPanel instance.
func NewStatsPanel() *StatsPanel {
	return &StatsPanel{
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(12),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		pausedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true),
	}
}

// SetStats updates the snapshot shown on the next render.
func (p *StatsPanel) SetStats(stats orchestrator.Stats) {
	p.stats = stats
}

// SetSize sets the panel width.
func (p *StatsPanel) SetSize(width int) {
	p.width = width
}

// View renders the stats display.
func (p *StatsPanel) View() string {
	var b strings.Builder

	b.WriteString(p.headerStyle.Render("System"))
	b.WriteString("\n")

	b.WriteString(p.renderRow("Uptime:", p.valueStyle.Render(formatDuration(p.stats.Uptime))))
	b.WriteString("\n")

	health := fmt.Sprintf("%s (%d/%d agents healthy)",
		p.stats.Health.SystemStatus,
		p.stats.Health.HealthyAgents,
		p.stats.Health.TotalAgents)
	healthStyle := p.valueStyle
	if p.stats.Health.SystemStatus != "healthy" {
		healthStyle = p.warningStyle
	}
	b.WriteString(p.renderRow("Health:", healthStyle.Render(health)))
	b.WriteString("\n")

	if p.stats.Paused {
		b.WriteString(p.renderRow("Dispatch:", p.pausedStyle.Render("PAUSED")))
	} else {
		b.WriteString(p.renderRow("Dispatch:", p.valueStyle.Render("running")))
	}
	b.WriteString("\n")

	b.WriteString(p.renderRow("Agents:", p.valueStyle.Render(formatCounts(p.stats.Agents))))
	b.WriteString("\n")
	b.WriteString(p.renderRow("Tasks:", p.valueStyle.Render(formatCounts(p.stats.Tasks))))
	b.WriteString("\n")
	b.WriteString(p.renderRow("Queue:", p.valueStyle.Render(formatCounts(p.stats.QueueDepths))))
	b.WriteString("\n")

	msgs := fmt.Sprintf("%d queued / %d pending responses",
		p.stats.Bus.QueuedMessages, p.stats.Bus.PendingResponses)
	b.WriteString(p.renderRow("Messages:", p.valueStyle.Render(msgs)))
	b.WriteString("\n\n")

	b.WriteString(p.labelStyle.Render("Resources:"))
	b.WriteString("\n")

	types := make([]string, 0, len(p.stats.Resources))
	for name := range p.stats.Resources {
		types = append(types, name)
	}
	sort.Strings(types)
	for _, name := range types {
		u := p.stats.Resources[name]
		b.WriteString(fmt.Sprintf("  %-8s %s %5.1f%%\n", name, p.renderProgressBar(u.Percent, 20), u.Percent))
	}

	return b.String()
}

// renderRow renders a label-value pair.
func (p *StatsPanel) renderRow(label, value string) string {
	return p.labelStyle.Render(label) + " " + value
}

// renderProgressBar renders a progress bar.
func (p *StatsPanel) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	fullStyle := p.progressFull
	if pct > 90 {
		fullStyle = p.warningStyle
	}

	bar := fullStyle.Render(strings.Repeat("█", filled)) +
		p.progressEmpty.Render(strings.Repeat("░", empty))

	return "[" + bar + "]"
}

// formatCounts renders a status-count map as "3 idle, 1 busy".
func formatCounts(counts map[string]int) string {
	if len(counts) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%d %s", counts[k], k))
	}
	return strings.Join(parts, ", ")
}

// formatDuration renders a duration as 1h02m03s with coarse units.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)

	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
