package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// WorkflowsPanel lists workflows with step progress.
type WorkflowsPanel struct {
	workflows []*models.Workflow
	width     int

	headerStyle    lipgloss.Style
	rowStyle       lipgloss.Style
	emptyStyle     lipgloss.Style
	runningStyle   lipgloss.Style
	pausedStyle    lipgloss.Style
	completedStyle lipgloss.Style
	failedStyle    lipgloss.Style
	progressFull   lipgloss.Style
	progressEmpty  lipgloss.Style
}

// NewWorkflowsPanel creates a new WorkflowsPanel instance.
func NewWorkflowsPanel() *WorkflowsPanel {
	return &WorkflowsPanel{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245")),

		rowStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		emptyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),

		runningStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		pausedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		completedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		failedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),

		progressFull:  lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

// SetWorkflows updates the snapshot, newest first.
func (p *WorkflowsPanel) SetWorkflows(workflows []*models.Workflow) {
	p.workflows = make([]*models.Workflow, len(workflows))
	copy(p.workflows, workflows)
	sort.Slice(p.workflows, func(i, j int) bool {
		return p.workflows[i].CreatedAt.After(p.workflows[j].CreatedAt)
	})
}

// SetSize sets the panel width.
func (p *WorkflowsPanel) SetSize(width int) {
	p.width = width
}

// View renders one row per workflow plus a per-step summary line.
func (p *WorkflowsPanel) View() string {
	var b strings.Builder

	b.WriteString(p.headerStyle.Render(fmt.Sprintf("%-12s %-24s %-10s %-24s %s",
		"WORKFLOW", "NAME", "STATUS", "PROGRESS", "STEPS")))
	b.WriteString("\n")

	if len(p.workflows) == 0 {
		b.WriteString(p.emptyStyle.Render("  no workflows"))
		return b.String()
	}

	for _, wf := range p.workflows {
		pct := wf.Progress()
		status := p.statusStyle(wf.Status).Render(fmt.Sprintf("%-10s", wf.Status))
		row := fmt.Sprintf("%-12s %-24s %s %s %5.1f%%  %s",
			wf.ID,
			truncate(wf.Name, 24),
			status,
			p.renderProgressBar(pct, 15),
			pct,
			p.stepSummary(wf))
		b.WriteString(p.rowStyle.Render(row))
		b.WriteString("\n")
	}

	return b.String()
}

// stepSummary compresses step states into "2✓ 1▶ 1·" style counts.
func (p *WorkflowsPanel) stepSummary(wf *models.Workflow) string {
	counts := make(map[models.StepStatus]int)
	for _, step := range wf.Steps {
		counts[step.Status]++
	}

	var parts []string
	if n := counts[models.StepStatusCompleted]; n > 0 {
		parts = append(parts, p.completedStyle.Render(fmt.Sprintf("%d done", n)))
	}
	if n := counts[models.StepStatusRunning]; n > 0 {
		parts = append(parts, p.runningStyle.Render(fmt.Sprintf("%d running", n)))
	}
	if n := counts[models.StepStatusPending]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d pending", n))
	}
	if n := counts[models.StepStatusSkipped]; n > 0 {
		parts = append(parts, p.pausedStyle.Render(fmt.Sprintf("%d skipped", n)))
	}
	if n := counts[models.StepStatusFailed]; n > 0 {
		parts = append(parts, p.failedStyle.Render(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[models.StepStatusCancelled]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", n))
	}
	return strings.Join(parts, ", ")
}

func (p *WorkflowsPanel) statusStyle(status models.WorkflowStatus) lipgloss.Style {
	switch status {
	case models.WorkflowStatusRunning:
		return p.runningStyle
	case models.WorkflowStatusPaused:
		return p.pausedStyle
	case models.WorkflowStatusCompleted:
		return p.completedStyle
	case models.WorkflowStatusFailed:
		return p.failedStyle
	default:
		return p.rowStyle
	}
}

func (p *WorkflowsPanel) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := int(pct / 100 * float64(width))
	return "[" + p.progressFull.Render(strings.Repeat("█", filled)) +
		p.progressEmpty.Render(strings.Repeat("░", width-filled)) + "]"
}
