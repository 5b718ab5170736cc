package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/pkg/models"
)

// maxTaskRows caps how many tasks the panel renders; terminal tasks past
// the cap scroll off first.
const maxTaskRows = 30

// TasksPanel lists tracked tasks, active work first.
type TasksPanel struct {
	tasks []*models.Task
	width int

	headerStyle    lipgloss.Style
	rowStyle       lipgloss.Style
	emptyStyle     lipgloss.Style
	runningStyle   lipgloss.Style
	completedStyle lipgloss.Style
	failedStyle    lipgloss.Style
	queuedStyle    lipgloss.Style
}

// NewTasksPanel creates a new TasksPanel instance.
func NewTasksPanel() *TasksPanel {
	return &TasksPanel{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245")),

		rowStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		emptyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),

		runningStyle:   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		completedStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		failedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		queuedStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

// SetTasks updates the task snapshot. Active tasks sort before terminal
// ones, newest first within each group.
func (p *TasksPanel) SetTasks(tasks []*models.Task) {
	p.tasks = make([]*models.Task, len(tasks))
	copy(p.tasks, tasks)
	sort.Slice(p.tasks, func(i, j int) bool {
		ti, tj := p.tasks[i], p.tasks[j]
		if ti.Status.Terminal() != tj.Status.Terminal() {
			return !ti.Status.Terminal()
		}
		return ti.CreatedAt.After(tj.CreatedAt)
	})
	if len(p.tasks) > maxTaskRows {
		p.tasks = p.tasks[:maxTaskRows]
	}
}

// SetSize sets the panel width.
func (p *TasksPanel) SetSize(width int) {
	p.width = width
}

// View renders one row per task.
func (p *TasksPanel) View() string {
	var b strings.Builder

	b.WriteString(p.headerStyle.Render(fmt.Sprintf("%-14s %-28s %-22s %-10s %-8s %s",
		"TASK", "NAME", "CAPABILITY", "STATUS", "RETRIES", "AGENT")))
	b.WriteString("\n")

	if len(p.tasks) == 0 {
		b.WriteString(p.emptyStyle.Render("  no tasks submitted"))
		return b.String()
	}

	for _, task := range p.tasks {
		agent := task.AssignedAgent
		if agent == "" {
			agent = "-"
		}
		status := p.statusStyle(task.Status).Render(fmt.Sprintf("%-10s", task.Status))
		row := fmt.Sprintf("%-14s %-28s %-22s %s %-8d %s",
			task.ID,
			truncate(task.Name, 28),
			truncate(task.Capability, 22),
			status,
			task.RetryCount,
			agent)
		b.WriteString(p.rowStyle.Render(row))
		b.WriteString("\n")
	}

	return b.String()
}

func (p *TasksPanel) statusStyle(status models.TaskStatus) lipgloss.Style {
	switch status {
	case models.TaskStatusRunning, models.TaskStatusAssigned:
		return p.runningStyle
	case models.TaskStatusCompleted:
		return p.completedStyle
	case models.TaskStatusFailed:
		return p.failedStyle
	default:
		return p.queuedStyle
	}
}

// truncate shortens s to max runes with an ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 1 {
		return s[:max]
	}
	return s[:max-1] + "…"
}
