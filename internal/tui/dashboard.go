// Package tui renders a live terminal dashboard over a running
// orchestrator: fleet state, tasks, workflows, and the event stream.
package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/internal/orchestrator"
	"github.com/ShayCichocki/foreman/internal/registry"
	"github.com/ShayCichocki/foreman/internal/workflow"
)

const (
	tabAgents = iota
	tabTasks
	tabWorkflows
	tabEvents
	tabCount
)

var tabNames = [tabCount]string{"Agents", "Tasks", "Workflows", "Events"}

type tickMsg time.Time

type eventMsg orchestrator.Event

// Dashboard is the bubbletea model for the live system view.
type Dashboard struct {
	orch   *orchestrator.Orchestrator
	engine *workflow.Engine

	refresh   time.Duration
	width     int
	height    int
	activeTab int
	showHelp  bool

	stats     *StatsPanel
	agents    *AgentsPanel
	tasks     *TasksPanel
	workflows *WorkflowsPanel
	events    *EventsPanel

	spin spinner.Model
	keys keyMap
	help help.Model

	titleStyle     lipgloss.Style
	tabStyle       lipgloss.Style
	activeTabStyle lipgloss.Style
	footerStyle    lipgloss.Style
}

// NewDashboard creates the dashboard model. engine may be nil; the
// workflows tab then stays empty. refresh controls the poll interval.
func NewDashboard(orch *orchestrator.Orchestrator, engine *workflow.Engine, refresh time.Duration) *Dashboard {
	if refresh <= 0 {
		refresh = time.Second
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &Dashboard{
		orch:    orch,
		engine:  engine,
		refresh: refresh,

		stats:     NewStatsPanel(),
		agents:    NewAgentsPanel(),
		tasks:     NewTasksPanel(),
		workflows: NewWorkflowsPanel(),
		events:    NewEventsPanel(),

		spin: spin,
		keys: defaultKeyMap,
		help: help.New(),

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Padding(0, 1),

		tabStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1),

		activeTabStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("63")).
			Padding(0, 1),

		footerStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")),
	}
}

// Run starts the dashboard program and blocks until the user quits.
func Run(orch *orchestrator.Orchestrator, engine *workflow.Engine, refresh time.Duration) error {
	p := tea.NewProgram(NewDashboard(orch, engine, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init starts the refresh tick, the event pump, and the spinner.
func (d *Dashboard) Init() tea.Cmd {
	d.poll()
	return tea.Batch(d.tickCmd(), d.waitForEvent(), d.spin.Tick)
}

// Update handles input, ticks, and orchestrator events.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.stats.SetSize(msg.Width)
		d.agents.SetSize(msg.Width)
		d.tasks.SetSize(msg.Width)
		d.workflows.SetSize(msg.Width)
		d.help.Width = msg.Width
		return d, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.NextTab):
			d.activeTab = (d.activeTab + 1) % tabCount
		case key.Matches(msg, d.keys.PrevTab):
			d.activeTab = (d.activeTab + tabCount - 1) % tabCount
		case key.Matches(msg, d.keys.Pause):
			if d.orch.Paused() {
				d.orch.Resume()
			} else {
				d.orch.Pause()
			}
			d.poll()
		case key.Matches(msg, d.keys.Help):
			d.showHelp = !d.showHelp
		}
		return d, nil

	case tickMsg:
		d.poll()
		return d, d.tickCmd()

	case eventMsg:
		d.events.Add(orchestrator.Event(msg))
		return d, d.waitForEvent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spin, cmd = d.spin.Update(msg)
		return d, cmd
	}

	return d, nil
}

// View renders the full dashboard.
func (d *Dashboard) View() string {
	var b strings.Builder

	title := d.titleStyle.Render("Foreman") + " " + d.spin.View()
	b.WriteString(title)
	b.WriteString("\n\n")

	b.WriteString(d.stats.View())
	b.WriteString("\n")

	var tabs []string
	for i, name := range tabNames {
		if i == d.activeTab {
			tabs = append(tabs, d.activeTabStyle.Render(name))
		} else {
			tabs = append(tabs, d.tabStyle.Render(name))
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	switch d.activeTab {
	case tabAgents:
		b.WriteString(d.agents.View())
	case tabTasks:
		b.WriteString(d.tasks.View())
	case tabWorkflows:
		b.WriteString(d.workflows.View())
	case tabEvents:
		b.WriteString(d.events.View(d.eventLines()))
	}
	b.WriteString("\n")

	if d.showHelp {
		b.WriteString(d.help.FullHelpView(d.keys.FullHelp()))
	} else {
		b.WriteString(d.footerStyle.Render(d.help.ShortHelpView(d.keys.ShortHelp())))
	}

	return b.String()
}

// poll refreshes every panel from the orchestrator.
func (d *Dashboard) poll() {
	d.stats.SetStats(d.orch.SystemStats())
	d.agents.SetAgents(d.orch.Registry().List(registry.Filter{}))
	d.tasks.SetTasks(d.orch.Tasks())
	if d.engine != nil {
		d.workflows.SetWorkflows(d.engine.List())
	}
}

// eventLines bounds the events tab to the visible height.
func (d *Dashboard) eventLines() int {
	lines := d.height - 20
	if lines < 5 {
		lines = 5
	}
	return lines
}

func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(d.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// waitForEvent pumps one orchestrator event into the update loop.
func (d *Dashboard) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-d.orch.Events()
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

var _ tea.Model = (*Dashboard)(nil)
