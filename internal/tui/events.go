package tui

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/foreman/internal/orchestrator"
)

// RingBuffer keeps the last N event lines for the events panel.
type RingBuffer struct {
	mu    sync.Mutex
	lines []string
	size  int
	head  int
	count int
}

// NewRingBuffer creates a ring buffer holding up to capacity lines.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		lines: make([]string, capacity),
		size:  capacity,
	}
}

// Append adds a line, evicting the oldest when full.
func (r *RingBuffer) Append(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % r.size
	if r.count < r.size {
		r.count++
	}
}

// Lines returns the buffered lines, oldest first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, r.count)
	start := r.head - r.count
	if start < 0 {
		start += r.size
	}
	for i := 0; i < r.count; i++ {
		out = append(out, r.lines[(start+i)%r.size])
	}
	return out
}

// Len returns how many lines are buffered.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// EventsPanel shows the orchestrator event stream, newest at the bottom.
type EventsPanel struct {
	buffer *RingBuffer

	headerStyle lipgloss.Style
	timeStyle   lipgloss.Style
	lineStyle   lipgloss.Style
	errorStyle  lipgloss.Style
	emptyStyle  lipgloss.Style
}

// NewEventsPanel creates an EventsPanel retaining the last 200 events.
func NewEventsPanel() *EventsPanel {
	return &EventsPanel{
		buffer: NewRingBuffer(200),

		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("245")),

		timeStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		lineStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		emptyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

// Add formats and buffers one event.
func (p *EventsPanel) Add(ev orchestrator.Event) {
	style := p.lineStyle
	if ev.Type == orchestrator.EventTaskFailed || ev.Type == orchestrator.EventAgentUnhealthy {
		style = p.errorStyle
	}

	parts := []string{string(ev.Type)}
	if ev.TaskID != "" {
		parts = append(parts, ev.TaskID)
	}
	if ev.AgentID != "" {
		parts = append(parts, "agent="+ev.AgentID)
	}
	if ev.Message != "" {
		parts = append(parts, ev.Message)
	}

	line := p.timeStyle.Render(ev.Timestamp.Format("15:04:05")) + " " +
		style.Render(strings.Join(parts, " "))
	p.buffer.Append(line)
}

// View renders the buffered events, bounded to the last maxLines.
func (p *EventsPanel) View(maxLines int) string {
	var b strings.Builder
	b.WriteString(p.headerStyle.Render("EVENTS"))
	b.WriteString("\n")

	lines := p.buffer.Lines()
	if len(lines) == 0 {
		b.WriteString(p.emptyStyle.Render("  no events yet"))
		return b.String()
	}
	if maxLines > 0 && len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
		b.WriteString(p.emptyStyle.Render(fmt.Sprintf("  … %d earlier events", p.buffer.Len()-maxLines)))
		b.WriteString("\n")
	}
	b.WriteString(strings.Join(lines, "\n"))
	return b.String()
}
