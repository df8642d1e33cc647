// Package eventlog provides the timestamped activity log panel, most recent
// entry first.
package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/lifeline-share/lifeline/internal/theme"
)

const maxEntries = 500

// Kind classifies an entry for coloring.
type Kind string

const (
	KindInfo  Kind = "info"
	KindNet   Kind = "net"
	KindFix   Kind = "fix"
	KindError Kind = "err"
)

// Entry is a single log line.
type Entry struct {
	Time    time.Time
	Kind    Kind
	Message string
}

// Line renders the entry as "[<ISO timestamp>] message".
func (e Entry) Line() string {
	return fmt.Sprintf("[%s] %s", e.Time.UTC().Format("2006-01-02T15:04:05.000Z"), e.Message)
}

// Model holds log state. Entries are stored newest first.
type Model struct {
	Entries []Entry
	Offset  int // scroll offset from the newest entry
}

// New creates an empty log.
func New() Model {
	return Model{}
}

// Add prepends an entry and caps the buffer, dropping the oldest.
func (m *Model) Add(at time.Time, kind Kind, message string) {
	m.Entries = append([]Entry{{Time: at, Kind: kind, Message: message}}, m.Entries...)
	if len(m.Entries) > maxEntries {
		m.Entries = m.Entries[:maxEntries]
	}
	// New entries snap the view back to the top.
	m.Offset = 0
}

// ScrollDown moves toward older entries.
func (m *Model) ScrollDown(n int) {
	m.Offset += n
	max := len(m.Entries) - 1
	if max < 0 {
		max = 0
	}
	if m.Offset > max {
		m.Offset = max
	}
}

// ScrollUp moves toward newer entries.
func (m *Model) ScrollUp(n int) {
	m.Offset -= n
	if m.Offset < 0 {
		m.Offset = 0
	}
}

// Plain returns the log as text, one entry per line, newest first.
func (m Model) Plain() string {
	lines := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		lines[i] = e.Line()
	}
	return strings.Join(lines, "\n")
}

// View renders at most height-2 entries inside a bordered panel.
func (m Model) View(width, height int) string {
	innerW := width - 4
	if innerW < 20 {
		innerW = 20
	}
	visible := height - 3
	if visible < 3 {
		visible = 3
	}

	title := theme.StyleHeader.Render("Log")
	if len(m.Entries) == 0 {
		return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, theme.StyleDimmed.Render("No events yet.")))
	}

	end := m.Offset + visible
	if end > len(m.Entries) {
		end = len(m.Entries)
	}

	var lines []string
	for _, e := range m.Entries[m.Offset:end] {
		ts := theme.StyleDimmed.Render("[" + e.Time.UTC().Format("2006-01-02T15:04:05.000Z") + "]")
		msg := clip(e.Message, innerW-27)
		lines = append(lines, ts+" "+lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Render(msg))
	}

	if more := len(m.Entries) - end; more > 0 {
		lines = append(lines, theme.StyleDimmed.Render(fmt.Sprintf("  ↓ %d older", more)))
	}

	return panel(innerW).Render(lipgloss.JoinVertical(lipgloss.Left, title, strings.Join(lines, "\n")))
}

func panel(width int) lipgloss.Style {
	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder)
}

func kindColor(k Kind) lipgloss.Color {
	switch k {
	case KindNet:
		return theme.ColorNet
	case KindFix:
		return theme.ColorFix
	case KindError:
		return theme.ColorErrored
	default:
		return theme.ColorInfo
	}
}

// clip shortens msg to width cells, ending in "...".
func clip(msg string, width int) string {
	if width <= 3 || lipgloss.Width(msg) <= width {
		return msg
	}
	return truncate.StringWithTail(msg, uint(width), "...")
}
