// Package dashboard renders the incident summary row: the active incident,
// relay counters and the last fix.
package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lifeline-share/lifeline/internal/session"
	"github.com/lifeline-share/lifeline/internal/theme"
)

// Model holds the dashboard state.
type Model struct {
	Width int
	snap  session.Snapshot
	now   func() time.Time
}

// New creates a dashboard model.
func New() Model {
	return Model{now: time.Now}
}

// SetSnapshot replaces the rendered session state.
func (m *Model) SetSnapshot(s session.Snapshot) {
	m.snap = s
}

// View renders the stats row and the last fix line.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	st := m.snap.Stats
	statStyle := lipgloss.NewStyle().Padding(0, 1)

	incident := m.snap.IncidentID
	if incident == "" {
		incident = "none"
	}

	stats := []string{
		statStyle.Foreground(theme.ColorBright).Render("Incident: " + incident),
		statStyle.Foreground(theme.ColorFix).Render(fmt.Sprintf("Fixes: %d", st.FixesSeen)),
		statStyle.Foreground(theme.ColorNet).Render(fmt.Sprintf("Sent: %d", st.UpdatesSent)),
		statStyle.Foreground(theme.ColorErrored).Render(fmt.Sprintf("Failed: %d", st.UpdatesFailed)),
	}
	if m.snap.Phase == session.Sharing && !st.StartedAt.IsZero() {
		stats = append(stats, statStyle.Foreground(theme.ColorDimmed).Render(
			"Elapsed: "+formatElapsed(m.now().Sub(st.StartedAt))))
	}
	row := strings.Join(stats, lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | "))

	var fixLine string
	if f := st.LastFix; f != nil {
		acc := lipgloss.NewStyle().Foreground(theme.AccuracyColor(f.Accuracy)).
			Render(fmt.Sprintf("±%gm", f.Accuracy))
		fixLine = fmt.Sprintf(" Last fix %.5f, %.5f %s at %s", f.Latitude, f.Longitude, acc,
			f.Timestamp.Local().Format("15:04:05"))
	} else {
		fixLine = theme.StyleDimmed.Render(" No fixes yet")
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, row, fixLine))
}

// formatElapsed renders a duration compactly (e.g. "42s", "3m05s", "1h02m").
func formatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
