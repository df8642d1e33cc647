package status

import (
	"strings"
	"time"

	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/lifeline-share/lifeline/internal/theme"
)

// FrameInterval is the pulse animation frame period.
const FrameInterval = time.Second / 20

const pulseWidth = 8

// Model holds the status bar state.
type Model struct {
	Phase  string
	Text   string
	Server string
	Width  int

	pulse pulse
}

// New creates a status bar model.
func New() Model {
	return Model{
		Phase: "idle",
		Text:  "Register consent to begin.",
		pulse: newPulse(),
	}
}

// Animating reports whether the pulse needs frames.
func (m Model) Animating() bool {
	return m.Phase == "sharing"
}

// Step advances the pulse by one frame.
func (m *Model) Step() {
	m.pulse.step()
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	color := theme.PhaseColor(m.Phase)
	phase := lipgloss.NewStyle().Bold(true).Foreground(color).Render(strings.ToUpper(m.Phase))

	var beacon string
	if m.Animating() {
		beacon = " " + lipgloss.NewStyle().Foreground(theme.ColorSharing).Render(m.pulse.bar())
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := phase + beacon + sep + m.Text
	if m.Server != "" {
		content += sep + theme.StyleDimmed.Render(m.Server)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}

// pulse is a spring that swings between 0 and 1 while sharing.
type pulse struct {
	spring harmonica.Spring
	pos    float64
	vel    float64
	target float64
}

func newPulse() pulse {
	return pulse{
		spring: harmonica.NewSpring(harmonica.FPS(int(time.Second/FrameInterval)), 6.0, 0.4),
		target: 1,
	}
}

func (p *pulse) step() {
	p.pos, p.vel = p.spring.Update(p.pos, p.vel, p.target)
	if (p.target == 1 && p.pos > 0.95) || (p.target == 0 && p.pos < 0.05) {
		p.target = 1 - p.target
	}
}

func (p pulse) bar() string {
	n := int(p.pos*pulseWidth + 0.5)
	if n < 0 {
		n = 0
	}
	if n > pulseWidth {
		n = pulseWidth
	}
	return "(" + strings.Repeat("•", n) + strings.Repeat(" ", pulseWidth-n) + ")"
}
