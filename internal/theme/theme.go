// Package theme provides the Lip Gloss color palette and reusable styles
// for the Lifeline TUI. It is a leaf package with no internal imports
// to avoid import cycles.
package theme

import "github.com/charmbracelet/lipgloss"

// Phase colors.
var (
	ColorIdle    = lipgloss.Color("#6b7280")
	ColorReady   = lipgloss.Color("#2563eb")
	ColorSharing = lipgloss.Color("#dc2626")
)

// Log kind colors.
var (
	ColorInfo    = lipgloss.Color("#9ca3af")
	ColorNet     = lipgloss.Color("#06b6d4")
	ColorFix     = lipgloss.Color("#22c55e")
	ColorErrored = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder   = lipgloss.Color("#4b5563")
	ColorDimmed   = lipgloss.Color("#6b7280")
	ColorBright   = lipgloss.Color("#f9fafb")
	ColorHealthy  = lipgloss.Color("#22c55e")
	ColorWarning  = lipgloss.Color("#d97706")
	ColorDanger   = lipgloss.Color("#dc2626")
	ColorFocused  = lipgloss.Color("#a855f7")
	ColorDisabled = lipgloss.Color("#374151")
)

// PhaseColor returns the color for a session phase name.
func PhaseColor(phase string) lipgloss.Color {
	switch phase {
	case "consent granted":
		return ColorReady
	case "sharing":
		return ColorSharing
	default:
		return ColorIdle
	}
}

// AccuracyColor grades a fix accuracy in meters.
func AccuracyColor(meters float64) lipgloss.Color {
	switch {
	case meters <= 10:
		return ColorHealthy
	case meters <= 50:
		return ColorWarning
	default:
		return ColorDanger
	}
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
			Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorBright)

	StyleButton = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(ColorBright).
			Background(ColorBorder)

	StyleButtonDisabled = lipgloss.NewStyle().
				Padding(0, 1).
				Foreground(ColorDimmed).
				Background(ColorDisabled)
)
