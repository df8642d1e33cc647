// Package consent renders the consent terms overlay with Glamour.
package consent

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/lifeline-share/lifeline/internal/session"
	"github.com/lifeline-share/lifeline/internal/theme"
)

const termsTemplate = `# Emergency location sharing

Registering consent sends the statement below to **%s** and returns a
credential used for every incident call.

> %s

While an incident is active:

- every position fix is sent to the server as soon as it arrives
- failed sends are logged and **not retried**
- stopping ends the watch and notifies the server once

Press **esc** to close.
`

// Markdown returns the terms document for serverURL.
func Markdown(serverURL string) string {
	if strings.TrimSpace(serverURL) == "" {
		serverURL = "the configured server"
	}
	return fmt.Sprintf(termsTemplate, serverURL, session.ConsentText)
}

// View renders the terms at the given width. Rendering errors fall back to
// the raw markdown.
func View(serverURL string, width int) string {
	innerW := width - 6
	if innerW < 30 {
		innerW = 30
	}

	md := Markdown(serverURL)
	body := md
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(innerW),
	)
	if err == nil {
		if out, err := r.Render(md); err == nil {
			body = out
		}
	}

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorFocused).
		Render(strings.TrimRight(body, "\n"))
}
