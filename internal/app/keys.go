package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines all keyboard bindings for the TUI. Action keys only fire
// while no text field is focused.
type KeyMap struct {
	Consent key.Binding
	Start   key.Binding
	Stop    key.Binding
	Terms   key.Binding
	Focus   key.Binding
	Edit    key.Binding
	Up      key.Binding
	Down    key.Binding
	Escape  key.Binding
	Quit    key.Binding
	ForceQ  key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Consent: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "register consent"),
		),
		Start: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "start sharing"),
		),
		Stop: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "stop sharing"),
		),
		Terms: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "consent terms"),
		),
		Focus: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next field"),
		),
		Edit: key.NewBinding(
			key.WithKeys("e", "i"),
			key.WithHelp("e", "edit fields"),
		),
		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "newer log"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "older log"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc", "enter"),
			key.WithHelp("esc", "close / leave field"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
		ForceQ: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
	}
}
