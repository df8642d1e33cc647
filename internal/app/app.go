package app

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lifeline-share/lifeline/internal/session"
	"github.com/lifeline-share/lifeline/internal/theme"
	"github.com/lifeline-share/lifeline/internal/views/consent"
	"github.com/lifeline-share/lifeline/internal/views/dashboard"
	"github.com/lifeline-share/lifeline/internal/views/eventlog"
	"github.com/lifeline-share/lifeline/internal/views/status"
)

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayTerms
	OverlayNotice
)

const (
	fieldUser = iota
	fieldServer
	fieldCount

	noFocus = -1
)

// Action names an in-flight controller call.
type Action string

const (
	ActionConsent Action = "consent"
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
)

// EventMsg carries one controller event into the Update loop.
type EventMsg session.Event

// ActionDoneMsg reports the completion of a controller call.
type ActionDoneMsg struct {
	Action Action
	Err    error
}

// EventsClosedMsg is sent when the controller event channel is closed.
type EventsClosedMsg struct{}

// FrameMsg drives the status bar pulse.
type FrameMsg time.Time

// Controller is the subset of session.Controller the UI drives.
type Controller interface {
	RegisterConsent(ctx context.Context, userID, serverURL string) error
	StartIncident(ctx context.Context, userID, serverURL string) error
	StopIncident(ctx context.Context, serverURL string) error
	CanStart() bool
	CanStop() bool
	Snapshot() session.Snapshot
}

// Model is the root Bubble Tea model.
type Model struct {
	ctrl   Controller
	events <-chan session.Event
	ctx    context.Context
	cancel context.CancelFunc

	keys   KeyMap
	width  int
	height int

	inputs []textinput.Model
	focus  int

	overlay Overlay
	notice  string
	pending map[Action]bool
	framing bool

	// Sub-views.
	statusBar status.Model
	dashboard dashboard.Model
	log       eventlog.Model
}

// New creates the root model. events must be the channel the controller's
// observer publishes to.
func New(ctrl Controller, events <-chan session.Event, userID, serverURL string) Model {
	ctx, cancel := context.WithCancel(context.Background())

	user := textinput.New()
	user.Prompt = "User ID:    "
	user.Placeholder = "alice"
	user.CharLimit = 128
	user.SetValue(userID)

	server := textinput.New()
	server.Prompt = "Server URL: "
	server.Placeholder = "http://127.0.0.1:5000"
	server.CharLimit = 512
	server.SetValue(serverURL)

	m := Model{
		ctrl:      ctrl,
		events:    events,
		ctx:       ctx,
		cancel:    cancel,
		keys:      DefaultKeyMap(),
		inputs:    []textinput.Model{user, server},
		focus:     noFocus,
		pending:   make(map[Action]bool),
		statusBar: status.New(),
		dashboard: dashboard.New(),
		log:       eventlog.New(),
	}
	m.statusBar.Server = serverURL
	if strings.TrimSpace(userID) == "" {
		m.setFocus(fieldUser)
	}
	return m
}

// Init starts draining controller events.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.dashboard.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		cmd := m.applyEvent(session.Event(msg))
		return m, tea.Batch(cmd, m.waitForEvent())

	case EventsClosedMsg:
		return m, nil

	case ActionDoneMsg:
		delete(m.pending, msg.Action)
		if msg.Err != nil {
			log.Printf("%s action: %v", msg.Action, msg.Err)
		}
		m.dashboard.SetSnapshot(m.ctrl.Snapshot())
		return m, nil

	case FrameMsg:
		if !m.statusBar.Animating() {
			m.framing = false
			return m, nil
		}
		m.statusBar.Step()
		m.dashboard.SetSnapshot(m.ctrl.Snapshot())
		return m, frame()
	}

	if m.focus != noFocus {
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.ForceQ) {
		return m.quit()
	}

	if m.overlay != OverlayNone {
		if key.Matches(msg, m.keys.Escape) {
			m.overlay = OverlayNone
			m.notice = ""
		}
		return m, nil
	}

	if m.focus != noFocus {
		switch {
		case key.Matches(msg, m.keys.Escape):
			m.setFocus(noFocus)
			return m, nil
		case key.Matches(msg, m.keys.Focus):
			m.setFocus((m.focus + 1) % fieldCount)
			return m, nil
		}
		var cmd tea.Cmd
		m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
		m.statusBar.Server = m.serverURL()
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m.quit()

	case key.Matches(msg, m.keys.Focus), key.Matches(msg, m.keys.Edit):
		m.setFocus(fieldUser)
		return m, nil

	case key.Matches(msg, m.keys.Terms):
		m.overlay = OverlayTerms
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.log.ScrollDown(1)
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.log.ScrollUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Consent):
		if !m.consentEnabled() {
			return m, nil
		}
		user, server := m.userID(), m.serverURL()
		return m, m.run(ActionConsent, func(ctx context.Context) error {
			return m.ctrl.RegisterConsent(ctx, user, server)
		})

	case key.Matches(msg, m.keys.Start):
		if !m.startEnabled() {
			return m, nil
		}
		user, server := m.userID(), m.serverURL()
		return m, m.run(ActionStart, func(ctx context.Context) error {
			return m.ctrl.StartIncident(ctx, user, server)
		})

	case key.Matches(msg, m.keys.Stop):
		if !m.stopEnabled() {
			return m, nil
		}
		server := m.serverURL()
		return m, m.run(ActionStop, func(ctx context.Context) error {
			return m.ctrl.StopIncident(ctx, server)
		})
	}

	return m, nil
}

// applyEvent folds a controller event into the sub-views.
func (m *Model) applyEvent(ev session.Event) tea.Cmd {
	if ev.Message != "" {
		m.log.Add(ev.Time, eventKind(ev), ev.Message)
	}
	if ev.Status != "" {
		m.statusBar.Text = ev.Status
	}
	if ev.Notice != "" {
		m.notice = ev.Notice
		m.overlay = OverlayNotice
	}
	m.statusBar.Phase = ev.Phase.String()
	m.dashboard.SetSnapshot(m.ctrl.Snapshot())

	if m.statusBar.Animating() && !m.framing {
		m.framing = true
		return frame()
	}
	return nil
}

func eventKind(ev session.Event) eventlog.Kind {
	switch {
	case ev.Err != nil:
		return eventlog.KindError
	case ev.Fix != nil, strings.HasPrefix(ev.Message, "Sending location"):
		return eventlog.KindFix
	case strings.Contains(ev.Message, "server"):
		return eventlog.KindNet
	default:
		return eventlog.KindInfo
	}
}

func (m Model) consentEnabled() bool {
	return !m.pending[ActionConsent]
}

func (m Model) startEnabled() bool {
	return !m.pending[ActionStart] && m.ctrl.CanStart()
}

func (m Model) stopEnabled() bool {
	return !m.pending[ActionStop] && m.ctrl.CanStop()
}

// run marks action pending and executes fn off the Update loop.
func (m Model) run(action Action, fn func(context.Context) error) tea.Cmd {
	m.pending[action] = true
	ctx := m.ctx
	return func() tea.Msg {
		return ActionDoneMsg{Action: action, Err: fn(ctx)}
	}
}

// waitForEvent blocks until the controller publishes an event.
func (m Model) waitForEvent() tea.Cmd {
	events, ctx := m.events, m.ctx
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		select {
		case ev, ok := <-events:
			if !ok {
				return EventsClosedMsg{}
			}
			return EventMsg(ev)
		case <-ctx.Done():
			return nil
		}
	}
}

func frame() tea.Cmd {
	return tea.Tick(status.FrameInterval, func(t time.Time) tea.Msg {
		return FrameMsg(t)
	})
}

func (m Model) quit() (tea.Model, tea.Cmd) {
	m.cancel()
	return m, tea.Quit
}

func (m *Model) setFocus(i int) {
	for j := range m.inputs {
		m.inputs[j].Blur()
	}
	m.focus = i
	if i != noFocus {
		m.inputs[i].Focus()
	}
}

func (m Model) userID() string {
	return strings.TrimSpace(m.inputs[fieldUser].Value())
}

func (m Model) serverURL() string {
	return strings.TrimSpace(m.inputs[fieldServer].Value())
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	switch m.overlay {
	case OverlayTerms:
		return m.center(consent.View(m.serverURL(), min(m.width, 84)))
	case OverlayNotice:
		return m.center(m.renderNotice())
	}

	top := []string{
		m.statusBar.View(),
		m.renderForm(),
		m.renderButtons(),
		m.dashboard.View(),
	}
	head := lipgloss.JoinVertical(lipgloss.Left, top...)
	help := theme.StyleDimmed.Render("  tab/e:edit  c:consent  s:start  x:stop  ?:terms  j/k:scroll log  q:quit")

	logHeight := m.height - lipgloss.Height(head) - lipgloss.Height(help)
	return lipgloss.JoinVertical(lipgloss.Left, head, m.log.View(m.width, logHeight), help)
}

func (m Model) renderForm() string {
	lines := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		prefix := "  "
		if i == m.focus {
			prefix = lipgloss.NewStyle().Foreground(theme.ColorFocused).Render("> ")
		}
		lines[i] = prefix + in.View()
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderButtons() string {
	button := func(k, label string, enabled, busy bool) string {
		text := "[" + k + "] " + label
		if busy {
			text += "..."
		}
		if enabled && !busy {
			return theme.StyleButton.Render(text)
		}
		return theme.StyleButtonDisabled.Render(text)
	}

	canStart := m.ctrl.CanStart()
	canStop := m.ctrl.CanStop()
	return lipgloss.JoinHorizontal(lipgloss.Top,
		" ",
		button("c", "Register consent", true, m.pending[ActionConsent]),
		" ",
		button("s", "Start sharing", canStart, m.pending[ActionStart]),
		" ",
		button("x", "Stop sharing", canStop, m.pending[ActionStop]),
	)
}

func (m Model) renderNotice() string {
	body := lipgloss.JoinVertical(lipgloss.Left,
		theme.StyleHeader.Render("Notice"),
		"",
		m.notice,
		"",
		theme.StyleDimmed.Render("Press esc to close."),
	)
	return lipgloss.NewStyle().
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorWarning).
		Render(body)
}

func (m Model) center(s string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, s)
}

var _ Controller = (*session.Controller)(nil)
