// Package ui is the interactive terminal view over a session.Session.
package ui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/darkprince558/burrow/internal/exchange"
	"github.com/darkprince558/burrow/internal/notify"
	"github.com/darkprince558/burrow/internal/session"
)

type Role int

const (
	RoleHost Role = iota
	RoleJoiner
)

func (r Role) String() string {
	if r == RoleJoiner {
		return "join"
	}
	return "host"
}

// Mode is what the text input is currently being used for.
type Mode int

const (
	ModeToken Mode = iota
	ModeImportPath
	ModeExportPath
	ModeEndpoint
)

const refreshInterval = 250 * time.Millisecond

// Messages
type changedMsg struct{}
type refreshMsg time.Time
type actionDoneMsg struct {
	op  string
	err error
}
type importedMsg struct {
	token string
	err   error
}

// Clipboard is the subset of exchange.Clipboard the view needs.
type Clipboard interface {
	session.Sink
	session.Source
}

type Options struct {
	Clipboard   Clipboard
	FileTimeout time.Duration
}

type Model struct {
	Role    Role
	Mode    Mode
	Session *session.Session

	Input    textinput.Model
	Log      viewport.Model
	Spinner  spinner.Model
	Snapshot session.Snapshot
	Notes    []notify.Notification
	Err      error
	Width    int
	Exit     bool

	ctx     context.Context
	cancel  context.CancelFunc
	changes chan struct{}
	attach  *attachment
	clip    Clipboard
	fileIO  time.Duration
}

// attachment is shared by every copy of the model so Init and quit see the
// same observer registration.
type attachment struct {
	unobserve func()
}

func NewModel(role Role, s *session.Session, opts Options) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(ColorSecondary)

	in := textinput.New()
	in.CharLimit = 0
	in.Width = 56
	in.Focus()

	vp := viewport.New(60, 8)
	vp.Style = LogStyle

	if opts.Clipboard == nil {
		opts.Clipboard = exchange.Clipboard{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := Model{
		Role:     role,
		Session:  s,
		Input:    in,
		Log:      vp,
		Spinner:  sp,
		Snapshot: s.Snapshot(),
		Width:    64,
		ctx:      ctx,
		cancel:   cancel,
		changes:  make(chan struct{}, 1),
		attach:   &attachment{},
		clip:     opts.Clipboard,
		fileIO:   opts.FileTimeout,
	}
	m.resetInput()
	return m
}

// Init attaches the view to the session. Quitting detaches it again.
func (m Model) Init() tea.Cmd {
	changes := m.changes
	m.attach.unobserve = m.Session.Observe(func(session.Change) {
		select {
		case changes <- struct{}{}:
		default:
		}
	})
	m.Session.Subscribe()
	return tea.Batch(m.Spinner.Tick, m.waitForChange(), tick())
}

func (m Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		<-ch
		return changedMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width - 4
		m.Log.Width = m.Width
		m.Input.Width = m.Width - 4
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case refreshMsg:
		m.refresh()
		return m, tick()

	case actionDoneMsg:
		m.Err = nil
		if msg.err != nil && !errors.Is(msg.err, session.ErrStale) {
			m.Err = fmt.Errorf("%s: %w", msg.op, msg.err)
		}
		m.refresh()
		return m, nil

	case importedMsg:
		m.refresh()
		if msg.err == nil && msg.token != "" {
			m.Mode = ModeToken
			m.Input.Reset()
			m.resetInput()
			m.Input.SetValue(msg.token)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quit()
		return m, tea.Quit

	case "esc":
		return m.cancelMode()

	case "enter":
		return m.submit()

	case "ctrl+g":
		if m.Role != RoleHost || m.Mode != ModeToken {
			return m, nil
		}
		s, ctx := m.Session, m.ctx
		return m, func() tea.Msg {
			return actionDoneMsg{op: "generate offer", err: s.GenerateOffer(ctx)}
		}

	case "ctrl+y":
		token, kind := m.outgoing()
		s, ctx, clip := m.Session, m.ctx, m.clip
		return m, func() tea.Msg {
			return actionDoneMsg{op: "copy", err: s.ExportToken(ctx, token, kind, clip)}
		}

	case "ctrl+s":
		token, kind := m.outgoing()
		if token == "" {
			s, ctx := m.Session, m.ctx
			return m, func() tea.Msg {
				return actionDoneMsg{op: "export", err: s.ExportToken(ctx, "", kind, exchange.File{})}
			}
		}
		m.enterMode(ModeExportPath, exchange.DefaultFileName(kind, m.Snapshot.Label))
		return m, nil

	case "ctrl+o":
		m.enterMode(ModeImportPath, "")
		return m, nil

	case "ctrl+v":
		s, ctx, clip := m.Session, m.ctx, m.clip
		return m, func() tea.Msg {
			token, err := s.ImportToken(ctx, clip)
			return importedMsg{token: token, err: err}
		}

	case "ctrl+e":
		if m.Snapshot.Status != session.StatusDisconnected {
			m.Err = session.ErrNotEditable
			return m, nil
		}
		value := m.Snapshot.PeerAddress
		if m.Role == RoleJoiner {
			value = m.Snapshot.LocalPort
		}
		m.enterMode(ModeEndpoint, value)
		return m, nil

	case "ctrl+x":
		if n := len(m.Notes); n > 0 {
			m.Session.Notifications().Remove(m.Notes[n-1].ID)
			m.refresh()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.Input, cmd = m.Input.Update(msg)
	return m, cmd
}

// submit acts on the text input according to the current mode.
func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.Input.Value()
	s, ctx := m.Session, m.ctx

	switch m.Mode {
	case ModeImportPath:
		m.leaveMode()
		src := exchange.File{Path: value, Timeout: m.fileIO}
		return m, func() tea.Msg {
			token, err := s.ImportToken(ctx, src)
			return importedMsg{token: token, err: err}
		}

	case ModeExportPath:
		m.leaveMode()
		token, kind := m.outgoing()
		sink := exchange.File{Path: value, Timeout: m.fileIO}
		return m, func() tea.Msg {
			return actionDoneMsg{op: "export", err: s.ExportToken(ctx, token, kind, sink)}
		}

	case ModeEndpoint:
		var err error
		if m.Role == RoleJoiner {
			err = s.SetLocalPort(value)
		} else {
			err = s.SetPeerAddress(value)
		}
		m.leaveMode()
		m.Err = err
		m.refresh()
		return m, nil
	}

	m.Input.Reset()
	if m.Role == RoleHost {
		return m, func() tea.Msg {
			return actionDoneMsg{op: "accept answer", err: s.AcceptAnswer(ctx, value)}
		}
	}
	return m, func() tea.Msg {
		return actionDoneMsg{op: "accept offer", err: s.AcceptOffer(ctx, value)}
	}
}

// cancelMode backs out of a path prompt. Backing out of a file prompt is
// the user picking no file, which the session records.
func (m Model) cancelMode() (tea.Model, tea.Cmd) {
	mode := m.Mode
	m.leaveMode()
	s, ctx := m.Session, m.ctx

	switch mode {
	case ModeImportPath:
		return m, func() tea.Msg {
			token, err := s.ImportToken(ctx, exchange.File{})
			return importedMsg{token: token, err: err}
		}
	case ModeExportPath:
		token, kind := m.outgoing()
		return m, func() tea.Msg {
			return actionDoneMsg{op: "export", err: s.ExportToken(ctx, token, kind, exchange.File{})}
		}
	}
	return m, nil
}

// outgoing names the token kind this role produces even before one exists.
func (m Model) outgoing() (string, session.TokenKind) {
	token, kind := m.Snapshot.Outgoing()
	if kind == "" {
		kind = session.KindOffer
		if m.Role == RoleJoiner {
			kind = session.KindAnswer
		}
	}
	return token, kind
}

func (m *Model) enterMode(mode Mode, value string) {
	m.Mode = mode
	m.Input.Reset()
	m.resetInput()
	m.Input.SetValue(value)
	m.Input.CursorEnd()
}

func (m *Model) leaveMode() {
	m.Mode = ModeToken
	m.Input.Reset()
	m.resetInput()
}

func (m *Model) resetInput() {
	switch m.Mode {
	case ModeImportPath:
		m.Input.Placeholder = "path to token file"
	case ModeExportPath:
		m.Input.Placeholder = "save token as"
	case ModeEndpoint:
		if m.Role == RoleJoiner {
			m.Input.Placeholder = "local port"
		} else {
			m.Input.Placeholder = "host:port of the server to share"
		}
	default:
		if m.Role == RoleJoiner {
			m.Input.Placeholder = "paste the host's offer token"
		} else {
			m.Input.Placeholder = "paste the joiner's answer token"
		}
	}
}

func (m *Model) refresh() {
	m.Snapshot = m.Session.Snapshot()
	m.Notes = m.Session.Notifications().List()
	m.Log.SetContent(ViewLog(m.Snapshot.Log))
	m.Log.GotoBottom()
}

func (m *Model) quit() {
	m.Exit = true
	if m.attach.unobserve != nil {
		m.attach.unobserve()
		m.attach.unobserve = nil
	}
	m.Session.Unsubscribe()
	m.cancel()
}

func (m Model) View() string {
	snap := m.Snapshot

	header := lipgloss.JoinHorizontal(lipgloss.Center,
		TitleStyle.Render("burrow "+m.Role.String()),
		HelpStyle.Render(snap.Label),
		" ",
		StatusBadge(snap.Status),
	)
	if snap.Busy {
		header += " " + m.Spinner.View()
	}

	endpoint := LabelStyle.Render("Server address") + snap.PeerAddress
	if m.Role == RoleJoiner {
		endpoint = LabelStyle.Render("Local port") + snap.LocalPort
	}

	token, kind := snap.Outgoing()
	prompt := m.promptLabel()

	sections := []string{
		header,
		endpoint,
		ViewToken(token, kind, m.Width-4),
		LabelStyle.Render(prompt),
		m.Input.View(),
		m.Log.View(),
	}
	if m.Err != nil && !errors.Is(m.Err, session.ErrEmptyToken) {
		sections = append(sections, ErrorStyle.Render(m.Err.Error()))
	}
	if toasts := ViewNotifications(m.Notes, m.Width-6); toasts != "" {
		sections = append(sections, toasts)
	}
	sections = append(sections, HelpStyle.Render(m.help()))

	return ContainerStyle.Width(m.Width).Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) promptLabel() string {
	switch m.Mode {
	case ModeImportPath:
		return "Import from"
	case ModeExportPath:
		return "Export to"
	case ModeEndpoint:
		return "Edit endpoint"
	}
	if m.Role == RoleJoiner {
		return "Offer"
	}
	return "Answer"
}

func (m Model) help() string {
	if m.Mode != ModeToken {
		return "enter confirm • esc cancel"
	}
	h := "enter accept • ctrl+y copy • ctrl+s save • ctrl+o open • ctrl+v paste • ctrl+e endpoint • ctrl+x dismiss • ctrl+c quit"
	if m.Role == RoleHost {
		h = "ctrl+g generate offer • " + h
	}
	return h
}
