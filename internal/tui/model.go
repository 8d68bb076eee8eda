// Package tui is the terminal front-end of the Cortex client.
package tui

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"cortex/internal/client/gateway"
	"cortex/internal/conversation"
	"cortex/internal/knowledge"
	"cortex/internal/settings"
	"cortex/internal/shell"
)

const sidebarWidth = 36

type Authenticator interface {
	Login(ctx context.Context, username, password string) (*gateway.AuthResult, error)
	Register(ctx context.Context, username, email, password string) (*gateway.AuthResult, error)
}

type Sessions interface {
	Save(result *gateway.AuthResult) error
	Clear() error
	SignedIn() bool
}

type Router interface {
	Route(citation string) error
}

type Clipboard interface {
	Copy(text string) error
}

// Deps are the controllers and gateways the program drives.
type Deps struct {
	Shell     *shell.Shell
	Chat      *conversation.Controller
	Knowledge *knowledge.Panel
	Settings  *settings.View
	Router    Router
	Clipboard Clipboard
	Auth      Authenticator
	Sessions  Sessions
	Logger    *log.Logger

	TypewriterInterval time.Duration
	SplashDuration     time.Duration
}

type focus int

const (
	focusInput focus = iota
	focusKnowledge
	focusCitations
)

// Model is the bubbletea model for the whole client.
type Model struct {
	deps   Deps
	ctx    context.Context
	cancel context.CancelFunc
	logger *log.Logger

	width, height int

	focus      focus
	input      textinput.Model
	transcript viewport.Model
	persona    textarea.Model
	modal      textinput.Model
	spinner    spinner.Model
	reveal     *typewriter
	rendered   string

	auth authForm

	nodeCursor     int
	historyCursor  int
	citationCursor int
	status         string
	lastView       shell.View
}

func New(ctx context.Context, deps Deps) *Model {
	ctx, cancel := context.WithCancel(ctx)
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	input := textinput.New()
	input.Placeholder = "Ask Cortex about your knowledge base..."
	input.Prompt = "› "
	input.CharLimit = 4000
	input.Focus()

	persona := textarea.New()
	persona.ShowLineNumbers = false
	persona.CharLimit = 8000

	modal := textinput.New()
	modal.CharLimit = 2048

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = titleStyle

	m := &Model{
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
		input:      input,
		transcript: viewport.New(80, 20),
		persona:    persona,
		modal:      modal,
		spinner:    sp,
		reveal:     newTypewriter(deps.TypewriterInterval),
		auth:       newAuthForm(),
	}
	m.refreshTranscript()
	return m
}

type (
	splashDoneMsg struct{}
	chatDoneMsg   struct{ err error }
	historyMsg    struct{ err error }
	loadedMsg     struct{ err error }
	knowledgeMsg  struct{ err error }
	ingestMsg     struct{ err error }
	auditMsg      struct{ err error }
	authMsg       struct {
		result *gateway.AuthResult
		err    error
	}
)

func (m *Model) Init() tea.Cmd {
	splash := m.deps.SplashDuration
	if splash <= 0 {
		splash = 1500 * time.Millisecond
	}
	return tea.Batch(
		tea.Tick(splash, func(time.Time) tea.Msg { return splashDoneMsg{} }),
		m.spinner.Tick,
		textinput.Blink,
	)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmd := m.update(msg)
	if m.deps.Shell.View() == shell.ViewDashboard {
		m.refreshTranscript()
	}
	return m, cmd
}

func (m *Model) update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return nil

	case splashDoneMsg:
		if m.deps.Shell.SplashComplete() {
			return nil
		}
		m.deps.Shell.CompleteSplash()
		return m.viewChanged()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return cmd

	case revealTickMsg:
		return m.advanceReveal(msg)

	case chatDoneMsg:
		if msg.err != nil {
			m.logger.Printf("chat turn: %v", msg.err)
		}
		m.citationCursor = 0
		return m.startReveals()

	case historyMsg:
		m.historyCursor = 0
		return m.noteError("history", msg.err)

	case loadedMsg:
		m.stopReveals()
		return m.noteError("load conversation", msg.err)

	case knowledgeMsg:
		m.clampNodeCursor()
		return m.noteError("knowledge", msg.err)

	case ingestMsg:
		m.clampNodeCursor()
		if msg.err == nil {
			m.modal.Reset()
			m.modal.Blur()
			m.focus = focusKnowledge
		}
		return m.noteError("ingest", msg.err)

	case auditMsg:
		return m.noteError("audit", msg.err)

	case authMsg:
		return m.finishAuth(msg)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.forward(msg)
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return tea.Quit
	}
	if !m.deps.Shell.SplashComplete() {
		m.deps.Shell.CompleteSplash()
		return m.viewChanged()
	}
	if msg.String() == "f1" {
		m.deps.Shell.ToggleMenu()
		return nil
	}

	switch m.deps.Shell.View() {
	case shell.ViewDashboard:
		return m.dashboardKey(msg)
	case shell.ViewSettings:
		return m.settingsKey(msg)
	default:
		return m.landingKey(msg)
	}
}

// viewChanged reacts to a shell transition: the leaving view is disposed and
// the entered one loads its data.
func (m *Model) viewChanged() tea.Cmd {
	current := m.deps.Shell.View()
	previous := m.lastView
	m.lastView = current
	if previous == current && current != shell.ViewDashboard {
		return nil
	}

	if previous == shell.ViewDashboard && current != shell.ViewDashboard {
		m.stopReveals()
	}

	switch current {
	case shell.ViewDashboard:
		m.focus = focusInput
		m.persona.Blur()
		m.refreshTranscript()
		return tea.Batch(m.input.Focus(), m.refreshKnowledge())
	case shell.ViewSettings:
		m.input.Blur()
		m.persona.SetValue(m.deps.Settings.Snapshot().Draft)
		return tea.Batch(m.persona.Focus(), m.refreshAudit())
	default:
		m.input.Blur()
		m.persona.Blur()
		return m.auth.focus()
	}
}

func (m *Model) navigate(v shell.View) tea.Cmd {
	if !m.deps.Shell.Navigate(v) {
		return nil
	}
	return m.viewChanged()
}

func (m *Model) signOut() tea.Cmd {
	if err := m.deps.Sessions.Clear(); err != nil {
		m.logger.Printf("clear session: %v", err)
	}
	m.deps.Shell.SignOut()
	m.deps.Chat.NewConversation()
	m.auth.reset()
	m.status = ""
	return m.viewChanged()
}

// noteError logs a failed background call. A rejected token is dropped and
// the user goes back to the landing view.
func (m *Model) noteError(what string, err error) tea.Cmd {
	if err == nil {
		return nil
	}
	m.logger.Printf("%s: %v", what, err)
	if !errors.Is(err, gateway.ErrUnauthorized) {
		return nil
	}
	if clearErr := m.deps.Sessions.Clear(); clearErr != nil {
		m.logger.Printf("clear session: %v", clearErr)
	}
	m.status = "Session expired. Sign in again."
	m.deps.Shell.SessionChanged(false)
	return m.viewChanged()
}

func (m *Model) forward(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch m.deps.Shell.View() {
	case shell.ViewDashboard:
		if m.deps.Knowledge.Snapshot().Modal != knowledge.ModalNone {
			m.modal, cmd = m.modal.Update(msg)
			return cmd
		}
		m.input, cmd = m.input.Update(msg)
	case shell.ViewSettings:
		m.persona, cmd = m.persona.Update(msg)
	default:
		cmd = m.auth.update(msg)
	}
	return cmd
}

func (m *Model) resize(w, h int) {
	m.width, m.height = w, h
	mainWidth := w - sidebarWidth - 2
	if mainWidth < 20 {
		mainWidth = w
	}
	m.transcript.Width = mainWidth
	m.transcript.Height = max(h-8, 5)
	m.input.Width = max(mainWidth-4, 10)
	m.modal.Width = max(min(w-16, 70), 10)
	m.persona.SetWidth(max(w-6, 20))
	m.persona.SetHeight(max(h/3, 5))
	m.refreshTranscript()
}

// refreshTranscript re-renders the chat and follows the tail whenever the
// content changed.
func (m *Model) refreshTranscript() {
	snap := m.deps.Chat.Snapshot()
	content := renderTranscript(snap, m.reveal, m.citationFocus(), m.spinner.View(), m.transcript.Width)
	if content == m.rendered {
		return
	}
	m.rendered = content
	m.transcript.SetContent(content)
	m.transcript.GotoBottom()
}

func (m *Model) citationFocus() int {
	if m.focus != focusCitations {
		return -1
	}
	return m.citationCursor
}
