package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"cortex/internal/client/gateway"
)

const (
	fieldUsername = iota
	fieldEmail
	fieldPassword
)

// authForm is the sign-in / register card on the landing view.
type authForm struct {
	fields   []textinput.Model
	active   int
	register bool
	busy     bool
	err      string
}

func newAuthForm() authForm {
	placeholders := []string{"username", "email", "password"}
	fields := make([]textinput.Model, len(placeholders))
	for i, p := range placeholders {
		ti := textinput.New()
		ti.Placeholder = p
		ti.Prompt = "  "
		ti.CharLimit = 128
		ti.Width = 32
		fields[i] = ti
	}
	fields[fieldPassword].EchoMode = textinput.EchoPassword
	fields[fieldPassword].EchoCharacter = '•'
	return authForm{fields: fields}
}

// order lists the fields shown in the current mode.
func (f *authForm) order() []int {
	if f.register {
		return []int{fieldUsername, fieldEmail, fieldPassword}
	}
	return []int{fieldUsername, fieldPassword}
}

func (f *authForm) focus() tea.Cmd {
	for i := range f.fields {
		f.fields[i].Blur()
	}
	order := f.order()
	if f.active >= len(order) {
		f.active = 0
	}
	f.fields[order[f.active]].Prompt = "› "
	for _, idx := range order {
		if idx != order[f.active] {
			f.fields[idx].Prompt = "  "
		}
	}
	return f.fields[order[f.active]].Focus()
}

func (f *authForm) move(delta int) tea.Cmd {
	n := len(f.order())
	f.active = (f.active + delta + n) % n
	return f.focus()
}

func (f *authForm) toggleMode() tea.Cmd {
	f.register = !f.register
	f.active = 0
	f.err = ""
	return f.focus()
}

func (f *authForm) reset() {
	for i := range f.fields {
		f.fields[i].Reset()
	}
	f.active = 0
	f.busy = false
	f.err = ""
}

func (f *authForm) update(msg tea.Msg) tea.Cmd {
	idx := f.order()[f.active]
	var cmd tea.Cmd
	f.fields[idx], cmd = f.fields[idx].Update(msg)
	return cmd
}

func (f *authForm) value(field int) string {
	return strings.TrimSpace(f.fields[field].Value())
}

// problem names the first missing field for the current mode, or "".
func (f *authForm) problem() string {
	switch {
	case f.value(fieldUsername) == "":
		return "Username is required."
	case f.register && !strings.Contains(f.value(fieldEmail), "@"):
		return "A valid email is required."
	case f.fields[fieldPassword].Value() == "":
		return "Password is required."
	}
	return ""
}

func (m *Model) landingKey(msg tea.KeyMsg) tea.Cmd {
	if m.auth.busy {
		return nil
	}
	switch msg.String() {
	case "tab", "down":
		return m.auth.move(1)
	case "shift+tab", "up":
		return m.auth.move(-1)
	case "ctrl+r":
		return m.auth.toggleMode()
	case "enter":
		if m.auth.active < len(m.auth.order())-1 {
			return m.auth.move(1)
		}
		return m.submitAuth()
	}
	return m.auth.update(msg)
}

func (m *Model) submitAuth() tea.Cmd {
	if problem := m.auth.problem(); problem != "" {
		m.auth.err = problem
		return nil
	}
	m.auth.busy = true
	m.auth.err = ""

	ctx := m.ctx
	auth := m.deps.Auth
	username := m.auth.value(fieldUsername)
	email := m.auth.value(fieldEmail)
	password := m.auth.fields[fieldPassword].Value()
	register := m.auth.register
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		var (
			result *gateway.AuthResult
			err    error
		)
		if register {
			result, err = auth.Register(ctx, username, email, password)
		} else {
			result, err = auth.Login(ctx, username, password)
		}
		return authMsg{result: result, err: err}
	})
}

func (m *Model) finishAuth(msg authMsg) tea.Cmd {
	m.auth.busy = false
	if msg.err != nil {
		m.logger.Printf("authenticate: %v", msg.err)
		m.auth.err = authErrorText(msg.err)
		return nil
	}
	if err := m.deps.Sessions.Save(msg.result); err != nil {
		m.logger.Printf("save session: %v", err)
		m.auth.err = "Could not store the session."
		return nil
	}
	m.auth.reset()
	m.status = ""
	m.deps.Shell.SessionChanged(true)
	return m.viewChanged()
}

func authErrorText(err error) string {
	var apiErr *gateway.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, gateway.ErrUnauthorized) {
		return "Invalid username or password."
	}
	return "Cannot reach the Cortex server."
}
