// Package shell is the top-level view state machine of the client.
package shell

import "sync"

type View string

const (
	ViewLanding   View = "landing"
	ViewLogin     View = "login"
	ViewDashboard View = "dashboard"
	ViewSettings  View = "settings"
)

// Shell pins the view while the splash plays and otherwise follows the
// session: dashboard when signed in, landing when not.
type Shell struct {
	mu             sync.Mutex
	view           View
	splashComplete bool
	hasSession     bool
	menuOpen       bool
}

func New(hasSession bool) *Shell {
	return &Shell{view: ViewLanding, hasSession: hasSession}
}

func (s *Shell) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

func (s *Shell) SplashComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.splashComplete
}

func (s *Shell) CompleteSplash() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.splashComplete = true
	s.settle()
}

// SessionChanged re-evaluates the view after sign-in or expiry.
func (s *Shell) SessionChanged(hasSession bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasSession = hasSession
	if s.splashComplete {
		s.settle()
	}
}

func (s *Shell) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasSession = false
	s.menuOpen = false
	s.view = ViewLanding
}

// Navigate switches between dashboard and settings. It reports false when
// the move is not allowed.
func (s *Shell) Navigate(v View) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.splashComplete || !s.hasSession {
		return false
	}
	if v != ViewDashboard && v != ViewSettings {
		return false
	}
	s.view = v
	s.menuOpen = false
	return true
}

func (s *Shell) ToggleMenu() {
	s.mu.Lock()
	s.menuOpen = !s.menuOpen
	s.mu.Unlock()
}

func (s *Shell) MenuOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.menuOpen
}

func (s *Shell) settle() {
	if s.hasSession {
		if s.view != ViewSettings {
			s.view = ViewDashboard
		}
		return
	}
	s.view = ViewLanding
}
