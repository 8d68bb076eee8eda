// Package settings holds the locally stored persona and the settings view
// state.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"cortex/internal/client/gateway"
)

const (
	// PersonaKey is the key the persona is stored under.
	PersonaKey = "cortex_system_instructions"

	DefaultPersona = "You are Cortex, a highly advanced enterprise intelligence engine. " +
		"Answer queries with precision, architectural structure, and professional tone."

	recentAuditLimit = 5
)

// Store is a flat key/value file, the terminal analog of browser storage.
type Store struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]string{}}
	if _, err := toml.DecodeFile(path, &s.values); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("decode settings file failed: %w", err)
	}
	return s, nil
}

// Persona returns the stored persona. ok is false when none was saved.
func (s *Store) Persona() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[PersonaKey]
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// PersonaOrDefault is what the settings editor shows.
func (s *Store) PersonaOrDefault() string {
	if v, ok := s.Persona(); ok {
		return v
	}
	return DefaultPersona
}

func (s *Store) SavePersona(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.values[PersonaKey]
	s.values[PersonaKey] = text
	if err := s.flush(); err != nil {
		if had {
			s.values[PersonaKey] = prev
		} else {
			delete(s.values, PersonaKey)
		}
		return err
	}
	return nil
}

func (s *Store) flush() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create settings dir failed: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open settings file failed: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(s.values); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode settings failed: %w", err)
	}
	return f.Close()
}

// AuditSource lists audit entries for the signed-in user.
type AuditSource interface {
	ListAuditLogs(ctx context.Context, limit int) ([]gateway.AuditLog, error)
}

// View is the settings screen: persona editor plus recent activity.
type View struct {
	store *Store
	audit AuditSource

	mu    sync.Mutex
	draft string
	logs  []gateway.AuditLog
	err   string
	saved bool
}

func NewView(store *Store, audit AuditSource) *View {
	return &View{store: store, audit: audit, draft: store.PersonaOrDefault()}
}

type Snapshot struct {
	Draft string
	Logs  []gateway.AuditLog
	Error string
	Saved bool
}

func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return Snapshot{
		Draft: v.draft,
		Logs:  append([]gateway.AuditLog(nil), v.logs...),
		Error: v.err,
		Saved: v.saved,
	}
}

func (v *View) SetDraft(text string) {
	v.mu.Lock()
	v.draft = text
	v.saved = false
	v.mu.Unlock()
}

func (v *View) Save() error {
	v.mu.Lock()
	draft := v.draft
	v.mu.Unlock()

	err := v.store.SavePersona(draft)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.err = err.Error()
		return err
	}
	v.err = ""
	v.saved = true
	return nil
}

// Refresh loads the most recent audit entries. Without a session the list
// stays empty.
func (v *View) Refresh(ctx context.Context) error {
	if v.audit == nil {
		return nil
	}
	logs, err := v.audit.ListAuditLogs(ctx, recentAuditLimit)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.logs = nil
		if errors.Is(err, gateway.ErrUnauthorized) {
			return nil
		}
		v.err = err.Error()
		return err
	}
	if len(logs) > recentAuditLimit {
		logs = logs[:recentAuditLimit]
	}
	v.logs = logs
	v.err = ""
	return nil
}
