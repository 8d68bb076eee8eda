package gateway

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
)

// Session is the signed-in identity persisted between runs.
type Session struct {
	Token     string    `toml:"token"`
	UserID    uint      `toml:"user_id"`
	Username  string    `toml:"username"`
	ExpiresAt time.Time `toml:"expires_at"`
}

// SessionStore keeps the current session in a TOML file. An expired or
// missing session reads as signed out.
type SessionStore struct {
	path string
	now  func() time.Time

	mu      sync.RWMutex
	current *Session
}

func OpenSessionStore(path string) (*SessionStore, error) {
	s := &SessionStore{path: path, now: time.Now}
	var sess Session
	if _, err := toml.DecodeFile(path, &sess); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("decode session file failed: %w", err)
	}
	if sess.Token != "" {
		s.current = &sess
	}
	return s, nil
}

func (s *SessionStore) Token() (string, bool) {
	sess, ok := s.Current()
	if !ok {
		return "", false
	}
	return sess.Token, true
}

func (s *SessionStore) Current() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil || s.current.Token == "" {
		return Session{}, false
	}
	if !s.current.ExpiresAt.IsZero() && !s.now().Before(s.current.ExpiresAt) {
		return Session{}, false
	}
	return *s.current, true
}

func (s *SessionStore) SignedIn() bool {
	_, ok := s.Current()
	return ok
}

func (s *SessionStore) Save(result *AuthResult) error {
	if result == nil || result.Token == "" {
		return errors.New("empty auth result")
	}
	sess := &Session{
		Token:     result.Token,
		UserID:    result.User.ID,
		Username:  result.User.Username,
		ExpiresAt: result.ExpiresAt,
	}
	if err := s.write(sess); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = sess
	s.mu.Unlock()
	return nil
}

// Clear signs out and removes the file.
func (s *SessionStore) Clear() error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove session file failed: %w", err)
	}
	return nil
}

func (s *SessionStore) write(sess *Session) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir failed: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open session file failed: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(sess); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode session failed: %w", err)
	}
	return f.Close()
}
