package auth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Session is a logged-in client: the bearer token and who it belongs to.
type Session struct {
	Token     string     `json:"token"`
	User      *Principal `json:"user"`
	ExpiresAt time.Time  `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// SessionSource reports the current session, if any. Implementations must be
// safe for concurrent use.
type SessionSource interface {
	Current() (*Session, bool)
}

// MemorySession holds a session in memory.
type MemorySession struct {
	mu      sync.RWMutex
	session *Session
	now     func() time.Time
}

// NewMemorySession returns a source holding s. A nil s starts logged out.
func NewMemorySession(s *Session) *MemorySession {
	return &MemorySession{session: s, now: time.Now}
}

// Current returns the session unless it is missing or expired.
func (m *MemorySession) Current() (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil || m.session.Token == "" || m.session.Expired(m.now()) {
		return nil, false
	}
	s := *m.session
	return &s, true
}

// Set replaces the session.
func (m *MemorySession) Set(s *Session) {
	m.mu.Lock()
	m.session = s
	m.mu.Unlock()
}

// Clear logs the session out.
func (m *MemorySession) Clear() {
	m.Set(nil)
}

// DefaultSessionFile is where portalctl keeps its session between runs.
func DefaultSessionFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user config dir")
	}
	return filepath.Join(dir, "county-portal", "session.json"), nil
}

// LoadSession reads a session saved by SaveSession. A missing file yields a
// logged-out source rather than an error.
func LoadSession(path string) (*MemorySession, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewMemorySession(nil), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read session %s", path)
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrapf(err, "decode session %s", path)
	}
	return NewMemorySession(&s), nil
}

// SaveSession writes s to path with owner-only permissions.
func SaveSession(path string, s *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return errors.Wrap(err, "create session dir")
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode session")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "write session")
}
