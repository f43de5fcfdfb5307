// Package session owns the process-wide session table: creation,
// validation, anti-forgery tokens, idle expiry, and opportunistic
// persistence.
package session

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"
	"time"

	apperrors "arcane/pkg/errors"
	"arcane/pkg/logger"
	"arcane/pkg/storage"
)

// sessionsKey is the settings key the table persists under
const sessionsKey = "sessions"

// Session represents an authenticated web session
type Session struct {
	ID        string    `json:"id"`
	CSRFToken string    `json:"csrfToken"`
	Username  string    `json:"username"`
	Roles     []string  `json:"roles"`
	LoggedIn  bool      `json:"loggedIn"`
	LastUsed  time.Time `json:"lastUsed"`
}

// Manager owns the session table. All mutation goes through its mutex; the
// table is persisted to the store synchronously after every change, so a
// crash loses at most the last mutation.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	store    storage.Store // nil disables persistence
	timeout  time.Duration // 0 disables idle expiry
	sweep    time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager creates a session manager. A previously persisted table is
// reloaded so sessions survive a restart. When timeout is non-zero a
// background sweep removes idle-expired entries every sweep interval; an
// entry may therefore outlive its idle point by up to the sweep interval.
func NewManager(store storage.Store, timeout, sweep time.Duration) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		store:    store,
		timeout:  timeout,
		sweep:    sweep,
		stop:     make(chan struct{}),
	}

	m.load()

	if timeout > 0 {
		go m.sweepLoop()
	}

	return m
}

// Create mints a fresh session with unguessable session and CSRF tokens
func (m *Manager) Create(username string, roles []string) (*Session, error) {
	id, err := generateToken()
	if err != nil {
		return nil, err
	}
	csrf, err := generateToken()
	if err != nil {
		return nil, err
	}

	session := &Session{
		ID:        id,
		CSRFToken: csrf,
		Username:  username,
		Roles:     roles,
		LoggedIn:  true,
		LastUsed:  time.Now(),
	}

	m.mu.Lock()
	m.sessions[id] = session
	m.persistLocked()
	m.mu.Unlock()

	return session, nil
}

// Validate checks a session id and, when required, the presented CSRF
// token. On success the entry's last-used time is refreshed. A CSRF
// mismatch leaves the entry untouched so it reveals nothing about session
// state; a logged-out entry is purged on encounter.
func (m *Manager) Validate(id string, requireCSRF bool, presented string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionUnknown
	}

	if !session.LoggedIn {
		delete(m.sessions, id)
		m.persistLocked()
		return nil, apperrors.ErrSessionLoggedOut
	}

	if requireCSRF {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(session.CSRFToken)) != 1 {
			return nil, apperrors.ErrCsrfMismatch
		}
	}

	session.LastUsed = time.Now()
	m.persistLocked()
	return session, nil
}

// Lookup reads the table directly without refreshing last-used or purging
// logged-out entries. This is the narrower check used by the realtime
// handshake; the HTTP path goes through Validate.
func (m *Manager) Lookup(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	return session, ok
}

// Logout marks a session logged out. The entry is removed on its next
// validation attempt; it never satisfies an authorization check again.
func (m *Manager) Logout(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		session.LoggedIn = false
		m.persistLocked()
	}
}

// Count returns the number of table entries
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops the background sweep
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

// sweepLoop periodically removes idle-expired sessions
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce(time.Now())
		}
	}
}

// sweepOnce removes every entry idle longer than the timeout
func (m *Manager) sweepOnce(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, session := range m.sessions {
		if now.Sub(session.LastUsed) > m.timeout {
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.persistLocked()
		logger.Get().DebugWith("session sweep", "removed", removed, "remaining", len(m.sessions))
	}
}

// persistLocked writes the full table to the store. Callers hold the mutex.
// Persistence failures are logged, not propagated; the in-memory table is
// authoritative.
func (m *Manager) persistLocked() {
	if m.store == nil {
		return
	}

	data, err := json.Marshal(m.sessions)
	if err != nil {
		logger.Get().ErrorWithErr("failed to encode session table", err)
		return
	}
	if err := m.store.SetSetting(sessionsKey, string(data)); err != nil {
		logger.Get().ErrorWithErr("failed to persist session table", err)
	}
}

// load restores a previously persisted table
func (m *Manager) load() {
	if m.store == nil {
		return
	}

	data, err := m.store.GetSetting(sessionsKey)
	if err != nil {
		if !errors.Is(err, apperrors.ErrSettingNotFound) {
			logger.Get().WarnWith("failed to load session table", "error", err)
		}
		return
	}

	if err := json.Unmarshal([]byte(data), &m.sessions); err != nil {
		logger.Get().WarnWith("discarding corrupt session table", "error", err)
		m.sessions = make(map[string]*Session)
	}
}

// generateToken returns 32 bytes of cryptographic randomness, base64url
// encoded
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
