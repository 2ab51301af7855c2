// Package session tracks the signed-in user and tells interested parties
// when the identity changes.
//
// A session is persisted as JSON next to the local store so that every
// goalritual process on the machine sees the same identity. The Manager is
// also the session verifier the sync engine consults before each remote
// write: CurrentUserID fails when nobody is signed in or the session expired.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSignedOut is returned when no session is present.
	ErrSignedOut = errors.New("not signed in")
	// ErrExpired is returned when the stored session is past its expiry.
	ErrExpired = errors.New("session expired")
)

// DefaultTTL is how long a new session stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// FileName is the session file name inside the data directory.
const FileName = "session.json"

// User is an authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is a signed-in user plus its credential.
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the session is no longer valid at now.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// UserIDForEmail derives the stable user id for an email address. The same
// address yields the same id on every device.
func UserIDForEmail(email string) string {
	normalized := strings.ToLower(strings.TrimSpace(email))
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("goalritual:user:"+normalized)).String()
}

// NewSession creates a session for email valid for ttl from now.
func NewSession(email string, ttl time.Duration, now time.Time) (*Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("invalid email address %q", email)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Session{
		User:        User{ID: UserIDForEmail(email), Email: email},
		AccessToken: uuid.NewString(),
		ExpiresAt:   now.Add(ttl).UTC(),
	}, nil
}

// Listener is called with the new user after every identity change; nil
// means signed out.
type Listener func(user *User)

// Manager owns the current session.
type Manager struct {
	mu        sync.RWMutex
	path      string
	current   *Session
	listeners map[int]Listener
	nextID    int
	now       func() time.Time
}

// NewManager creates a manager persisting to path. An empty path keeps the
// session in memory only.
func NewManager(path string) *Manager {
	return &Manager{
		path:      path,
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Load reads the session file. A missing file leaves the manager signed out.
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("failed to parse session: %w", err)
	}

	m.mu.Lock()
	m.current = &s
	m.mu.Unlock()
	return nil
}

// Save writes the current session to disk, or removes the file when
// signed out.
func (m *Manager) Save() error {
	if m.path == "" {
		return nil
	}

	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	if cur == nil {
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	data, err := json.MarshalIndent(cur, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

// SignIn makes s the current session, persists it and notifies listeners.
func (m *Manager) SignIn(s *Session) error {
	if s == nil || s.User.ID == "" {
		return fmt.Errorf("session user id cannot be empty")
	}

	m.mu.Lock()
	cp := *s
	m.current = &cp
	m.mu.Unlock()

	if err := m.Save(); err != nil {
		return err
	}
	m.notify(&cp.User)
	return nil
}

// SignOut forgets the session and notifies listeners. Local data is not
// touched.
func (m *Manager) SignOut() error {
	m.mu.Lock()
	wasSignedIn := m.current != nil
	m.current = nil
	m.mu.Unlock()

	if err := m.Save(); err != nil {
		return err
	}
	if wasSignedIn {
		m.notify(nil)
	}
	return nil
}

// Current returns a copy of the session, or nil when signed out or expired.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil || m.current.Expired(m.now()) {
		return nil
	}
	cp := *m.current
	return &cp
}

// User returns the signed-in user, or nil.
func (m *Manager) User() *User {
	if s := m.Current(); s != nil {
		return &s.User
	}
	return nil
}

// CurrentUserID returns the id of the user holding a valid session.
func (m *Manager) CurrentUserID(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return "", ErrSignedOut
	}
	if m.current.Expired(m.now()) {
		return "", ErrExpired
	}
	return m.current.User.ID, nil
}

// OnChange registers fn for identity changes and returns a function that
// unregisters it.
func (m *Manager) OnChange(fn Listener) (cancel func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

func (m *Manager) notify(user *User) {
	m.mu.RLock()
	fns := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	m.mu.RUnlock()

	for _, fn := range fns {
		fn(user)
	}
}
