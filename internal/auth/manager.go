// Package auth handles account registration, login, and bearer-token sessions.
package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"listkeep/internal/storage"
)

const (
	// SessionTTL is how long a login stays valid without re-authenticating.
	SessionTTL = 30 * 24 * time.Hour

	minPasswordLen = 8
)

var (
	// ErrInvalidInput wraps validation failures on registration input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmailTaken is returned when registering an email that already has an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrBadCredentials is returned on login when the email is unknown or the
	// password does not match. The two cases are deliberately indistinguishable.
	ErrBadCredentials = errors.New("bad credentials")

	// ErrInvalidSession is returned when a bearer token is unknown or expired.
	ErrInvalidSession = errors.New("invalid session")
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	CreateUser(u storage.User) error
	GetUser(id string) (storage.User, error)
	GetUserByEmail(email string) (storage.User, error)
	CreateSession(sess storage.Session) error
	GetSession(token string) (storage.Session, error)
	DeleteSession(token string) error
	DeleteExpiredSessions(now time.Time) (int64, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Manager provides account and session operations on top of the store.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration
}

// NewManager creates a Manager with the default session TTL.
func NewManager(store Store) *Manager {
	return &Manager{store: store, clock: realClock{}, ttl: SessionTTL}
}

// NewManagerWithTTL creates a Manager with a custom session TTL.
func NewManagerWithTTL(store Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &Manager{store: store, clock: realClock{}, ttl: ttl}
}

// NewManagerWithClock creates a Manager with a custom clock and TTL (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl}
}

// Register creates an account. The email is stored as given (lookup is
// case-insensitive); the password is hashed with argon2id before it touches
// the database.
func (m *Manager) Register(email, password string) (storage.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return storage.User{}, fmt.Errorf("%w: email must contain '@'", ErrInvalidInput)
	}
	if len(password) < minPasswordLen {
		return storage.User{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return storage.User{}, fmt.Errorf("hashing password: %w", err)
	}

	u := storage.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    m.clock.Now().UTC(),
	}
	if err := m.store.CreateUser(u); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return storage.User{}, ErrEmailTaken
		}
		return storage.User{}, fmt.Errorf("creating user: %w", err)
	}
	return u, nil
}

// Login verifies credentials and mints a new session token.
func (m *Manager) Login(email, password string) (storage.Session, error) {
	u, err := m.store.GetUserByEmail(strings.TrimSpace(email))
	if errors.Is(err, storage.ErrNotFound) {
		// Burn a hash anyway so unknown emails cost the same as wrong passwords.
		HashPassword(password)
		return storage.Session{}, ErrBadCredentials
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return storage.Session{}, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return storage.Session{}, ErrBadCredentials
	}

	now := m.clock.Now().UTC()
	sess := storage.Session{
		Token:     uuid.NewString(),
		UserID:    u.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.CreateSession(sess); err != nil {
		return storage.Session{}, fmt.Errorf("creating session: %w", err)
	}
	return sess, nil
}

// Logout invalidates a session token. Unknown tokens are not an error.
func (m *Manager) Logout(token string) error {
	err := m.store.DeleteSession(token)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return err
}

// Authenticate resolves a bearer token to its user. Expired sessions are
// deleted on sight.
func (m *Manager) Authenticate(token string) (storage.User, error) {
	if token == "" {
		return storage.User{}, ErrInvalidSession
	}

	sess, err := m.store.GetSession(token)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrInvalidSession
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("looking up session: %w", err)
	}

	if !m.clock.Now().Before(sess.ExpiresAt) {
		if err := m.store.DeleteSession(token); err != nil && !errors.Is(err, storage.ErrNotFound) {
			slog.Warn("failed to delete expired session", "error", err)
		}
		return storage.User{}, ErrInvalidSession
	}

	u, err := m.store.GetUser(sess.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.User{}, ErrInvalidSession
	}
	if err != nil {
		return storage.User{}, fmt.Errorf("looking up session user: %w", err)
	}
	return u, nil
}

// Sweep removes expired sessions. Intended to run periodically from the server.
func (m *Manager) Sweep() {
	n, err := m.store.DeleteExpiredSessions(m.clock.Now())
	if err != nil {
		slog.Warn("session sweep failed", "error", err)
		return
	}
	if n > 0 {
		slog.Debug("swept expired sessions", "count", n)
	}
}
