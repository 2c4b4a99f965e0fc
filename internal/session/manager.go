// Package session owns the authenticated identity (bearer token and role) of
// a mindful client. Every read and write of the two storage slots goes
// through Manager, which keeps them consistent: they are set together and
// cleared together, never one without the other.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mindfulsc/mindful/internal/state"
)

// Storage keys shared with every other client of the same store.
const (
	KeyToken    = "token"
	KeyUserRole = "userRole"
)

// ErrEmptyToken is returned by SetSession for a session without a token.
var ErrEmptyToken = errors.New("session token is empty")

// Session is the identity held by a client across requests.
type Session struct {
	Token string
	Role  string
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// Manager mediates all access to the stored session.
type Manager struct {
	mu    sync.Mutex
	store state.Store
}

// NewManager creates a Manager over store.
func NewManager(store state.Store) *Manager {
	return &Manager{store: store}
}

// GetSession returns the stored session. A missing or half-written session
// (a token without its role, or the reverse) reads as unauthenticated.
func (m *Manager) GetSession(ctx context.Context) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, hasToken, err := m.store.Get(ctx, KeyToken)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session token: %w", err)
	}
	role, hasRole, err := m.store.Get(ctx, KeyUserRole)
	if err != nil {
		return Session{}, fmt.Errorf("failed to read session role: %w", err)
	}
	if !hasToken || !hasRole || token == "" {
		return Session{}, nil
	}
	return Session{Token: token, Role: role}, nil
}

// SetSession stores token and role in one store operation.
func (m *Manager) SetSession(ctx context.Context, s Session) error {
	if s.Token == "" {
		return ErrEmptyToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	err := m.store.SetMany(ctx, map[string]string{
		KeyToken:    s.Token,
		KeyUserRole: s.Role,
	})
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// ClearSession removes token and role in one store operation. Clearing an
// empty session is not an error.
func (m *Manager) ClearSession(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteMany(ctx, KeyToken, KeyUserRole); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}
