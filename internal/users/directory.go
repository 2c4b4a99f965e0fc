// Package users is the account directory behind the gateway's /api routes.
package users

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrUserExists is returned by Create when the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by Get for unknown emails.
	ErrUserNotFound = errors.New("user not found")
)

// User is a registered account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	Role         string    `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Directory stores accounts keyed by normalized email.
type Directory interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, email string) (User, error)
}

// NormalizeEmail trims and lower-cases an email so lookups are
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// prepare fills the generated fields of a new account.
func prepare(u User) User {
	u.Email = NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return u
}

// MemoryDirectory keeps accounts in process memory.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryDirectory creates an empty MemoryDirectory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]User)}
}

// Create implements Directory.
func (d *MemoryDirectory) Create(_ context.Context, u User) (User, error) {
	u = prepare(u)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[u.Email]; exists {
		return User{}, ErrUserExists
	}
	d.users[u.Email] = u
	return u, nil
}

// Get implements Directory.
func (d *MemoryDirectory) Get(_ context.Context, email string) (User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[NormalizeEmail(email)]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}
