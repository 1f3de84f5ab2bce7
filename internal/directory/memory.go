package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"opsdesk.org/internal/ids"
)

// Memory is the in-process directory used by default and in tests.
type Memory struct {
	mu     sync.RWMutex
	users  map[string]*User
	emails map[string]string
	tokens map[string]*RefreshToken
}

var (
	_ Directory         = (*Memory)(nil)
	_ RefreshTokenStore = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		users:  make(map[string]*User),
		emails: make(map[string]string),
		tokens: make(map[string]*RefreshToken),
	}
}

// SeedUser creates an active account with a bcrypt-hashed password and
// returns its id.
func (m *Memory) SeedUser(email, name, password string, memberships []Membership) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return "", fmt.Errorf("valid email is required, got %q", email)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.emails[email]; exists {
		return "", fmt.Errorf("user %s already seeded", email)
	}
	user := &User{
		ID:           ids.New(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Status:       StatusActive,
		Memberships:  append([]Membership(nil), memberships...),
	}
	m.users[user.ID] = user
	m.emails[email] = user.ID
	return user.ID, nil
}

func (m *Memory) FindByEmail(_ context.Context, email string) (*User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.emails[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(m.users[id]), nil
}

func (m *Memory) FindByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Create(_ context.Context, tok *RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tok
	m.tokens[tok.ID] = &cp
	return nil
}

func (m *Memory) Find(_ context.Context, id string) (*RefreshToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tok, ok := m.tokens[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (m *Memory) MarkRevoked(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tok, ok := m.tokens[id]
	if !ok {
		return ErrNotFound
	}
	tok.Revoked = true
	return nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Memberships = append([]Membership(nil), u.Memberships...)
	return &cp
}
