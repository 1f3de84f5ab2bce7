// Package directory is the user/membership backend of the development
// auth server: account lookup, password verification material, and the
// rotating refresh-token store.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("directory: not found")
	ErrRevoked  = errors.New("directory: token revoked")
)

const (
	StatusActive   = "active"
	StatusDisabled = "disabled"
)

// Membership links a user to one company with the role held there.
type Membership struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Role        string `json:"role"`
}

// User is an account known to the directory.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Status       string
	Memberships  []Membership
}

// Active reports whether the account may authenticate.
func (u *User) Active() bool {
	return u.Status == StatusActive
}

// RefreshToken is a persisted, hashed refresh credential. The raw secret
// never touches storage.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	Revoked   bool
}

// Directory resolves users for authentication.
type Directory interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Ping(ctx context.Context) error
}

// RefreshTokenStore manages refresh-token lifecycle.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	MarkRevoked(ctx context.Context, id string) error
}
