// Package users is the identity service: it owns user accounts and is the
// only component that issues credentials.
package users

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
)

var (
	// ErrInvalidCredentials covers unknown emails, wrong passwords and
	// inactive accounts alike.
	ErrInvalidCredentials = fmt.Errorf("users: invalid credentials: %w", httpx.ErrUnauthorized)
	ErrEmailTaken         = fmt.Errorf("users: email already registered: %w", httpx.ErrConflict)
	ErrUserNotFound       = fmt.Errorf("users: user not found: %w", httpx.ErrNotFound)
	ErrSamePassword       = fmt.Errorf("%w: new password must differ from the current one", httpx.ErrValidation)
	ErrWrongPassword      = fmt.Errorf("%w: current password is incorrect", httpx.ErrValidation)
)

// User is a stored account.
type User struct {
	ID                  string
	Email               string
	PasswordHash        string
	Role                principal.Role
	NeedsPasswordChange bool
	Active              bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// View is the wire representation of a user. It never carries the hash.
type View struct {
	ID                  string    `json:"id"`
	Email               string    `json:"email"`
	Role                string    `json:"role"`
	NeedsPasswordChange bool      `json:"needsPasswordChange"`
	Active              bool      `json:"active"`
	CreatedAt           time.Time `json:"createdAt"`
}

// View converts u for responses.
func (u User) View() View {
	return View{
		ID:                  u.ID,
		Email:               u.Email,
		Role:                u.Role.String(),
		NeedsPasswordChange: u.NeedsPasswordChange,
		Active:              u.Active,
		CreatedAt:           u.CreatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
