// Package customers manages customer profiles. A profile belongs to exactly
// one user account and is visible to its owner and to ADMIN or MANAGER staff.
package customers

import (
	"fmt"
	"time"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

var (
	// ErrCustomerNotFound is returned when no profile matches.
	ErrCustomerNotFound = fmt.Errorf("customer: %w", httpx.ErrNotFound)
	// ErrProfileExists is returned when a user already owns a profile.
	ErrProfileExists = fmt.Errorf("customer profile already exists: %w", httpx.ErrConflict)
)

// Customer is a customer profile.
type Customer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ProfileInput carries the editable fields.
type ProfileInput struct {
	Name    string `json:"name" validate:"required,max=120"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	Address string `json:"address" validate:"omitempty,max=255"`
}
