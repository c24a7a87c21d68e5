// Package technicians holds the technician roster and availability.
package technicians

import (
	"fmt"
	"time"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

var (
	// ErrTechnicianNotFound is returned when no technician matches.
	ErrTechnicianNotFound = fmt.Errorf("technician: %w", httpx.ErrNotFound)
	// ErrAlreadyRostered is returned when a user is already on the roster.
	ErrAlreadyRostered = fmt.Errorf("technician already rostered: %w", httpx.ErrConflict)
)

// Technician is a rostered field technician. UserID links the roster entry
// to the technician's login account.
type Technician struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Skills    []string  `json:"skills"`
	Available bool      `json:"available"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CreateInput is the body of a roster addition.
type CreateInput struct {
	UserID    string   `json:"userId" validate:"required"`
	Name      string   `json:"name" validate:"required,max=120"`
	Skills    []string `json:"skills" validate:"omitempty,dive,required,max=64"`
	Available *bool    `json:"available"`
}

// AvailabilityInput toggles availability.
type AvailabilityInput struct {
	Available *bool `json:"available" validate:"required"`
}
