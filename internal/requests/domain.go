// Package requests manages customer service requests and their assignment
// to technicians. It is the only service that calls its peers, and every
// such call goes through a circuit breaker.
package requests

import (
	"fmt"
	"strings"
	"time"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

// Status is the lifecycle state of a request.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

var (
	// ErrRequestNotFound is returned when no request matches.
	ErrRequestNotFound = fmt.Errorf("service request: %w", httpx.ErrNotFound)
	// ErrUnknownItem is returned when the catalog does not know the item.
	ErrUnknownItem = fmt.Errorf("%w: unknown catalog item", httpx.ErrValidation)
	// ErrUnknownTechnician is returned when the roster does not know the technician.
	ErrUnknownTechnician = fmt.Errorf("%w: unknown technician", httpx.ErrValidation)
	// ErrTechnicianUnavailable is returned when assigning an unavailable technician.
	ErrTechnicianUnavailable = fmt.Errorf("technician is not available: %w", httpx.ErrConflict)
	// ErrInvalidTransition is returned for status changes the lifecycle forbids.
	ErrInvalidTransition = fmt.Errorf("invalid status transition: %w", httpx.ErrConflict)
)

// transitions lists the allowed next states. ASSIGNED is only reached
// through assignment.
var transitions = map[Status][]Status{
	StatusOpen:       {StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

// ParseStatus converts a wire value into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusOpen, StatusAssigned, StatusInProgress, StatusCompleted, StatusCancelled:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", httpx.ErrValidation, raw)
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Assignable reports whether a technician may be (re)assigned in s.
func (s Status) Assignable() bool {
	return s == StatusOpen || s == StatusAssigned
}

// ServiceRequest is a customer's request for a catalog service.
type ServiceRequest struct {
	ID               string    `json:"id"`
	CustomerUserID   string    `json:"customerUserId"`
	ItemID           string    `json:"itemId"`
	ItemName         string    `json:"itemName"`
	ItemVerified     bool      `json:"itemVerified"`
	TechnicianID     string    `json:"technicianId,omitempty"`
	TechnicianUserID string    `json:"technicianUserId,omitempty"`
	Status           Status    `json:"status"`
	Description      string    `json:"description"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// CreateInput is the body of a new request.
type CreateInput struct {
	ItemID      string `json:"itemId" validate:"required"`
	Description string `json:"description" validate:"required,max=2000"`
}

// AssignInput is the body of an assignment.
type AssignInput struct {
	TechnicianID string `json:"technicianId" validate:"required"`
}

// StatusInput is the body of a status change.
type StatusInput struct {
	Status string `json:"status" validate:"required"`
}

// Item is the catalog's view of an item as far as requests needs it.
// Verified is false when the catalog could not be reached.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
}

// Technician is the roster's view of a technician.
type Technician struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Verified  bool   `json:"verified"`
}

// Detail is a request enriched with peer data. Degraded lists the peers
// whose data came from a fallback.
type Detail struct {
	Request    ServiceRequest `json:"request"`
	Item       Item           `json:"item"`
	Technician *Technician    `json:"technician,omitempty"`
	Degraded   []string       `json:"degraded,omitempty"`
}

// Notification is the payload sent to the notifications service.
type Notification struct {
	RecipientUserID string `json:"recipientUserId"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	ReferenceID     string `json:"referenceId,omitempty"`
}
