package technicians

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Service applies roster rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create adds a technician to the roster. ADMIN or MANAGER only. New
// technicians are available unless the input says otherwise.
func (s *Service) Create(ctx context.Context, caller trust.RequestIdentity, in CreateInput) (Technician, error) {
	if _, err := authz.RequireRole(caller, authz.Elevated()...); err != nil {
		return Technician{}, err
	}
	available := true
	if in.Available != nil {
		available = *in.Available
	}
	skills := make([]string, 0, len(in.Skills))
	for _, skill := range in.Skills {
		skills = append(skills, strings.ToLower(strings.TrimSpace(skill)))
	}
	t := Technician{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Name:      in.Name,
		Skills:    skills,
		Available: available,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return Technician{}, err
	}
	return t, nil
}

// Get returns a roster entry to any authenticated caller.
func (s *Service) Get(ctx context.Context, caller trust.RequestIdentity, id string) (Technician, error) {
	if err := authz.RequireAuthenticated(caller); err != nil {
		return Technician{}, err
	}
	return s.repo.Get(ctx, id)
}

// List returns the roster, optionally only available technicians.
func (s *Service) List(ctx context.Context, caller trust.RequestIdentity, availableOnly bool) ([]Technician, error) {
	if err := authz.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	all, err := s.repo.List(ctx)
	if err != nil || !availableOnly {
		return all, err
	}
	out := all[:0]
	for _, t := range all {
		if t.Available {
			out = append(out, t)
		}
	}
	return out, nil
}

// SetAvailability lets technicians toggle themselves; elevated staff may
// toggle anyone.
func (s *Service) SetAvailability(ctx context.Context, caller trust.RequestIdentity, id string, available bool) (Technician, error) {
	if err := authz.RequireAuthenticated(caller); err != nil {
		return Technician{}, err
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return Technician{}, err
	}
	if err := authz.RequireOwnershipOrElevated(caller, t.UserID); err != nil {
		return Technician{}, err
	}
	return s.repo.SetAvailability(ctx, id, available)
}
