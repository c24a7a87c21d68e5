package customers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Service applies the profile ownership rules.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Create registers the caller's own profile. Only CUSTOMER accounts have one.
func (s *Service) Create(ctx context.Context, caller trust.RequestIdentity, in ProfileInput) (Customer, error) {
	if _, err := authz.RequireRole(caller, principal.RoleCustomer); err != nil {
		return Customer{}, err
	}
	now := s.now().UTC()
	c := Customer{
		ID:        uuid.NewString(),
		UserID:    caller.UserID,
		Name:      in.Name,
		Phone:     in.Phone,
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Get returns a profile to its owner or to elevated staff.
func (s *Service) Get(ctx context.Context, caller trust.RequestIdentity, id string) (Customer, error) {
	if err := authz.RequireAuthenticated(caller); err != nil {
		return Customer{}, err
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Customer{}, err
	}
	if err := authz.RequireOwnershipOrElevated(caller, c.UserID); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// Update replaces the editable fields of a profile.
func (s *Service) Update(ctx context.Context, caller trust.RequestIdentity, id string, in ProfileInput) (Customer, error) {
	c, err := s.Get(ctx, caller, id)
	if err != nil {
		return Customer{}, err
	}
	c.Name = in.Name
	c.Phone = in.Phone
	c.Address = in.Address
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Customer{}, err
	}
	return c, nil
}

// List returns every profile. Elevated staff only.
func (s *Service) List(ctx context.Context, caller trust.RequestIdentity) ([]Customer, error) {
	if _, err := authz.RequireRole(caller, authz.Elevated()...); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}
