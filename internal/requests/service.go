package requests

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/resilience"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Service wraps the request lifecycle rules.
type Service struct {
	repo   Repository
	peers  Peers
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService constructs a Service.
func NewService(repo Repository, peers Peers, opts ...Option) *Service {
	s := &Service{repo: repo, peers: peers, logger: slog.New(slog.DiscardHandler), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens a request for the calling customer. An unreachable catalog
// leaves the item unverified; an item the catalog does not know is rejected.
func (s *Service) Create(ctx context.Context, caller trust.RequestIdentity, in CreateInput) (ServiceRequest, error) {
	if _, err := authz.RequireRole(caller, principal.RoleCustomer); err != nil {
		return ServiceRequest{}, err
	}
	item, err := s.peers.Item(ctx, caller, in.ItemID)
	if err != nil {
		if isNotFound(err) {
			return ServiceRequest{}, ErrUnknownItem
		}
		return ServiceRequest{}, fmt.Errorf("look up catalog item: %w", err)
	}
	now := s.now().UTC()
	req := ServiceRequest{
		ID:             uuid.NewString(),
		CustomerUserID: caller.UserID,
		ItemID:         in.ItemID,
		ItemName:       item.Name,
		ItemVerified:   item.Verified,
		Status:         StatusOpen,
		Description:    in.Description,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		return ServiceRequest{}, err
	}
	s.peers.Notify(ctx, caller, Notification{
		RecipientUserID: caller.UserID,
		Subject:         "Service request received",
		Body:            fmt.Sprintf("We received your request for %s.", displayName(req)),
		ReferenceID:     req.ID,
	})
	return req, nil
}

// Assign hands an open or assigned request to an available technician.
// ADMIN or MANAGER only. Without the roster there is no assignment.
func (s *Service) Assign(ctx context.Context, caller trust.RequestIdentity, id, technicianID string) (ServiceRequest, error) {
	if _, err := authz.RequireRole(caller, authz.Elevated()...); err != nil {
		return ServiceRequest{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return ServiceRequest{}, err
	}
	if !current.Status.Assignable() {
		return ServiceRequest{}, fmt.Errorf("%w: %s request cannot be assigned", ErrInvalidTransition, current.Status)
	}
	tech, err := s.peers.Technician(ctx, caller, technicianID)
	if err != nil {
		if isNotFound(err) {
			return ServiceRequest{}, ErrUnknownTechnician
		}
		return ServiceRequest{}, fmt.Errorf("look up technician: %w", err)
	}
	if !tech.Available {
		return ServiceRequest{}, ErrTechnicianUnavailable
	}
	updated, err := s.repo.Update(ctx, id, func(r *ServiceRequest) error {
		if !r.Status.Assignable() {
			return fmt.Errorf("%w: %s request cannot be assigned", ErrInvalidTransition, r.Status)
		}
		r.TechnicianID = tech.ID
		r.TechnicianUserID = tech.UserID
		r.Status = StatusAssigned
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return ServiceRequest{}, err
	}
	s.peers.Notify(ctx, caller, Notification{
		RecipientUserID: tech.UserID,
		Subject:         "New assignment",
		Body:            fmt.Sprintf("You have been assigned to %s.", displayName(updated)),
		ReferenceID:     updated.ID,
	})
	s.peers.Notify(ctx, caller, Notification{
		RecipientUserID: updated.CustomerUserID,
		Subject:         "Technician assigned",
		Body:            fmt.Sprintf("%s will handle your request.", tech.Name),
		ReferenceID:     updated.ID,
	})
	return updated, nil
}

// Get returns a request to its customer, its assigned technician or
// elevated staff.
func (s *Service) Get(ctx context.Context, caller trust.RequestIdentity, id string) (ServiceRequest, error) {
	if err := authz.RequireAuthenticated(caller); err != nil {
		return ServiceRequest{}, err
	}
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return ServiceRequest{}, err
	}
	if err := canView(caller, req); err != nil {
		return ServiceRequest{}, err
	}
	return req, nil
}

// List returns what the caller may see: everything for elevated staff, the
// assigned requests for a technician and the own requests for a customer.
func (s *Service) List(ctx context.Context, caller trust.RequestIdentity) ([]ServiceRequest, error) {
	role, err := authz.RequireRole(caller, principal.Roles()...)
	if err != nil {
		return nil, err
	}
	var match func(ServiceRequest) bool
	switch {
	case authz.IsElevated(role):
	case role == principal.RoleTechnician:
		match = func(r ServiceRequest) bool { return r.TechnicianUserID == caller.UserID }
	default:
		match = func(r ServiceRequest) bool { return r.CustomerUserID == caller.UserID }
	}
	return s.repo.List(ctx, match)
}

// UpdateStatus moves a request along its lifecycle. Only the assigned
// technician or elevated staff may do so.
func (s *Service) UpdateStatus(ctx context.Context, caller trust.RequestIdentity, id, raw string) (ServiceRequest, error) {
	to, err := ParseStatus(raw)
	if err != nil {
		return ServiceRequest{}, err
	}
	if err := authz.RequireAuthenticated(caller); err != nil {
		return ServiceRequest{}, err
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return ServiceRequest{}, err
	}
	if !isAssignee(caller, current) {
		if _, err := authz.RequireRole(caller, authz.Elevated()...); err != nil {
			return ServiceRequest{}, err
		}
	}
	updated, err := s.repo.Update(ctx, id, func(r *ServiceRequest) error {
		if !CanTransition(r.Status, to) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, r.Status, to)
		}
		r.Status = to
		r.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		return ServiceRequest{}, err
	}
	s.logger.Info("request status changed",
		slog.String("request_id", updated.ID),
		slog.String("from", string(current.Status)),
		slog.String("to", string(to)),
		slog.String("user_id", caller.UserID))
	s.peers.Notify(ctx, caller, Notification{
		RecipientUserID: updated.CustomerUserID,
		Subject:         "Request " + string(to),
		Body:            fmt.Sprintf("Your request for %s is now %s.", displayName(updated), to),
		ReferenceID:     updated.ID,
	})
	return updated, nil
}

// Detail returns the request with the current catalog and roster data,
// fetched concurrently. Unreachable peers degrade to what the request
// itself recorded.
func (s *Service) Detail(ctx context.Context, caller trust.RequestIdentity, id string) (Detail, error) {
	req, err := s.Get(ctx, caller, id)
	if err != nil {
		return Detail{}, err
	}
	detail := Detail{Request: req}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		item, err := s.peers.Item(gctx, caller, req.ItemID)
		switch {
		case err == nil:
		case isClientError(err):
			item = Item{ID: req.ItemID}
		default:
			return err
		}
		if item.Name == "" {
			item.Name = req.ItemName
		}
		detail.Item = item
		return nil
	})
	if req.TechnicianID != "" {
		g.Go(func() error {
			tech, err := s.peers.TechnicianSummary(gctx, caller, req.TechnicianID)
			switch {
			case err == nil:
			case isClientError(err):
				tech = Technician{ID: req.TechnicianID}
			default:
				return err
			}
			if tech.UserID == "" {
				tech.UserID = req.TechnicianUserID
			}
			detail.Technician = &tech
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	if !detail.Item.Verified {
		detail.Degraded = append(detail.Degraded, TargetCatalog)
	}
	if detail.Technician != nil && !detail.Technician.Verified {
		detail.Degraded = append(detail.Degraded, TargetTechnicians)
	}
	return detail, nil
}

// Breakers reports the state of every peer breaker. ADMIN only.
func (s *Service) Breakers(caller trust.RequestIdentity) ([]resilience.Snapshot, error) {
	if _, err := authz.RequireRole(caller, principal.RoleAdmin); err != nil {
		return nil, err
	}
	return s.peers.Snapshots(), nil
}

func canView(caller trust.RequestIdentity, req ServiceRequest) error {
	if isAssignee(caller, req) {
		return nil
	}
	return authz.RequireOwnershipOrElevated(caller, req.CustomerUserID)
}

func isAssignee(caller trust.RequestIdentity, req ServiceRequest) bool {
	return req.TechnicianUserID != "" && !caller.Anonymous() && caller.UserID == req.TechnicianUserID
}

func isNotFound(err error) bool {
	var status *resilience.StatusError
	return errors.As(err, &status) && status.Code == http.StatusNotFound
}

func isClientError(err error) bool {
	var status *resilience.StatusError
	return errors.As(err, &status) && status.ClientError()
}

func displayName(req ServiceRequest) string {
	if req.ItemName != "" {
		return req.ItemName
	}
	return req.ItemID
}
