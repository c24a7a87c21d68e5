package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fieldserve/fieldserve/internal/authz"
	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Service wraps identity business rules.
type Service struct {
	repo      Repository
	authority *credential.Authority
	logger    *slog.Logger
	hashCost  int
	now       func() time.Time
}

// Option customises a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService constructs a new Service.
func NewService(repo Repository, authority *credential.Authority, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		authority: authority,
		logger:    slog.New(slog.DiscardHandler),
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login checks email and password and issues a credential.
func (s *Service) Login(ctx context.Context, email, password string) (credential.Credential, User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return credential.Credential{}, User{}, ErrInvalidCredentials
		}
		return credential.Credential{}, User{}, err
	}
	if !user.Active {
		return credential.Credential{}, User{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return credential.Credential{}, User{}, ErrInvalidCredentials
	}
	cred, err := s.issue(*user)
	if err != nil {
		return credential.Credential{}, User{}, err
	}
	return cred, *user, nil
}

// Refresh validates token and issues a new credential for the same user.
// The old credential is revoked when a revocation list is configured.
func (s *Service) Refresh(ctx context.Context, token string) (credential.Credential, error) {
	claims, err := s.authority.Validate(ctx, token)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("users: refresh: %w: %w", httpx.ErrUnauthorized, err)
	}
	user, err := s.repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return credential.Credential{}, ErrInvalidCredentials
		}
		return credential.Credential{}, err
	}
	if !user.Active {
		return credential.Credential{}, ErrInvalidCredentials
	}
	cred, err := s.issue(*user)
	if err != nil {
		return credential.Credential{}, err
	}
	s.revoke(ctx, claims)
	return cred, nil
}

// Register creates a self-service CUSTOMER account.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	return s.create(ctx, email, password, principal.RoleCustomer, false)
}

// CreateStaff lets an ADMIN create an account with any role. The new user
// must change the initial password before doing anything else.
func (s *Service) CreateStaff(ctx context.Context, actor trust.RequestIdentity, email, password, role string) (User, error) {
	if _, err := authz.RequireRole(actor, principal.RoleAdmin); err != nil {
		return User{}, err
	}
	parsed, err := principal.ParseRole(role)
	if err != nil {
		return User{}, fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	user, err := s.create(ctx, email, password, parsed, true)
	if err != nil {
		return User{}, err
	}
	s.logger.Info("staff account created",
		slog.String("user_id", user.ID), slog.String("role", parsed.String()), slog.String("actor", actor.UserID))
	return user, nil
}

// ChangePassword verifies the current password, stores the new one and
// returns a fresh credential with the password-change flag cleared.
// currentToken, when given, is revoked.
func (s *Service) ChangePassword(ctx context.Context, id trust.RequestIdentity, currentToken, oldPassword, newPassword string) (credential.Credential, error) {
	if err := authz.RequireAuthenticated(id); err != nil {
		return credential.Credential{}, err
	}
	user, err := s.repo.FindByID(ctx, id.UserID)
	if err != nil {
		return credential.Credential{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return credential.Credential{}, ErrWrongPassword
	}
	if oldPassword == newPassword {
		return credential.Credential{}, ErrSamePassword
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return credential.Credential{}, err
	}
	if err := s.repo.UpdatePassword(ctx, user.ID, hash, false); err != nil {
		return credential.Credential{}, err
	}
	user.PasswordHash = hash
	user.NeedsPasswordChange = false

	cred, err := s.issue(*user)
	if err != nil {
		return credential.Credential{}, err
	}
	if currentToken != "" {
		if claims, err := s.authority.Validate(ctx, currentToken); err == nil {
			s.revoke(ctx, claims)
		}
	}
	return cred, nil
}

// Logout revokes token.
func (s *Service) Logout(ctx context.Context, token string) error {
	claims, err := s.authority.Validate(ctx, token)
	if err != nil {
		return fmt.Errorf("users: logout: %w: %w", httpx.ErrUnauthorized, err)
	}
	if err := s.authority.Revoke(ctx, claims); err != nil {
		if errors.Is(err, credential.ErrRevocationDisabled) {
			return nil
		}
		return err
	}
	return nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, id trust.RequestIdentity) (User, error) {
	if err := authz.RequireAuthenticated(id); err != nil {
		return User{}, err
	}
	user, err := s.repo.FindByID(ctx, id.UserID)
	if err != nil {
		return User{}, err
	}
	return *user, nil
}

// List returns every account. ADMIN and MANAGER only.
func (s *Service) List(ctx context.Context, actor trust.RequestIdentity) ([]User, error) {
	if _, err := authz.RequireRole(actor, authz.Elevated()...); err != nil {
		return nil, err
	}
	return s.repo.List(ctx)
}

// EnsureBootstrapAdmin creates the first ADMIN when password is set and no
// account exists for email yet.
func (s *Service) EnsureBootstrapAdmin(ctx context.Context, email, password string) error {
	if password == "" {
		return nil
	}
	_, err := s.repo.FindByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}
	user, err := s.create(ctx, email, password, principal.RoleAdmin, true)
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", slog.String("user_id", user.ID))
	return nil
}

func (s *Service) create(ctx context.Context, email, password string, role principal.Role, needsChange bool) (User, error) {
	hash, err := s.hash(password)
	if err != nil {
		return User{}, err
	}
	now := s.now().UTC()
	user := User{
		ID:                  uuid.NewString(),
		Email:               normalizeEmail(email),
		PasswordHash:        hash,
		Role:                role,
		NeedsPasswordChange: needsChange,
		Active:              true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *Service) hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	return string(hash), nil
}

func (s *Service) issue(user User) (credential.Credential, error) {
	return s.authority.Issue(credential.ClaimSet{
		Subject:             user.Email,
		UserID:              user.ID,
		Role:                user.Role.String(),
		NeedsPasswordChange: user.NeedsPasswordChange,
	})
}

func (s *Service) revoke(ctx context.Context, claims credential.ClaimSet) {
	err := s.authority.Revoke(ctx, claims)
	if err != nil && !errors.Is(err, credential.ErrRevocationDisabled) {
		s.logger.Warn("revoke credential", slog.String("user_id", claims.UserID), slog.Any("error", err))
	}
}
