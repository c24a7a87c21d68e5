// Package authz holds the role and ownership checks internal services run
// against the identity the edge vouched for.
package authz

import (
	"fmt"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Errors wrap the httpx sentinels so httpx.RespondError maps them to 401/403.
var (
	ErrUnauthenticated = fmt.Errorf("authz: %w", httpx.ErrUnauthorized)
	ErrInvalidRole     = fmt.Errorf("authz: %w: %w", principal.ErrInvalidRole, httpx.ErrForbidden)
	ErrForbidden       = fmt.Errorf("authz: %w", httpx.ErrForbidden)
)

// elevated roles may act on resources they do not own.
var elevated = []principal.Role{principal.RoleAdmin, principal.RoleManager}

// RequireAuthenticated fails when the edge vouched for nobody.
func RequireAuthenticated(id trust.RequestIdentity) error {
	if id.Anonymous() {
		return ErrUnauthenticated
	}
	return nil
}

// RequireRole parses the identity's role and checks it against allowed.
// The parsed role is returned so callers can branch on it.
func RequireRole(id trust.RequestIdentity, allowed ...principal.Role) (principal.Role, error) {
	if err := RequireAuthenticated(id); err != nil {
		return principal.RoleUnknown, err
	}
	role, err := principal.ParseRole(id.Role)
	if err != nil {
		return principal.RoleUnknown, ErrInvalidRole
	}
	if !role.In(allowed...) {
		return role, ErrForbidden
	}
	return role, nil
}

// RequireOwnershipOrElevated allows the owner of a resource regardless of
// role, and otherwise requires ADMIN or MANAGER. Ownership is checked first.
func RequireOwnershipOrElevated(id trust.RequestIdentity, ownerID string) error {
	if err := RequireAuthenticated(id); err != nil {
		return err
	}
	if id.UserID == ownerID {
		return nil
	}
	_, err := RequireRole(id, elevated...)
	return err
}

// IsElevated reports whether role may see beyond its own resources. It is
// for branching only; gating goes through RequireRole.
func IsElevated(role principal.Role) bool {
	return role.In(elevated...)
}

// Elevated returns the elevated role set.
func Elevated() []principal.Role {
	return append([]principal.Role(nil), elevated...)
}
