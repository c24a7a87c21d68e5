package principal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fieldserve/fieldserve/internal/credential"
)

// ErrIncompleteClaims indicates a validated credential that lacks the claims
// needed to build a Principal. Callers treat it as an authentication failure.
var ErrIncompleteClaims = errors.New("principal: incomplete claims")

// Principal is the authenticated caller for the lifetime of one edge request.
type Principal struct {
	UserID              string
	Role                Role
	Email               string
	NeedsPasswordChange bool
}

// FromClaims builds a Principal from a validated claim set. A blank user id
// or an unparsable role fails closed instead of defaulting.
func FromClaims(claims credential.ClaimSet) (Principal, error) {
	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		return Principal{}, fmt.Errorf("%w: missing %s", ErrIncompleteClaims, credential.ClaimUserID)
	}
	role, err := ParseRole(claims.Role)
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %v", ErrIncompleteClaims, err)
	}
	return Principal{
		UserID:              userID,
		Role:                role,
		Email:               claims.Subject,
		NeedsPasswordChange: claims.NeedsPasswordChange,
	}, nil
}

type principalContextKey struct{}

// WithPrincipal stores the principal in context.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// FromContext extracts the principal from context.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}
