package authz

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
	"github.com/fieldserve/fieldserve/internal/trust"
)

// Middleware wires the predicates into chi route groups.
type Middleware struct {
	Logger *slog.Logger
}

// Authenticated rejects anonymous requests with 401.
func (m Middleware) Authenticated() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := RequireAuthenticated(trust.FromContext(r.Context())); err != nil {
				m.deny(w, r, err, nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRoles allows only identities whose role is one of roles.
func (m Middleware) RequireRoles(roles ...principal.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := RequireRole(trust.FromContext(r.Context()), roles...); err != nil {
				m.deny(w, r, err, roles)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, err error, required []principal.Role) {
	if m.Logger != nil {
		attrs := []any{
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("user_id", trust.FromContext(r.Context()).UserID),
			slog.Any("error", err),
		}
		if errors.Is(err, httpx.ErrForbidden) && len(required) > 0 {
			attrs = append(attrs, slog.String("required_roles", joinRoles(required)))
		}
		m.Logger.Warn("authz denied", attrs...)
	}
	httpx.RespondError(w, err)
}

func joinRoles(roles []principal.Role) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return strings.Join(names, ",")
}
