package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fieldserve/fieldserve/internal/credential"
	"github.com/fieldserve/fieldserve/internal/platform/httpx"
	"github.com/fieldserve/fieldserve/internal/principal"
)

// Gate outcomes as exported to metrics.
const (
	OutcomePublic            = "public"
	OutcomeAllowed           = "allowed"
	OutcomeMissingCredential = "missing_credential"
	OutcomeInvalidCredential = "invalid_credential"
	OutcomeIncompleteClaims  = "incomplete_claims"
	OutcomePasswordChangeDue = "password_change_required"
	OutcomeForbidden         = "forbidden"
)

// Validator checks a raw credential. *credential.Authority implements it.
type Validator interface {
	Validate(ctx context.Context, token string) (credential.ClaimSet, error)
}

// GateObserver receives one outcome per request.
type GateObserver interface {
	ObserveGate(outcome string)
}

// Gate authenticates and authorizes edge requests. Validation runs on the
// request goroutine; nothing is shared between requests except the
// immutable policy and the validator.
type Gate struct {
	policy    *Policy
	validator Validator
	logger    *slog.Logger
	observer  GateObserver
}

// NewGate builds a Gate. observer may be nil.
func NewGate(policy *Policy, validator Validator, logger *slog.Logger, observer GateObserver) *Gate {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Gate{policy: policy, validator: validator, logger: logger, observer: observer}
}

// Middleware enforces the policy. Authorized requests carry the Principal
// in their context; public requests carry none, whatever credential they
// presented.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.policy.Lookup(r.Method, r.URL.Path)
		if decision.Tier == TierPublic {
			g.observe(OutcomePublic)
			next.ServeHTTP(w, r)
			return
		}

		token, ok := httpx.BearerToken(r.Header)
		if !ok {
			g.reject(w, r, http.StatusUnauthorized, httpx.MessageMissingCredential, OutcomeMissingCredential,
				slog.Bool("header_present", r.Header.Get("Authorization") != ""))
			return
		}
		claims, err := g.validator.Validate(r.Context(), token)
		if err != nil {
			g.reject(w, r, http.StatusUnauthorized, httpx.MessageInvalidToken, OutcomeInvalidCredential,
				slog.String("kind", credential.KindOf(err).String()), slog.Any("error", err))
			return
		}
		p, err := principal.FromClaims(claims)
		if err != nil {
			g.reject(w, r, http.StatusUnauthorized, httpx.MessageInvalidToken, OutcomeIncompleteClaims,
				slog.Any("error", err))
			return
		}
		if p.NeedsPasswordChange && !decision.AllowPasswordChange {
			g.reject(w, r, http.StatusForbidden, httpx.MessagePasswordChangeDue, OutcomePasswordChangeDue,
				slog.String("user_id", p.UserID))
			return
		}
		if !decision.Allows(p.Role) {
			g.reject(w, r, http.StatusForbidden, httpx.MessageAccessDenied, OutcomeForbidden,
				slog.String("user_id", p.UserID),
				slog.String("role", p.Role.String()),
				slog.String("required_roles", joinRoles(decision.Roles)))
			return
		}

		g.observe(OutcomeAllowed)
		next.ServeHTTP(w, r.WithContext(principal.WithPrincipal(r.Context(), p)))
	})
}

func (g *Gate) reject(w http.ResponseWriter, r *http.Request, status int, message, outcome string, attrs ...slog.Attr) {
	g.observe(outcome)
	base := []slog.Attr{
		slog.String("outcome", outcome),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	}
	g.logger.LogAttrs(r.Context(), slog.LevelInfo, "edge request rejected", append(base, attrs...)...)
	httpx.Error(w, status, message)
}

func (g *Gate) observe(outcome string) {
	if g.observer != nil {
		g.observer.ObserveGate(outcome)
	}
}

func joinRoles(roles []principal.Role) string {
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.String()
	}
	return strings.Join(names, ",")
}
