// Package trust carries the caller identity established at the edge across
// process boundaries. The edge writes it into a pair of headers; internal
// services read it back without re-validating the original credential.
package trust

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Header names are a binding contract between the edge and every service.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserRole  = "X-User-Role"
	HeaderAssertion = "X-Internal-Assertion"
)

// RequestIdentity is the caller as vouched for by the edge. It carries no
// proof of its own; the role is the raw header value and is parsed by the
// authorization predicates.
type RequestIdentity struct {
	UserID string
	Role   string
}

// Anonymous reports whether the edge vouched for nobody.
func (id RequestIdentity) Anonymous() bool {
	return id.UserID == ""
}

// IdentityFromHeaders reads the trust headers verbatim. A missing or blank
// value for either header yields the anonymous identity.
func IdentityFromHeaders(h http.Header) RequestIdentity {
	userID := h.Get(HeaderUserID)
	role := h.Get(HeaderUserRole)
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(role) == "" {
		return RequestIdentity{}
	}
	return RequestIdentity{UserID: userID, Role: role}
}

// Strip removes every trust header from h.
func Strip(h http.Header) {
	h.Del(HeaderUserID)
	h.Del(HeaderUserRole)
	h.Del(HeaderAssertion)
}

// Outbound replaces the trust headers on h with id. Anonymous identities
// leave the headers absent.
func Outbound(h http.Header, id RequestIdentity) {
	Strip(h)
	if id.Anonymous() {
		return
	}
	h.Set(HeaderUserID, id.UserID)
	h.Set(HeaderUserRole, id.Role)
}

type identityContextKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id RequestIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// FromContext returns the identity stored by Middleware, or the anonymous
// identity.
func FromContext(ctx context.Context) RequestIdentity {
	id, _ := ctx.Value(identityContextKey{}).(RequestIdentity)
	return id
}

// Verifier decides what identity an inbound request carries.
type Verifier interface {
	Verify(r *http.Request) (RequestIdentity, error)
}

// HeaderVerifier trusts the plain headers. It is only sound when services
// are reachable exclusively through the edge.
type HeaderVerifier struct{}

// Verify implements Verifier.
func (HeaderVerifier) Verify(r *http.Request) (RequestIdentity, error) {
	return IdentityFromHeaders(r.Header), nil
}

// Middleware resolves the request identity once and stores it in the
// request context. Requests the verifier rejects continue as anonymous so
// that the authorization predicates produce the usual 401.
func Middleware(verifier Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if verifier == nil {
		verifier = HeaderVerifier{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := verifier.Verify(r)
			if err != nil {
				if logger != nil {
					logger.Warn("untrusted identity headers",
						slog.String("path", r.URL.Path),
						slog.String("user_id", r.Header.Get(HeaderUserID)),
						slog.Any("error", err))
				}
				id = RequestIdentity{}
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
