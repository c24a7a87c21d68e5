// Package credential issues and validates the signed credentials handed to
// callers at login. Validation is a pure function of the secret, the token
// bytes and the clock, so an Authority is safe for concurrent use.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the shortest accepted HMAC secret in bytes.
const MinSecretLength = 32

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = time.Hour

var signingMethod = jwt.SigningMethodHS256

// Authority signs and verifies credentials with a single shared secret.
type Authority struct {
	secret      []byte
	ttl         time.Duration
	issuer      string
	now         func() time.Time
	revocations RevocationList
	parser      *jwt.Parser
}

// Option customises an Authority.
type Option func(*Authority)

// WithTTL sets the lifetime of issued credentials.
func WithTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithIssuer stamps and requires the iss claim.
func WithIssuer(issuer string) Option {
	return func(a *Authority) {
		a.issuer = strings.TrimSpace(issuer)
	}
}

// WithClock overrides the time source used for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRevocations enables rejection of explicitly revoked credentials.
func WithRevocations(list RevocationList) Option {
	return func(a *Authority) {
		a.revocations = list
	}
}

// NewAuthority constructs an Authority. A missing or short secret is a
// configuration error and must stop the process at startup.
func NewAuthority(secret []byte, opts ...Option) (*Authority, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSigningKey
	}
	a := &Authority{
		secret: append([]byte(nil), secret...),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
		// Reject non-canonical base64 so a signature has one encoding.
		jwt.WithStrictDecoding(),
	}
	if a.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(a.issuer))
	}
	a.parser = jwt.NewParser(parserOpts...)
	return a, nil
}

// TTL returns the configured credential lifetime.
func (a *Authority) TTL() time.Duration {
	return a.ttl
}

// Issue signs the claim set. IssuedAt defaults to now and ExpiresAt to
// IssuedAt plus the TTL; both are truncated to whole seconds. A fresh ID is
// assigned when none is given.
func (a *Authority) Issue(claims ClaimSet) (Credential, error) {
	if a == nil || len(a.secret) < MinSecretLength {
		return Credential{}, &SigningError{Err: ErrSigningKey}
	}
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = a.now()
	}
	claims.IssuedAt = seconds(claims.IssuedAt)
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = claims.IssuedAt.Add(a.ttl)
	}
	claims.ExpiresAt = seconds(claims.ExpiresAt)
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}

	token, err := jwt.NewWithClaims(signingMethod, claims.toToken(a.issuer)).SignedString(a.secret)
	if err != nil {
		return Credential{}, &SigningError{Err: err}
	}
	return Credential{Token: token, Claims: claims}, nil
}

// Validate verifies the signature, expiry and revocation status of token.
// The HMAC is checked over the raw signing string before anything is
// decoded, so any modified byte of the header or payload is reported as a
// bad signature rather than a decoding problem.
func (a *Authority) Validate(ctx context.Context, token string) (ClaimSet, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return ClaimSet{}, invalid(KindMalformed, errors.New("empty token"))
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ClaimSet{}, invalid(KindMalformed, fmt.Errorf("expected 3 segments, got %d", len(parts)))
	}
	signature, err := a.parser.DecodeSegment(parts[2])
	if err != nil {
		return ClaimSet{}, invalid(KindMalformed, fmt.Errorf("decode signature: %w", err))
	}
	if err := signingMethod.Verify(parts[0]+"."+parts[1], signature, a.secret); err != nil {
		return ClaimSet{}, invalid(KindBadSignature, err)
	}

	var decoded tokenClaims
	_, err = a.parser.ParseWithClaims(token, &decoded, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ClaimSet{}, invalid(KindExpired, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ClaimSet{}, invalid(KindBadSignature, err)
	default:
		return ClaimSet{}, invalid(KindMalformed, err)
	}

	claims := decoded.toClaimSet()
	if a.revocations != nil {
		if claims.ID == "" {
			return ClaimSet{}, invalid(KindMalformed, errors.New("missing jti"))
		}
		revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return ClaimSet{}, invalid(KindUnverifiable, fmt.Errorf("revocation lookup: %w", err))
		}
		if revoked {
			return ClaimSet{}, invalid(KindRevoked, nil)
		}
	}
	return claims, nil
}

// ExtractClaim returns a single named claim of a valid token. The token is
// validated first; any invalid token yields absent.
func (a *Authority) ExtractClaim(ctx context.Context, token, name string) (any, bool) {
	claims, err := a.Validate(ctx, token)
	if err != nil {
		return nil, false
	}
	return claims.Get(name)
}

// Revoke blocks the credential until its natural expiry.
func (a *Authority) Revoke(ctx context.Context, claims ClaimSet) error {
	if a.revocations == nil {
		return ErrRevocationDisabled
	}
	if claims.ID == "" {
		return invalid(KindMalformed, errors.New("missing jti"))
	}
	return a.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt)
}
