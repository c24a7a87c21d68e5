package trust

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinAssertionSecretLength is the shortest accepted internal secret in bytes.
const MinAssertionSecretLength = 32

// DefaultAssertionTTL bounds how long a minted assertion stays usable.
const DefaultAssertionTTL = 30 * time.Second

var (
	// ErrAssertionKey indicates a missing or short internal secret.
	ErrAssertionKey = errors.New("trust: assertion secret missing or shorter than 32 bytes")
	// ErrAssertionMissing is returned when identity headers arrive without an assertion.
	ErrAssertionMissing = errors.New("trust: identity headers without assertion")
	// ErrAssertionInvalid covers bad signatures, expiry and audience mismatch.
	ErrAssertionInvalid = errors.New("trust: invalid assertion")
	// ErrAssertionMismatch is returned when the plain headers disagree with the assertion.
	ErrAssertionMismatch = errors.New("trust: headers do not match assertion")
)

type assertionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AssertionSigner mints short-lived internal assertions bound to a single
// target service.
type AssertionSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewAssertionSigner constructs a signer. A nil clock means time.Now.
func NewAssertionSigner(secret []byte, ttl time.Duration, now func() time.Time) (*AssertionSigner, error) {
	if len(secret) < MinAssertionSecretLength {
		return nil, ErrAssertionKey
	}
	if ttl <= 0 {
		ttl = DefaultAssertionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &AssertionSigner{secret: append([]byte(nil), secret...), ttl: ttl, now: now}, nil
}

// Sign returns an assertion for id scoped to audience.
func (s *AssertionSigner) Sign(id RequestIdentity, audience string) (string, error) {
	now := s.now()
	claims := assertionClaims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("trust: sign assertion: %w", err)
	}
	return token, nil
}

// AssertionVerifier accepts identity headers only when they are backed by an
// assertion minted for this service.
type AssertionVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewAssertionVerifier constructs a verifier for the named service.
func NewAssertionVerifier(secret []byte, audience string, now func() time.Time) (*AssertionVerifier, error) {
	if len(secret) < MinAssertionSecretLength {
		return nil, ErrAssertionKey
	}
	if now == nil {
		now = time.Now
	}
	return &AssertionVerifier{
		secret: append([]byte(nil), secret...),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithAudience(audience),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
			jwt.WithStrictDecoding(),
		),
	}, nil
}

// Verify implements Verifier. Requests without identity headers are
// anonymous and need no assertion.
func (v *AssertionVerifier) Verify(r *http.Request) (RequestIdentity, error) {
	id := IdentityFromHeaders(r.Header)
	if id.Anonymous() {
		return id, nil
	}
	raw := r.Header.Get(HeaderAssertion)
	if raw == "" {
		return RequestIdentity{}, ErrAssertionMissing
	}
	var claims assertionClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return RequestIdentity{}, fmt.Errorf("%w: %v", ErrAssertionInvalid, err)
	}
	if claims.Subject != id.UserID || claims.Role != id.Role {
		return RequestIdentity{}, ErrAssertionMismatch
	}
	return id, nil
}
