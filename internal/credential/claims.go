package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claim names as they appear in the token payload.
const (
	ClaimSubject             = "sub"
	ClaimUserID              = "userId"
	ClaimRole                = "role"
	ClaimNeedsPasswordChange = "needsPasswordChange"
	ClaimIssuedAt            = "iat"
	ClaimExpiresAt           = "exp"
	ClaimID                  = "jti"
)

// ClaimSet is the decoded content of a valid credential. Subject carries the
// caller's email. Role is the raw wire value; it is parsed into the closed
// role set when a Principal is built.
type ClaimSet struct {
	Subject             string
	UserID              string
	Role                string
	NeedsPasswordChange bool
	IssuedAt            time.Time
	ExpiresAt           time.Time
	ID                  string
}

// Credential is a signed token together with the claims it encodes.
type Credential struct {
	Token  string
	Claims ClaimSet
}

type tokenClaims struct {
	UserID              string `json:"userId"`
	Role                string `json:"role"`
	NeedsPasswordChange bool   `json:"needsPasswordChange"`
	jwt.RegisteredClaims
}

func (c ClaimSet) toToken(issuer string) tokenClaims {
	return tokenClaims{
		UserID:              c.UserID,
		Role:                c.Role,
		NeedsPasswordChange: c.NeedsPasswordChange,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
			ID:        c.ID,
		},
	}
}

func (t tokenClaims) toClaimSet() ClaimSet {
	set := ClaimSet{
		Subject:             t.Subject,
		UserID:              t.UserID,
		Role:                t.Role,
		NeedsPasswordChange: t.NeedsPasswordChange,
		ID:                  t.ID,
	}
	if t.IssuedAt != nil {
		set.IssuedAt = seconds(t.IssuedAt.Time)
	}
	if t.ExpiresAt != nil {
		set.ExpiresAt = seconds(t.ExpiresAt.Time)
	}
	return set
}

// Get returns a single claim by its payload name.
func (c ClaimSet) Get(name string) (any, bool) {
	switch name {
	case ClaimSubject:
		return c.Subject, c.Subject != ""
	case ClaimUserID:
		return c.UserID, c.UserID != ""
	case ClaimRole:
		return c.Role, c.Role != ""
	case ClaimNeedsPasswordChange:
		return c.NeedsPasswordChange, true
	case ClaimIssuedAt:
		return c.IssuedAt, !c.IssuedAt.IsZero()
	case ClaimExpiresAt:
		return c.ExpiresAt, !c.ExpiresAt.IsZero()
	case ClaimID:
		return c.ID, c.ID != ""
	default:
		return nil, false
	}
}

// seconds normalises t to UTC at the token's one-second precision.
func seconds(t time.Time) time.Time {
	return time.Unix(t.Unix(), 0).UTC()
}
