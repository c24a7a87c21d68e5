package credential

import (
	"errors"
	"fmt"
)

// FailureKind classifies why a credential was rejected. Kinds are for logs
// and metrics only; clients always see a single generic 401.
type FailureKind int

const (
	KindMalformed FailureKind = iota + 1
	KindBadSignature
	KindExpired
	KindRevoked
	KindUnverifiable
)

func (k FailureKind) String() string {
	switch k {
	case KindMalformed:
		return "malformed"
	case KindBadSignature:
		return "bad_signature"
	case KindExpired:
		return "expired"
	case KindRevoked:
		return "revoked"
	case KindUnverifiable:
		return "unverifiable"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against a *ValidationError of the same kind.
var (
	ErrMalformed    = errors.New("credential: malformed")
	ErrBadSignature = errors.New("credential: bad signature")
	ErrExpired      = errors.New("credential: expired")
	ErrRevoked      = errors.New("credential: revoked")
	ErrUnverifiable = errors.New("credential: unverifiable")
)

// ErrSigningKey indicates a missing or too short signing secret.
var ErrSigningKey = errors.New("credential: signing secret missing or shorter than 32 bytes")

// ErrRevocationDisabled is returned by Revoke when no revocation list is configured.
var ErrRevocationDisabled = errors.New("credential: revocation list not configured")

// ValidationError reports a rejected credential.
type ValidationError struct {
	Kind FailureKind
	Err  error
}

func (e *ValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("credential: %s", e.Kind)
	}
	return fmt.Sprintf("credential: %s: %v", e.Kind, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is lets callers match on the kind sentinels.
func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrMalformed:
		return e.Kind == KindMalformed
	case ErrBadSignature:
		return e.Kind == KindBadSignature
	case ErrExpired:
		return e.Kind == KindExpired
	case ErrRevoked:
		return e.Kind == KindRevoked
	case ErrUnverifiable:
		return e.Kind == KindUnverifiable
	}
	return false
}

// KindOf returns the failure kind carried by err, or 0 when err is not a
// credential validation error.
func KindOf(err error) FailureKind {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return 0
}

// SigningError reports that a credential could not be signed. It only occurs
// when the authority has no usable secret.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "credential: signing failed: " + e.Err.Error() }

func (e *SigningError) Unwrap() error { return e.Err }

func invalid(kind FailureKind, err error) error {
	return &ValidationError{Kind: kind, Err: err}
}
