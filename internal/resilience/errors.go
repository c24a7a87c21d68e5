package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fieldserve/fieldserve/internal/platform/httpx"
)

var (
	// ErrOpen is the fallback cause when the circuit rejects a call.
	ErrOpen = errors.New("resilience: circuit open")
	// ErrTimeout is the fallback cause when a call exceeds its timeout.
	ErrTimeout = fmt.Errorf("resilience: call timed out: %w", context.DeadlineExceeded)
	// ErrUpstreamUnavailable is surfaced when a fallback cannot produce a
	// value. It maps to 503 "service temporarily unavailable".
	ErrUpstreamUnavailable = httpx.ErrUpstreamUnavailable
)

// StatusError is a well-formed error response from a downstream service.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream responded %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("upstream responded %d: %s", e.Code, e.Message)
}

// ClientError reports whether the downstream rejected the request itself.
func (e *StatusError) ClientError() bool {
	return e.Code >= 400 && e.Code < 500
}

// UnavailableError is returned when a call failed and its fallback signalled
// an error too.
type UnavailableError struct {
	Target string
	Cause  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("resilience: %s unavailable: %v", e.Target, e.Cause)
}

// Unwrap exposes both the availability sentinel and the original cause.
func (e *UnavailableError) Unwrap() []error {
	return []error{ErrUpstreamUnavailable, e.Cause}
}

// IsFailure classifies err for breaker accounting. Downstream 4xx responses
// are business outcomes and do not count. Everything else counts: 5xx
// responses, timeouts, refused or reset connections, and errors decoding a
// reply are all signs of an unhealthy target.
func IsFailure(err error) bool {
	if err == nil {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return !status.ClientError()
	}
	return true
}
