// Package resilience protects calls between services with a per-target
// circuit breaker and a locally computed fallback.
package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Defaults used when no configuration is supplied.
const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 30 * time.Second
	DefaultTimeout          = 2 * time.Second
)

// ErrInvalidSettings reports an unusable breaker configuration.
var ErrInvalidSettings = errors.New("resilience: invalid settings")

// Settings configures one breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int
	// Cooldown is how long an open circuit rejects calls before probing.
	Cooldown time.Duration
	// Timeout bounds every protected call. A timeout is a failure.
	Timeout time.Duration
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
		Timeout:          DefaultTimeout,
	}
}

// Validate rejects thresholds below one and non-positive durations.
func (s Settings) Validate() error {
	switch {
	case s.FailureThreshold < 1:
		return fmt.Errorf("%w: failure threshold %d < 1", ErrInvalidSettings, s.FailureThreshold)
	case s.Cooldown <= 0:
		return fmt.Errorf("%w: cooldown %s must be positive", ErrInvalidSettings, s.Cooldown)
	case s.Timeout <= 0:
		return fmt.Errorf("%w: timeout %s must be positive", ErrInvalidSettings, s.Timeout)
	}
	return nil
}

// Merge returns s with every non-zero field of override applied.
func (s Settings) Merge(override Settings) Settings {
	if override.FailureThreshold != 0 {
		s.FailureThreshold = override.FailureThreshold
	}
	if override.Cooldown != 0 {
		s.Cooldown = override.Cooldown
	}
	if override.Timeout != 0 {
		s.Timeout = override.Timeout
	}
	return s
}
