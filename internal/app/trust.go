package app

import (
	"fmt"

	"github.com/fieldserve/fieldserve/internal/trust"
)

// NewPropagator builds the edge/peer side of identity propagation for the
// configured trust mode.
func NewPropagator(cfg *Config) (*trust.Propagator, error) {
	if cfg.Trust() != trust.ModeSigned {
		return trust.NewPropagator(nil), nil
	}
	signer, err := trust.NewAssertionSigner([]byte(cfg.TrustAssertionSecret), cfg.TrustAssertionTTL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return trust.NewPropagator(signer), nil
}

// NewVerifier builds the service side check for inbound identities.
// audience is the receiving service's name.
func NewVerifier(cfg *Config, audience string) (trust.Verifier, error) {
	if cfg.Trust() != trust.ModeSigned {
		return trust.HeaderVerifier{}, nil
	}
	verifier, err := trust.NewAssertionVerifier([]byte(cfg.TrustAssertionSecret), audience, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	return verifier, nil
}
