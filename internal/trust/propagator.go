package trust

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/fieldserve/fieldserve/internal/principal"
)

// Mode selects how identity travels between processes.
type Mode string

const (
	// ModeHeaders sends the plain headers only.
	ModeHeaders Mode = "headers"
	// ModeSigned adds an audience-bound assertion next to the headers.
	ModeSigned Mode = "signed"
)

// ParseMode converts a configuration value into a Mode.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ModeHeaders:
		return ModeHeaders, nil
	case ModeSigned:
		return ModeSigned, nil
	default:
		return "", fmt.Errorf("trust: unknown mode %q", raw)
	}
}

// Propagator writes the caller identity onto outbound requests. A nil
// signer means plain headers only.
type Propagator struct {
	signer *AssertionSigner
}

// NewPropagator constructs a Propagator.
func NewPropagator(signer *AssertionSigner) *Propagator {
	return &Propagator{signer: signer}
}

// Apply prepares h for an edge to service hop. Client supplied trust headers
// are always removed first; when p is non-nil its user id and role are set
// verbatim.
func (pr *Propagator) Apply(h http.Header, p *principal.Principal, audience string) error {
	if p == nil {
		Strip(h)
		return nil
	}
	return pr.Forward(h, RequestIdentity{UserID: p.UserID, Role: p.Role.String()}, audience)
}

// Forward prepares h for a service to service hop on behalf of id.
func (pr *Propagator) Forward(h http.Header, id RequestIdentity, audience string) error {
	Outbound(h, id)
	if id.Anonymous() || pr == nil || pr.signer == nil {
		return nil
	}
	assertion, err := pr.signer.Sign(id, audience)
	if err != nil {
		Strip(h)
		return err
	}
	h.Set(HeaderAssertion, assertion)
	return nil
}
