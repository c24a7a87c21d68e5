package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Observer receives breaker events, typically to export metrics. It is
// called with the breaker's lock held and must not block.
type Observer interface {
	ObserveState(caller, target string, state State)
	ObserveCall(caller, target string, outcome Outcome)
}

// Registry owns the breakers of one calling service, one per target.
type Registry struct {
	caller    string
	defaults  Settings
	overrides map[string]Settings
	now       func() time.Time
	observer  Observer
	logger    *slog.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithTargetSettings overrides the defaults for a single target. Zero fields
// inherit the defaults.
func WithTargetSettings(target string, override Settings) RegistryOption {
	return func(r *Registry) {
		r.overrides[target] = override
	}
}

// WithClock replaces the time source used for cool-downs.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithObserver installs an event observer.
func WithObserver(observer Observer) RegistryOption {
	return func(r *Registry) {
		r.observer = observer
	}
}

// WithLogger sets the logger used for state transitions.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry validates every configured setting up front so that a bad
// configuration stops the process at startup.
func NewRegistry(caller string, defaults Settings, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		caller:    caller,
		defaults:  defaults,
		overrides: make(map[string]Settings),
		now:       time.Now,
		logger:    slog.New(slog.DiscardHandler),
		breakers:  make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("breaker defaults for %s: %w", caller, err)
	}
	for target, override := range r.overrides {
		if err := defaults.Merge(override).Validate(); err != nil {
			return nil, fmt.Errorf("breaker %s -> %s: %w", caller, target, err)
		}
	}
	return r, nil
}

// Caller returns the name of the service owning the registry.
func (r *Registry) Caller() string {
	return r.caller
}

// SettingsFor returns the resolved settings for target.
func (r *Registry) SettingsFor(target string) Settings {
	if override, ok := r.overrides[target]; ok {
		return r.defaults.Merge(override)
	}
	return r.defaults
}

// Breaker returns the breaker for target, creating it on first use. The
// registry lock only guards the map; state changes use the breaker's own lock.
func (r *Registry) Breaker(target string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[target]
	if !ok {
		b = newBreaker(target, r.SettingsFor(target), r.now, r.stateChanged)
		r.breakers[target] = b
		if r.observer != nil {
			r.observer.ObserveState(r.caller, target, StateClosed)
		}
	}
	return b
}

// Snapshots returns the state of every breaker created so far, ordered by target.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := make([]Snapshot, 0, len(breakers))
	for _, b := range breakers {
		out = append(out, b.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target < out[j].Target })
	return out
}

func (r *Registry) stateChanged(target string, from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "circuit state changed",
		slog.String("caller", r.caller),
		slog.String("target", target),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
	if r.observer != nil {
		r.observer.ObserveState(r.caller, target, to)
	}
}

func (r *Registry) observeCall(target string, outcome Outcome) {
	if r.observer != nil {
		r.observer.ObserveCall(r.caller, target, outcome)
	}
}
