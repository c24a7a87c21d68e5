package resilience

import (
	"sync"
	"time"
)

// State is a circuit state. The numeric values are exported as the breaker
// state gauge.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNDEFINED"
	}
}

// Outcome labels how a single protected call ended.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeClientError Outcome = "client_error"
	OutcomeRejected    Outcome = "rejected"
)

// Snapshot is a point-in-time copy of a breaker's state.
type Snapshot struct {
	Target              string
	State               State
	ConsecutiveFailures int
	LastFailureAt       time.Time
	LastProbeAt         time.Time
}

// Breaker is the state machine for one target. Every read and write of its
// fields goes through mu; breakers for different targets never share a lock.
type Breaker struct {
	target   string
	settings Settings
	now      func() time.Time
	notify   func(target string, from, to State)

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
	lastProbeAt         time.Time
}

// permit is handed out on admission and returned with the call's outcome.
type permit struct {
	probe bool
}

func newBreaker(target string, settings Settings, now func() time.Time, notify func(string, State, State)) *Breaker {
	return &Breaker{target: target, settings: settings, now: now, notify: notify}
}

// Settings returns the breaker's configuration.
func (b *Breaker) Settings() Settings {
	return b.settings
}

// Snapshot returns the current state.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Target:              b.target,
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureAt:       b.lastFailureAt,
		LastProbeAt:         b.lastProbeAt,
	}
}

// admit decides whether a call may proceed. An open circuit whose cool-down
// has elapsed lets exactly one probe through and rejects everything else
// until that probe reports back.
func (b *Breaker) admit() (permit, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return permit{}, true
	case StateOpen:
		now := b.now()
		if now.Sub(b.lastFailureAt) < b.settings.Cooldown {
			return permit{}, false
		}
		b.lastProbeAt = now
		b.transition(StateHalfOpen)
		return permit{probe: true}, true
	default:
		return permit{}, false
	}
}

// record applies the outcome of an admitted call. It is called exactly once
// per admitted call, possibly long after the caller stopped waiting.
func (b *Breaker) record(p permit, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p.probe && b.state == StateHalfOpen {
		if failed {
			b.consecutiveFailures++
			b.lastFailureAt = b.now()
			b.transition(StateOpen)
			return
		}
		b.consecutiveFailures = 0
		b.transition(StateClosed)
		return
	}

	if !failed {
		// Late successes from calls admitted before the circuit opened say
		// nothing about the target's current health.
		if b.state == StateClosed {
			b.consecutiveFailures = 0
		}
		return
	}

	b.consecutiveFailures++
	if b.state != StateClosed {
		return
	}
	b.lastFailureAt = b.now()
	if b.consecutiveFailures >= b.settings.FailureThreshold {
		b.transition(StateOpen)
	}
}

// transition must be called with mu held.
func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.notify != nil && from != to {
		b.notify(b.target, from, to)
	}
}
