package breaker

import (
	"sync/atomic"
	"time"
)

// State enumerates breaker conditions.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Breaker tracks the health of one external dependency class. All
// transitions compare-and-swap a single state word, so concurrent stage
// attempts agree on when the breaker trips and exactly one caller wins the
// half-open probe.
type Breaker struct {
	name      string
	threshold int32
	cooldown  time.Duration
	now       func() time.Time

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64
}

// Option customizes breaker construction.
type Option func(*Breaker)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// New constructs a closed breaker for the named dependency class. The
// breaker opens after threshold consecutive dependency failures and admits a
// single probe once cooldown has elapsed.
func New(name string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = time.Second
	}
	b := &Breaker{
		name:      name,
		threshold: int32(threshold),
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name returns the dependency class this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current breaker state.
func (b *Breaker) State() State { return State(b.state.Load()) }

// Allow reports whether a call may proceed. A closed breaker admits every
// call. An open breaker rejects until the cooldown has elapsed, then admits
// exactly one probe by swinging to half_open; the winning caller observes
// probe=true and must report the outcome via MarkSuccess or MarkFailure.
// While a probe is in flight all other callers are rejected.
func (b *Breaker) Allow() (ok bool, probe bool) {
	switch State(b.state.Load()) {
	case StateClosed:
		return true, false
	case StateHalfOpen:
		return false, false
	default:
		openedAt := time.Unix(0, b.openedAt.Load())
		if b.now().Sub(openedAt) < b.cooldown {
			return false, false
		}
		if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
			return true, true
		}
		return false, false
	}
}

// MarkSuccess records a successful call. It clears the consecutive failure
// count and closes the breaker when the call was the half-open probe.
func (b *Breaker) MarkSuccess() {
	b.failures.Store(0)
	b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed))
}

// MarkFailure records a dependency-attributable failure. A failed probe
// reopens the breaker immediately; a closed breaker opens once consecutive
// failures reach the threshold.
func (b *Breaker) MarkFailure() {
	b.openedAt.Store(b.now().UnixNano())
	if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
		b.failures.Store(0)
		return
	}
	failures := b.failures.Add(1)
	if failures >= b.threshold {
		b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen))
	}
}

// Snapshot is a point-in-time view for status reporting.
type Snapshot struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"opened_at,omitzero"`
}

// Snapshot captures the breaker's current state for status output.
func (b *Breaker) Snapshot() Snapshot {
	snap := Snapshot{
		Name:     b.name,
		State:    b.State().String(),
		Failures: int(b.failures.Load()),
	}
	if State(b.state.Load()) != StateClosed {
		snap.OpenedAt = time.Unix(0, b.openedAt.Load())
	}
	return snap
}
