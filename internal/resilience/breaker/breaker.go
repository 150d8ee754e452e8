// Package breaker implements a rolling-window circuit breaker with
// closed/open/half-open states, shared by all requests hitting one source.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit state.
type State int

const (
	// StateClosed admits all calls.
	StateClosed State = iota
	// StateOpen rejects all calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
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

// Config holds breaker thresholds.
type Config struct {
	// Window is the rolling window over which outcomes are counted.
	Window time.Duration
	// FailureRate is the failure ratio at or above which the circuit opens.
	FailureRate float64
	// MinSamples is the minimum number of outcomes in the window before the
	// failure rate is evaluated.
	MinSamples int
	// Cooldown is how long the circuit stays open before probing.
	Cooldown time.Duration
	// HalfOpenMaxCalls bounds concurrent probes in half-open; the same number
	// of consecutive successes closes the circuit.
	HalfOpenMaxCalls int
	// OnStateChange is invoked synchronously under the breaker lock on every
	// transition; keep it cheap (a gauge update).
	OnStateChange func(from, to State)
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Window:           30 * time.Second,
		FailureRate:      0.5,
		MinSamples:       5,
		Cooldown:         15 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

type event struct {
	at time.Time
	ok bool
}

// Breaker is a rolling-window circuit breaker. All methods take an explicit
// now so state transitions are deterministic under test.
type Breaker struct {
	cfg Config

	mu                sync.Mutex
	state             State
	events            []event
	openedAt          time.Time
	halfOpenCalls     int
	halfOpenSuccesses int
}

// New creates a closed breaker.
func New(cfg Config) *Breaker {
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.FailureRate <= 0 {
		cfg.FailureRate = DefaultConfig().FailureRate
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = DefaultConfig().MinSamples
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = DefaultConfig().HalfOpenMaxCalls
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a call may proceed. An open circuit transitions to
// half-open once the cooldown has elapsed; half-open admits at most
// HalfOpenMaxCalls in-flight probes.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true

	case StateOpen:
		if now.Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.setState(StateHalfOpen)
		b.halfOpenCalls = 1
		b.halfOpenSuccesses = 0
		return true

	case StateHalfOpen:
		if b.halfOpenCalls >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenCalls++
		return true

	default:
		return false
	}
}

// ReleaseProbe returns a half-open probe slot handed out by Allow when the
// call was never executed, so no Record will ever arrive for it. Without the
// release the slot would stay occupied and the breaker could sit in half-open
// rejecting calls indefinitely. No-op in any other state.
func (b *Breaker) ReleaseProbe() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
		b.halfOpenCalls--
	}
}

// Record reports a call outcome.
func (b *Breaker) Record(now time.Time, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.events = append(b.events, event{at: now, ok: success})
		b.prune(now)
		if b.shouldTrip() {
			b.trip(now)
		}

	case StateHalfOpen:
		if !success {
			// Any probe failure reopens immediately.
			b.trip(now)
			return
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.HalfOpenMaxCalls {
			b.setState(StateClosed)
			b.events = nil
			b.halfOpenCalls = 0
			b.halfOpenSuccesses = 0
		}

	case StateOpen:
		// Stragglers from calls admitted before the trip; the window restarts
		// on close, so they carry no signal.
	}
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// prune drops events older than the rolling window. Caller holds the lock.
func (b *Breaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.events) && b.events[i].at.Before(cutoff) {
		i++
	}
	b.events = b.events[i:]
}

func (b *Breaker) shouldTrip() bool {
	if len(b.events) < b.cfg.MinSamples {
		return false
	}
	failures := 0
	for _, e := range b.events {
		if !e.ok {
			failures++
		}
	}
	return float64(failures)/float64(len(b.events)) >= b.cfg.FailureRate
}

func (b *Breaker) trip(now time.Time) {
	b.setState(StateOpen)
	b.openedAt = now
	b.events = nil
	b.halfOpenCalls = 0
	b.halfOpenSuccesses = 0
}

func (b *Breaker) setState(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, to)
	}
}
