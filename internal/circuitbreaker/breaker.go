// Package circuitbreaker isolates a repeatedly failing upstream. After a
// run of transport failures the breaker opens and the gateway answers for
// that upstream without a network call, until a recovery period passes
// and a trial request is let through.
package circuitbreaker

import (
	"sync"
	"time"
)

type State int

const (
	// StateClosed - normal operation, requests pass through
	StateClosed State = iota

	// StateOpen - requests are refused without touching the upstream
	StateOpen

	// StateHalfOpen - recovery period elapsed, a trial request decides
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int           // consecutive failures before opening; default 5
	RecoveryTimeout  time.Duration // how long to stay open; default 60s
}

// Breaker tracks consecutive transport failures for one upstream.
type Breaker struct {
	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time

	failureThreshold int
	recoveryTimeout  time.Duration
	now              func() time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}

	return &Breaker{
		state:            StateClosed,
		failureThreshold: cfg.FailureThreshold,
		recoveryTimeout:  cfg.RecoveryTimeout,
		now:              time.Now,
	}
}

// Allow reports whether a request may be sent to the upstream. An open
// breaker whose recovery period has elapsed moves to half-open and lets
// the request through as a trial.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	default:
		if b.now().Sub(b.lastFailureTime) > b.recoveryTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure run.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount = 0
	b.state = StateClosed
}

// RecordFailure counts one transport failure. The breaker opens when the
// run reaches the threshold, and immediately when a half-open trial fails.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failureCount++
	b.lastFailureTime = b.now()

	if b.state == StateHalfOpen || b.failureCount >= b.failureThreshold {
		b.state = StateOpen
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
