// Copyright 2015 Marc-Antoine Ruel. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package supervisor holds the fault-tolerance machinery shared by every
// component that can fail independently of the rest of the line: a circuit
// breaker around flaky operations, a watchdog that expects periodic
// heartbeats, and an exponential-backoff-with-jitter reconnection policy for
// camera drivers. No third-party circuit-breaker or backoff library appears
// anywhere in the retrieved reference corpus, so this package is hand-rolled
// standard-library code rather than an adapted dependency.
package supervisor

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// BreakerState is one node of the circuit breaker's state machine.
type BreakerState uint8

// Valid values of BreakerState.
const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Breaker implements the classic closed/open/half-open circuit breaker: it
// trips to Open after FailureThreshold consecutive failures, waits
// ResetTimeout, then allows up to HalfOpenProbes trial calls through before
// deciding whether to close again or re-open.
type Breaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration
	halfOpenProbes   int

	state          BreakerState
	consecutiveFail int
	openedAt       time.Time
	probesInFlight int
	probeSuccesses int

	now func() time.Time
}

// NewBreaker constructs a Breaker in the Closed state from a BreakerConfig.
func NewBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenProbes int) *Breaker {
	if halfOpenProbes <= 0 {
		halfOpenProbes = 1
	}
	return &Breaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenProbes:   halfOpenProbes,
		now:              time.Now,
	}
}

// State returns the breaker's current state, transitioning Open to
// HalfOpen first if ResetTimeout has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	return b.state
}

func (b *Breaker) maybeHalfOpenLocked() {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.resetTimeout {
		b.state = HalfOpen
		b.probesInFlight = 0
		b.probeSuccesses = 0
	}
}

// Allow reports whether a call should be attempted right now, reserving a
// probe slot if the breaker is HalfOpen.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeHalfOpenLocked()
	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probesInFlight >= b.halfOpenProbes {
			return false
		}
		b.probesInFlight++
		return true
	default: // Open
		return false
	}
}

// RecordSuccess reports a successful call, closing the breaker from
// HalfOpen once every in-flight probe has succeeded, or resetting the
// failure streak when Closed.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.probeSuccesses++
		if b.probeSuccesses >= b.halfOpenProbes {
			b.state = Closed
			b.consecutiveFail = 0
		}
	case Closed:
		b.consecutiveFail = 0
	}
}

// RecordFailure reports a failed call, tripping the breaker to Open either
// immediately (a HalfOpen probe failed) or once the consecutive failure
// count reaches FailureThreshold.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.failureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.probesInFlight = 0
	b.probeSuccesses = 0
}

// Backoff computes the next reconnection delay for attempt (1-based),
// applying exponential growth bounded by max and a uniform jitter of up to
// jitterFrac of the computed delay.
func Backoff(attempt int, min, max time.Duration, factor, jitterFrac float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(min)
	for i := 1; i < attempt; i++ {
		d *= factor
		if d > float64(max) {
			d = float64(max)
			break
		}
	}
	if jitterFrac > 0 {
		jitter := d * jitterFrac * (rand.Float64()*2 - 1)
		d += jitter
	}
	if d < float64(min) {
		d = float64(min)
	}
	if d > float64(max) {
		d = float64(max)
	}
	return time.Duration(d)
}
