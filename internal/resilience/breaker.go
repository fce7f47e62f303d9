// Package resilience keeps a failing speech or translation backend from
// stalling every session.
//
// A [Breaker] stops calling a backend after repeated failures and probes it
// again after a cool-down. A [Chain] puts a breaker in front of each of an
// ordered list of backends and tries them in turn. [Transcriber] and
// [Translator] expose chains through the provider interfaces so the rest of
// the service never sees more than one backend.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the backend while its breaker
// is open.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is a breaker's operating mode.
type State int

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
		return "half-open"
	}
	return "unknown"
}

// BreakerConfig tunes a [Breaker]. Zero values select the defaults.
type BreakerConfig struct {
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many successful half-open calls close the breaker again.
	// Default: 2.
	Probes int
}

// Breaker is a three-state circuit breaker. Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	inFlight int
	passed   int
}

// NewBreaker returns a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Name returns the configured label.
func (b *Breaker) Name() string { return b.cfg.Name }

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [StateHalfOpen].
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Do calls fn unless the breaker is open. Cancellation and [Permanent]
// errors are returned as is and do not count as backend failures.
func (b *Breaker) Do(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state, b.inFlight, b.passed = StateHalfOpen, 0, 0
		slog.Info("resilience: breaker half-open", "name", b.cfg.Name)
	}
	if b.state == StateHalfOpen {
		// Only as many probes in flight as are needed to close.
		if b.inFlight >= b.cfg.Probes-b.passed {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.inFlight--
	}

	if !countsAsFailure(err) {
		if probe {
			b.passed++
			if b.passed >= b.cfg.Probes {
				b.state, b.failures = StateClosed, 0
				slog.Info("resilience: breaker closed", "name", b.cfg.Name)
			}
		} else if b.state == StateClosed {
			b.failures = 0
		}
		return
	}

	if probe || b.state == StateHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.cfg.Threshold && b.state == StateClosed {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.now()
	slog.Warn("resilience: breaker open", "name", b.cfg.Name, "failures", b.failures, "cooldown", b.cfg.Cooldown)
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state, b.failures, b.inFlight, b.passed = StateClosed, 0, 0, 0
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as a property of the request rather than the backend:
// breakers ignore it and chains return it without trying further backends.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with [Permanent].
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func countsAsFailure(err error) bool {
	return err != nil &&
		!errors.Is(err, context.Canceled) &&
		!IsPermanent(err)
}
