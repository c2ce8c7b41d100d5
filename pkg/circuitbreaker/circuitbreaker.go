// Package circuitbreaker guards calls to flaky collaborators (the child profile
// service) so a failing dependency fails fast instead of piling up requests.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the position of the breaker.
type State int

const (
	// StateClosed lets every request through.
	StateClosed State = iota
	// StateOpen rejects requests until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of trial calls through.
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

var (
	// ErrCircuitOpen is returned while the circuit is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open trial slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configures a CircuitBreaker. Zero fields take the defaults noted.
type Settings struct {
	Name string

	// Trip is the number of consecutive failures that opens the circuit (5).
	Trip     int
	// Recover is the number of consecutive trial successes that closes it (1).
	Recover  int
	// Cooldown is how long the circuit stays open before trying again (30s).
	Cooldown time.Duration
	// Trials caps in-flight requests while half-open (1).
	Trials   int

	// Counts reports whether err is the dependency's fault. Nil counts every
	// non-nil error.
	Counts       func(err error) bool
	// OnTransition is called with the lock held; keep it cheap.
	OnTransition func(name string, from, to State)
}

func (s Settings) withDefaults() Settings {
	if s.Trip <= 0 {
		s.Trip = 5
	}
	if s.Recover <= 0 {
		s.Recover = 1
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Trials <= 0 {
		s.Trials = 1
	}
	return s
}

// CircuitBreaker counts consecutive outcomes of the calls it wraps.
type CircuitBreaker struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	state    State
	streak   int // consecutive failures when closed, successes when half-open
	inFlight int
	retryAt  time.Time
}

// New creates a closed breaker.
func New(s Settings) *CircuitBreaker {
	return &CircuitBreaker{settings: s.withDefaults(), now: time.Now}
}

// Execute runs fn unless the circuit rejects it, then records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Before(cb.retryAt) {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.inFlight >= cb.settings.Trials {
			return ErrTooManyRequests
		}
		cb.inFlight++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil
	if failed && cb.settings.Counts != nil {
		failed = cb.settings.Counts(err)
	}

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.streak = 0
			return
		}
		cb.streak++
		if cb.streak >= cb.settings.Trip {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		cb.inFlight--
		if failed {
			cb.transition(StateOpen)
			return
		}
		cb.streak++
		if cb.streak >= cb.settings.Recover {
			cb.transition(StateClosed)
		}
	}
	// Outcomes of calls admitted before the circuit opened are ignored.
}

// transition must be called with mu held.
func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.streak = 0
	cb.inFlight = 0
	if to == StateOpen {
		cb.retryAt = cb.now().Add(cb.settings.Cooldown)
	}
	if cb.settings.OnTransition != nil {
		cb.settings.OnTransition(cb.settings.Name, from, to)
	}
}

// State returns the current state. An open circuit whose cooldown has passed
// still reports open until the next call tries it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// ProfileServiceBreaker returns a breaker tuned for the child profile service.
// Client-side errors (not found, validation) must not open the circuit, so
// callers pass a counts func that only accepts transport and 5xx failures.
func ProfileServiceBreaker(counts func(error) bool, onTransition func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:         "child-profile",
		Trip:         3,
		Recover:      1,
		Cooldown:     20 * time.Second,
		Trials:       1,
		Counts:       counts,
		OnTransition: onTransition,
	})
}
