package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows a limited number of trial requests to test the upstream's recovery.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when all half-open trial slots are taken.
	ErrTooManyRequests = errors.New("circuit breaker is half-open and busy")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
}

// Settings configures a breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips the circuit.
	FailureThreshold uint32
	// SuccessThreshold is the number of consecutive half-open successes that closes it again.
	// It also caps the number of concurrent half-open trial requests.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays open before allowing trial requests.
	Timeout time.Duration
	// IsFailure decides whether an error counts against the upstream. Nil counts every
	// error except a caller's context cancellation.
	IsFailure func(err error) bool
	// OnStateChange is called after every transition, outside the breaker's lock.
	OnStateChange func(from, to State)
}

type breaker struct {
	settings             Settings
	consecutiveSuccesses uint32
	consecutiveFailures  uint32
	halfOpenInFlight     uint32
	openedAt             time.Time
	state                State
	now                  func() time.Time
	mutex                sync.Mutex
}

// New creates a breaker with the given thresholds and default failure classification.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) CircuitBreaker {
	return NewWithSettings(Settings{
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		Timeout:          timeout,
	})
}

// NewWithSettings creates a breaker from s. Zero thresholds are raised to 1.
func NewWithSettings(s Settings) CircuitBreaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	if s.IsFailure == nil {
		s.IsFailure = defaultIsFailure
	}
	return &breaker{settings: s, state: Closed, now: time.Now}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (cb *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	from, to, halfOpen, err := cb.before()
	cb.notify(from, to)
	if err != nil {
		return nil, err
	}

	res, err := req()

	from, to = cb.after(halfOpen, err)
	cb.notify(from, to)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Do runs fn through cb and keeps fn's result type.
func Do[T any](cb CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	v, _ := res.(T)
	return v, nil
}

// before admits or rejects a request. It reports any transition caused by the admission check
// and whether the request took a half-open trial slot.
func (cb *breaker) before() (State, State, bool, error) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	from := cb.state
	cb.maybeHalfOpen()
	switch cb.state {
	case Open:
		return from, cb.state, false, ErrCircuitOpen
	case HalfOpen:
		if cb.halfOpenInFlight >= cb.settings.SuccessThreshold {
			return from, cb.state, false, ErrTooManyRequests
		}
		cb.halfOpenInFlight++
		return from, cb.state, true, nil
	default:
		return from, cb.state, false, nil
	}
}

// after records the outcome and returns the transition it caused, if any.
func (cb *breaker) after(halfOpen bool, err error) (State, State) {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if halfOpen && cb.halfOpenInFlight > 0 {
		cb.halfOpenInFlight--
	}
	from := cb.state
	if cb.settings.IsFailure(err) {
		cb.onFailure()
	} else if err == nil {
		cb.onSuccess()
	}
	return from, cb.state
}

// maybeHalfOpen moves an expired open circuit to half-open. Caller holds the lock.
func (cb *breaker) maybeHalfOpen() {
	if cb.state == Open && cb.now().Sub(cb.openedAt) > cb.settings.Timeout {
		cb.state = HalfOpen
		cb.consecutiveSuccesses = 0
		cb.halfOpenInFlight = 0
	}
}

func (cb *breaker) onSuccess() {
	switch cb.state {
	case HalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.settings.SuccessThreshold {
			cb.reset()
		}
	case Closed:
		cb.consecutiveFailures = 0
	}
}

func (cb *breaker) onFailure() {
	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.settings.FailureThreshold {
			cb.trip()
		}
	}
}

// trip opens the circuit.
func (cb *breaker) trip() {
	cb.state = Open
	cb.openedAt = cb.now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

// reset closes the circuit and resets all counters.
func (cb *breaker) reset() {
	cb.state = Closed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

func (cb *breaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(from, to)
	}
}
