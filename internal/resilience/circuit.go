// Package resilience provides pacing, bounded retry and circuit breaking for
// the rate-limited services the pipeline talks to.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets every call through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the reset timeout has passed.
	CircuitOpen
	// CircuitHalfOpen lets one trial call through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Allow while the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls circuit breaker behavior.
type CircuitBreakerConfig struct {
	// Name labels the breaker in logs.
	Name string

	// FailureThreshold is the number of consecutive tripping failures that
	// opens the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a trial call is
	// allowed. Default: 30s.
	ResetTimeout time.Duration

	// ShouldTrip decides which errors count toward the threshold. Errors it
	// rejects are treated like successes. Nil counts every error.
	ShouldTrip func(err error) bool
}

// DefaultCircuitBreakerConfig returns the defaults used for the language
// model.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
	}
}

// CircuitBreaker stops calls to a service that keeps failing. Callers ask
// Allow before a call and report its outcome with Record.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    CircuitState
	failures int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.ShouldTrip == nil {
		cfg.ShouldTrip = func(err error) bool { return err != nil }
	}
	return &CircuitBreaker{cfg: cfg, now: time.Now}
}

// Allow returns ErrCircuitOpen while the circuit is open. Once the reset
// timeout has passed it moves to half-open and lets the next call through.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitOpen {
		return nil
	}
	if cb.now().Sub(cb.openedAt) < cb.cfg.ResetTimeout {
		return ErrCircuitOpen
	}
	cb.transition(CircuitHalfOpen)
	return nil
}

// Record feeds the outcome of an allowed call into the breaker.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil || !cb.cfg.ShouldTrip(err) {
		cb.failures = 0
		if cb.state == CircuitHalfOpen {
			cb.transition(CircuitClosed)
		}
		return
	}

	cb.failures++
	// A failed trial call reopens at once.
	if cb.state == CircuitHalfOpen || cb.failures >= cb.cfg.FailureThreshold {
		cb.openedAt = cb.now()
		cb.transition(CircuitOpen)
	}
}

// State returns the current state, reporting half-open once an open
// circuit's reset timeout has passed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.ResetTimeout {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	zap.L().Info("resilience: circuit state change",
		zap.String("breaker", cb.cfg.Name),
		zap.Stringer("from", cb.state),
		zap.Stringer("to", to),
		zap.Int("failures", cb.failures),
	)
	cb.state = to
}
