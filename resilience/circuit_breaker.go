// Package resilience implements a consecutive-failure circuit breaker
// guarding the generator client: CircuitState, ExecutionToken,
// MetricsCollector, ErrorClassifier, and atomic state transitions, built
// around a simple consecutive-failure-count-plus-cooldown contract rather
// than a sliding-window error rate.
package resilience

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/logger"
)

// CircuitState is the circuit breaker's current posture.
type CircuitState int32

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// MetricsCollector receives circuit breaker lifecycle events. Callers that
// don't care can pass nil; NewCircuitBreaker substitutes a no-op.
type MetricsCollector interface {
	RecordSuccess(name string)
	RecordFailure(name string)
	RecordStateChange(name string, from, to CircuitState)
	RecordRejection(name string)
}

type noopMetrics struct{}

func (noopMetrics) RecordSuccess(name string)                        {}
func (noopMetrics) RecordFailure(name string)                        {}
func (noopMetrics) RecordStateChange(name string, from, to CircuitState) {}
func (noopMetrics) RecordRejection(name string)                      {}

// ErrorClassifier decides whether an error should count toward the
// consecutive-failure counter.
type ErrorClassifier func(error) bool

// ExecutionToken identifies a single half-open probe in flight, so a
// breaker only lets one probe through at a time.
type ExecutionToken struct {
	id        uint64
	isProbe   bool
	startedAt time.Time
}

// Config configures a CircuitBreaker.
type Config struct {
	Name            string
	Threshold       int           // consecutive failures before opening
	Cooldown        time.Duration // time the circuit stays open before a half-open probe is allowed
	ErrorClassifier ErrorClassifier
	Logger          logger.Logger
	Metrics         MetricsCollector
}

// DefaultConfig mirrors the generator client defaults.
func DefaultConfig() Config {
	return Config{
		Name:            "generator",
		Threshold:       3,
		Cooldown:        60 * time.Second,
		ErrorClassifier: ferrors.DefaultErrorClassifier,
		Logger:          logger.NoOpLogger{},
		Metrics:         noopMetrics{},
	}
}

// CircuitBreaker gates calls to a guarded operation, opening after
// Threshold consecutive classified failures and staying open for Cooldown
// before allowing a single half-open probe.
type CircuitBreaker struct {
	cfg Config

	mu             sync.Mutex
	state          CircuitState
	openedAt       time.Time
	probeInFlight  bool

	consecutiveFailures atomic.Int32
	tokenCounter         atomic.Uint64
}

// New creates a CircuitBreaker from cfg, filling in defaults for any zero
// fields.
func New(cfg Config) *CircuitBreaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 60 * time.Second
	}
	if cfg.ErrorClassifier == nil {
		cfg.ErrorClassifier = ferrors.DefaultErrorClassifier
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NoOpLogger{}
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the breaker's current state, transitioning Open -> HalfOpen
// internally once Cooldown has elapsed since it opened.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() CircuitState {
	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.cfg.Cooldown {
		return StateHalfOpen
	}
	return cb.state
}

// Allow reports whether a call may proceed, reserving the single half-open
// probe slot if the circuit has just become eligible to retry. Returns a
// token to be passed to Success/Failure, and ferrors.ErrCircuitOpen if the
// call must fail fast.
func (cb *CircuitBreaker) Allow() (ExecutionToken, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateClosed:
		return ExecutionToken{id: cb.tokenCounter.Add(1)}, nil

	case StateHalfOpen:
		if cb.probeInFlight {
			cb.cfg.Metrics.RecordRejection(cb.cfg.Name)
			return ExecutionToken{}, ferrors.Wrap("resilience.Allow", ferrors.KindCircuitOpen, ferrors.ErrCircuitOpen)
		}
		cb.probeInFlight = true
		if cb.state != StateHalfOpen {
			cb.transitionLocked(StateHalfOpen)
		}
		return ExecutionToken{id: cb.tokenCounter.Add(1), isProbe: true, startedAt: time.Now()}, nil

	default: // StateOpen, cooldown not yet elapsed
		cb.cfg.Metrics.RecordRejection(cb.cfg.Name)
		return ExecutionToken{}, ferrors.Wrap("resilience.Allow", ferrors.KindCircuitOpen, ferrors.ErrCircuitOpen)
	}
}

// Success records a successful call: resets the consecutive-failure
// counter to zero and, if this was a half-open probe, closes the circuit
func (cb *CircuitBreaker) Success(tok ExecutionToken) {
	cb.consecutiveFailures.Store(0)
	cb.cfg.Metrics.RecordSuccess(cb.cfg.Name)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if tok.isProbe {
		cb.probeInFlight = false
	}
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// Failure records a call failure. Only errors the classifier counts toward
// the consecutive-failure total trip the breaker; others are ignored
// entirely.
func (cb *CircuitBreaker) Failure(tok ExecutionToken, err error) {
	if !cb.cfg.ErrorClassifier(err) {
		cb.mu.Lock()
		if tok.isProbe {
			cb.probeInFlight = false
		}
		cb.mu.Unlock()
		return
	}

	cb.cfg.Metrics.RecordFailure(cb.cfg.Name)

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if tok.isProbe {
		cb.probeInFlight = false
		// A failed half-open probe re-opens the circuit with a reset timer
		cb.consecutiveFailures.Store(0)
		cb.transitionLocked(StateOpen)
		cb.openedAt = time.Now()
		return
	}

	n := cb.consecutiveFailures.Add(1)
	if int(n) >= cb.cfg.Threshold && cb.state != StateOpen {
		cb.transitionLocked(StateOpen)
		cb.openedAt = time.Now()
	}
}

func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	cb.state = to
	if to == StateClosed {
		cb.consecutiveFailures.Store(0)
	}
	cb.cfg.Logger.Info("circuit breaker state change", "name", cb.cfg.Name, "from", from.String(), "to", to.String())
	cb.cfg.Metrics.RecordStateChange(cb.cfg.Name, from, to)
}

// Execute runs fn if the breaker allows it, recording the outcome. It is a
// convenience wrapper over Allow/Success/Failure for callers that don't
// need to inspect the token themselves.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	tok, err := cb.Allow()
	if err != nil {
		return err
	}
	if err := fn(); err != nil {
		cb.Failure(tok, err)
		return err
	}
	cb.Success(tok)
	return nil
}
