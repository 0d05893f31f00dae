// Package ferrors defines the error taxonomy shared across the
// orchestrator: sentinel errors for errors.Is comparison, a wrapping
// FrameworkError type that preserves operation/kind/id context, and
// classifier helpers used by the circuit breaker and retry policies to
// decide whether an error is transient.
package ferrors

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Compare with errors.Is, never with ==, since callers may
// receive these wrapped in a *FrameworkError.
var (
	// Validation — malformed or missing tool arguments.
	ErrValidation = errors.New("validation error")

	// RegionOverlap — create_region request overlaps an existing region;
	// recovered by returning the existing region id.
	ErrRegionOverlap = errors.New("region overlaps an existing region")

	// UnknownEntity — a trackName/regionName could not be resolved.
	ErrUnknownTrack  = errors.New("unknown track")
	ErrUnknownRegion = errors.New("unknown region")
	ErrUnknownBus    = errors.New("unknown bus")

	// GeneratorTransient — HTTP 503 / timeout / connection drop.
	ErrGeneratorTransient = errors.New("generator transient error")

	// GeneratorPersistent — explicit failed job status or success=false.
	ErrGeneratorPersistent = errors.New("generator persistent error")

	// CircuitOpen — the generator circuit breaker is open.
	ErrCircuitOpen = errors.New("orpheus_circuit_open")

	// TransactionAbort — raised within a transaction scope.
	ErrTransactionAbort = errors.New("transaction aborted")

	// ProtocolViolation — a contract consistency invariant was broken.
	ErrProtocolViolation = errors.New("protocol violation")

	// Fatal — an unhandled error at an instrument-agent boundary.
	ErrFatal = errors.New("fatal error")

	// State-store specific sentinels.
	ErrTransactionActive  = errors.New("transaction already active")
	ErrTransactionNotOpen = errors.New("no active transaction")
	ErrNestedTransaction  = errors.New("nested transactions are not supported")

	// Contract-core specific sentinels.
	ErrNotSealed     = errors.New("contract has not been sealed")
	ErrAlreadySealed = errors.New("contract has already been sealed")
	ErrHashMismatch  = errors.New("contract hash does not verify")
)

// Kind classifies a FrameworkError for logging/metrics grouping.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindRegionOverlap      Kind = "region_overlap"
	KindUnknownEntity      Kind = "unknown_entity"
	KindGeneratorTransient Kind = "generator_transient"
	KindGeneratorPersistent Kind = "generator_persistent"
	KindCircuitOpen        Kind = "circuit_open"
	KindTransactionAbort   Kind = "transaction_abort"
	KindProtocolViolation  Kind = "protocol_violation"
	KindFatal              Kind = "fatal"
	KindState              Kind = "state"
)

// FrameworkError carries structured context about a failed operation while
// still supporting errors.Is/errors.As through Unwrap.
type FrameworkError struct {
	Op      string // operation that failed, e.g. "statestore.CreateRegion"
	Kind    Kind   // error category
	ID      string // optional entity id involved
	Message string // human-readable message
	Err     error  // wrapped sentinel or underlying error
}

func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// Wrap builds a *FrameworkError around err, tagging it with op/kind for
// structured logging and keeping errors.Is(err, sentinel) working.
func Wrap(op string, kind Kind, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, Err: err}
}

// WrapID is Wrap plus an entity id (region/track/bus id) for context.
func WrapID(op string, kind Kind, id string, err error) *FrameworkError {
	return &FrameworkError{Op: op, Kind: kind, ID: id, Err: err}
}

// IsTransient reports whether err should be retried by the generator
// client's submit-retry policy.
func IsTransient(err error) bool {
	return errors.Is(err, ErrGeneratorTransient)
}

// IsCircuitOpen reports whether err originated from a fail-fast circuit
// breaker rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// IsNotFound reports whether err represents an unresolved entity reference.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownTrack) || errors.Is(err, ErrUnknownRegion) || errors.Is(err, ErrUnknownBus)
}

// IsValidation reports whether err is a tool-argument validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsProtocolViolation reports whether err is a contract-consistency break.
func IsProtocolViolation(err error) bool {
	return errors.Is(err, ErrProtocolViolation)
}

// DefaultErrorClassifier decides which errors count toward a circuit
// breaker's consecutive-failure counter. Only infrastructure-grade errors
// (generator transience, unclassified errors) count; user/programming
// errors (validation, unknown entity, protocol violation, context
// cancellation) do not.
func DefaultErrorClassifier(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsNotFound(err) || IsProtocolViolation(err) {
		return false
	}
	if errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
