package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/ferrors"
)

func alwaysCounts(error) bool { return true }

func TestCircuitOpensAfterThresholdConsecutiveFailures(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute, ErrorClassifier: alwaysCounts})

	for i := 0; i < 3; i++ {
		tok, err := cb.Allow()
		require.NoError(t, err)
		cb.Failure(tok, errors.New("boom"))
	}

	require.Equal(t, StateOpen, cb.State())

	_, err := cb.Allow()
	require.True(t, ferrors.IsCircuitOpen(err))
}

func TestSuccessAtThresholdMinusOneResetsCounter(t *testing.T) {
	cb := New(Config{Threshold: 3, Cooldown: time.Minute, ErrorClassifier: alwaysCounts})

	tok, _ := cb.Allow()
	cb.Failure(tok, errors.New("boom"))
	tok, _ = cb.Allow()
	cb.Failure(tok, errors.New("boom"))

	tok, _ = cb.Allow()
	cb.Success(tok)
	require.Equal(t, int32(0), cb.consecutiveFailures.Load())

	// Two more failures should not open the circuit since the counter reset.
	tok, _ = cb.Allow()
	cb.Failure(tok, errors.New("boom"))
	tok, _ = cb.Allow()
	cb.Failure(tok, errors.New("boom"))
	require.Equal(t, StateClosed, cb.State())
}

func TestHalfOpenProbeAfterCooldown(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond, ErrorClassifier: alwaysCounts})

	tok, _ := cb.Allow()
	cb.Failure(tok, errors.New("boom"))
	require.Equal(t, StateOpen, cb.State())

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, StateHalfOpen, cb.State())

	tok, err := cb.Allow()
	require.NoError(t, err)
	require.True(t, tok.isProbe)

	// A second concurrent call during the probe window must be rejected.
	_, err = cb.Allow()
	require.True(t, ferrors.IsCircuitOpen(err))

	cb.Success(tok)
	require.Equal(t, StateClosed, cb.State())
}

func TestFailedProbeReopensCircuitWithResetTimer(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: 10 * time.Millisecond, ErrorClassifier: alwaysCounts})

	tok, _ := cb.Allow()
	cb.Failure(tok, errors.New("boom"))
	time.Sleep(20 * time.Millisecond)

	tok, err := cb.Allow()
	require.NoError(t, err)
	cb.Failure(tok, errors.New("still broken"))

	require.Equal(t, StateOpen, cb.State())
	// immediately after the re-open, cooldown has not elapsed
	_, err = cb.Allow()
	require.True(t, ferrors.IsCircuitOpen(err))
}

func TestUnclassifiedErrorsDoNotCountTowardThreshold(t *testing.T) {
	cb := New(Config{Threshold: 2, Cooldown: time.Minute, ErrorClassifier: ferrors.DefaultErrorClassifier})

	for i := 0; i < 5; i++ {
		tok, err := cb.Allow()
		require.NoError(t, err)
		cb.Failure(tok, ferrors.Wrap("op", ferrors.KindValidation, ferrors.ErrValidation))
	}

	require.Equal(t, StateClosed, cb.State())
}

func TestExecuteWrapsSuccessAndFailure(t *testing.T) {
	cb := New(Config{Threshold: 1, Cooldown: time.Minute, ErrorClassifier: alwaysCounts})

	require.NoError(t, cb.Execute(func() error { return nil }))
	require.Equal(t, StateClosed, cb.State())

	err := cb.Execute(func() error { return errors.New("boom") })
	require.Error(t, err)
	require.Equal(t, StateOpen, cb.State())

	err = cb.Execute(func() error { return nil })
	require.True(t, ferrors.IsCircuitOpen(err))
}
