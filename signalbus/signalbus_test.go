package signalbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/statestore"
)

func TestSignalCompleteThenWaitForReturnsResult(t *testing.T) {
	b := New()
	notes := []statestore.Note{{Pitch: 36, StartBeat: 0}}
	b.SignalComplete("0:intro", "hash-a", true, notes)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := b.WaitFor(ctx, "0:intro", "hash-a")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.DrumNotes, 1)
}

func TestSignalCompleteIsIdempotentFirstWriteWins(t *testing.T) {
	b := New()
	b.SignalComplete("0:intro", "hash-a", true, []statestore.Note{{Pitch: 36}})
	b.SignalComplete("0:intro", "hash-a", false, nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res, err := b.WaitFor(ctx, "0:intro", "hash-a")
	require.NoError(t, err)
	require.True(t, res.Success, "second signal_complete call must be a no-op")
}

func TestWrongContractHashIsInvisibleToWaiter(t *testing.T) {
	b := New()
	b.SignalComplete("0:intro", "hash-a", true, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.WaitFor(ctx, "0:intro", "hash-b")
	require.Error(t, err)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWaitForRespectsContextCancellation(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.WaitFor(ctx, "0:verse", "hash-c")
	require.Error(t, err)
}

func TestWaitForUnblocksConcurrentlyWithSignal(t *testing.T) {
	b := New()
	done := make(chan *SignalResult, 1)
	errs := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		res, err := b.WaitFor(ctx, "0:drop", "hash-d")
		done <- res
		errs <- err
	}()

	time.Sleep(10 * time.Millisecond)
	b.SignalComplete("0:drop", "hash-d", true, []statestore.Note{{Pitch: 35}})

	require.NoError(t, <-errs)
	res := <-done
	require.True(t, res.Success)
}

func TestComputeTelemetryIsDeterministic(t *testing.T) {
	notes := []statestore.Note{
		{Pitch: 36, StartBeat: 0, Velocity: 100},
		{Pitch: 36, StartBeat: 1, Velocity: 90},
		{Pitch: 42, StartBeat: 0.5, Velocity: 60},
	}
	t1 := ComputeTelemetry(notes, 120, "Drums", "0:intro", 4)
	t2 := ComputeTelemetry(notes, 120, "Drums", "0:intro", 4)
	require.Equal(t, t1, t2)
	require.Equal(t, 0.75, t1.DensityScore) // 3 notes / 4 beats
	require.NotEmpty(t, t1.KickPatternHash)
}

func TestComputeTelemetryEmptyNotes(t *testing.T) {
	tel := ComputeTelemetry(nil, 120, "Bass", "0:intro", 4)
	require.Equal(t, 0.0, tel.DensityScore)
	require.Equal(t, 0.0, tel.EnergyLevel)
	require.Empty(t, tel.KickPatternHash)
}

func TestTelemetryStoreSetGetSnapshot(t *testing.T) {
	store := NewTelemetryStore()
	key := TelemetryKey("Drums", "0:verse")
	tel := ComputeTelemetry([]statestore.Note{{Pitch: 36, Velocity: 100}}, 120, "Drums", "0:verse", 4)
	store.Set(key, tel)

	got, ok := store.Get(key)
	require.True(t, ok)
	require.Equal(t, tel, got)

	snap := store.Snapshot()
	require.Len(t, snap, 1)
}

func TestWaitForProtocolViolationOnMismatchedStoredHash(t *testing.T) {
	// Directly construct an inconsistent entry to exercise the defensive
	// ProtocolViolation branch.
	b := New()
	e := b.entry("0:intro", "hash-a")
	e.once.Do(func() {
		e.result = &SignalResult{Success: true, ContractHash: "different-hash"}
		close(e.ch)
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := b.WaitFor(ctx, "0:intro", "hash-a")
	require.True(t, ferrors.IsProtocolViolation(err))
}
