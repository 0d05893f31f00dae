// Package signalbus implements the Signal & Telemetry Bus:
// readiness-gating signals for drum-to-bass section pipelining, and a
// write-once musical telemetry store for cross-instrument awareness, built
// on Go channels closed exactly once to gate a dependent step's start.
package signalbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/statestore"
)

// SignalResult is the typed outcome stored by SignalComplete and returned
// by WaitFor.
type SignalResult struct {
	Success      bool
	DrumNotes    []statestore.Note
	ContractHash string
}

type signalEntry struct {
	ch     chan struct{}
	once   sync.Once
	result *SignalResult
}

// Bus gates section readiness by the composite key (section_id,
// contract_hash), so a signal can only ever be consumed by the section
// run it was actually produced for.
type Bus struct {
	mu      sync.Mutex
	signals map[string]*signalEntry
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{signals: make(map[string]*signalEntry)}
}

func key(sectionID, contractHash string) string {
	return sectionID + ":" + contractHash
}

// FromSectionIDs pre-creates one completion event per (section_id,
// contract_hash) pair.
func (b *Bus) FromSectionIDs(pairs []struct{ SectionID, ContractHash string }) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range pairs {
		k := key(p.SectionID, p.ContractHash)
		if _, ok := b.signals[k]; !ok {
			b.signals[k] = &signalEntry{ch: make(chan struct{})}
		}
	}
}

func (b *Bus) entry(sectionID, contractHash string) *signalEntry {
	k := key(sectionID, contractHash)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.signals[k]
	if !ok {
		e = &signalEntry{ch: make(chan struct{})}
		b.signals[k] = e
	}
	return e
}

// SignalComplete records a section's completion and wakes any waiter.
// Idempotent: the first call for a given key wins, subsequent calls are a
// silent no-op. The result
// is stored before the event fires, guaranteeing store-before-signal
// ordering for the waiter.
func (b *Bus) SignalComplete(sectionID, contractHash string, success bool, drumNotes []statestore.Note) {
	e := b.entry(sectionID, contractHash)
	e.once.Do(func() {
		e.result = &SignalResult{Success: success, DrumNotes: drumNotes, ContractHash: contractHash}
		close(e.ch)
	})
}

// WaitFor blocks until the section identified by (sectionID, contractHash)
// signals completion, ctx is cancelled, or timeout elapses. A signal stored
// under a different contract hash for the same section id is invisible to
// this waiter — it will simply time out. If the stored result's own
// contract hash does not match the key it was filed under (which should
// never happen given SignalComplete's construction, but is defensive
// against programmer error), ProtocolViolation is returned.
func (b *Bus) WaitFor(ctx context.Context, sectionID, contractHash string) (*SignalResult, error) {
	e := b.entry(sectionID, contractHash)

	select {
	case <-e.ch:
		if e.result.ContractHash != contractHash {
			return nil, ferrors.Wrap("signalbus.WaitFor", ferrors.KindProtocolViolation, ferrors.ErrProtocolViolation)
		}
		return e.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Has reports whether an entry exists for the exact (sectionID,
// contractHash) key; FromSectionIDs, SignalComplete and WaitFor each
// create one on first use.
func (b *Bus) Has(sectionID, contractHash string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.signals[key(sectionID, contractHash)]
	return ok
}

// String helps tests and logs name a (sectionID, contractHash) pair.
func String(sectionID, contractHash string) string {
	return fmt.Sprintf("%s@%s", sectionID, contractHash)
}
