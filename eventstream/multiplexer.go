package eventstream

import (
	"encoding/json"
	"sync"
)

// Multiplexer is the many-producer-one-consumer event queue: every
// agent/section goroutine writes to the shared queue via Emit, and the
// coordinator drains it cooperatively. seq is assigned here, at the drain
// point, so ordering is guaranteed regardless of which producer goroutine
// runs first.
type Multiplexer struct {
	mu     sync.Mutex
	events []Event
	nextSeq int
	closed bool
	notify chan struct{}
}

// NewMultiplexer creates an empty, open Multiplexer.
func NewMultiplexer() *Multiplexer {
	return &Multiplexer{notify: make(chan struct{}, 1)}
}

// Emit enqueues an event for later draining. Safe to call concurrently from
// any number of producer goroutines.
func (m *Multiplexer) Emit(e Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.events = append(m.events, e)
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// EmitAll enqueues every event in es, preserving relative order between
// them (their final seq values will still be contiguous and increasing).
func (m *Multiplexer) EmitAll(es []Event) {
	for _, e := range es {
		m.Emit(e)
	}
}

// Drain removes and returns every currently queued event, stamping each
// with the next monotonically increasing seq.
func (m *Multiplexer) Drain() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.events) == 0 {
		return nil
	}
	out := m.events
	m.events = nil
	for i := range out {
		out[i].Seq = m.nextSeq
		m.nextSeq++
	}
	return out
}

// Wait blocks until an Emit has happened since the last Wait/Drain, or the
// multiplexer is closed. It returns false once closed and drained dry.
func (m *Multiplexer) Wait() bool {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		<-m.notify
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed || len(m.events) > 0
}

// Close marks the multiplexer closed; any buffered events remain drainable,
// but Emit after Close is a silent no-op (the run has ended).
func (m *Multiplexer) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// DrainJSON drains and serialises every queued event as newline-delimited
// JSON (NDJSON), the wire format the client reads.
func (m *Multiplexer) DrainJSON() ([][]byte, error) {
	events := m.Drain()
	out := make([][]byte, 0, len(events))
	for _, e := range events {
		line, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}
