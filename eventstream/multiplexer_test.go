package eventstream

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDrainAssignsMonotonicSeq(t *testing.T) {
	mux := NewMultiplexer()
	mux.Emit(New(TypeStatus, nil).WithAgent("drums"))
	mux.Emit(New(TypeStatus, nil).WithAgent("bass"))

	events := mux.Drain()
	require.Len(t, events, 2)
	require.Equal(t, 0, events[0].Seq)
	require.Equal(t, 1, events[1].Seq)

	mux.Emit(New(TypeStatus, nil).WithAgent("melody"))
	more := mux.Drain()
	require.Equal(t, 2, more[0].Seq)
}

func TestDrainIsOrderPreservingAcrossConcurrentProducers(t *testing.T) {
	mux := NewMultiplexer()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mux.Emit(New(TypeToolCall, map[string]interface{}{"i": i}))
		}(i)
	}
	wg.Wait()

	events := mux.Drain()
	require.Len(t, events, 8)
	for i, e := range events {
		require.Equal(t, i, e.Seq)
	}
}

func TestMarshalJSONFlattensPayload(t *testing.T) {
	e := New(TypeToolCall, map[string]interface{}{"name": "stori_set_tempo"}).
		WithAgent("drums").WithPhase(PhaseSetup).WithLabel("Set tempo")
	e.Seq = 3

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "toolCall", decoded["type"])
	require.Equal(t, float64(3), decoded["seq"])
	require.Equal(t, "drums", decoded["agentId"])
	require.Equal(t, "setup", decoded["phase"])
	require.Equal(t, "Set tempo", decoded["label"])
	require.Equal(t, "stori_set_tempo", decoded["name"])
}

func TestEmitAfterCloseIsNoOp(t *testing.T) {
	mux := NewMultiplexer()
	mux.Close()
	mux.Emit(New(TypeDone, nil))
	require.Empty(t, mux.Drain())
}

func TestPhaseForToolMapping(t *testing.T) {
	require.Equal(t, PhaseSetup, PhaseForTool("stori_set_tempo"))
	require.Equal(t, PhaseMixing, PhaseForTool("stori_set_track_volume"))
	require.Equal(t, PhaseSoundDesign, PhaseForTool("stori_add_insert_effect"))
	require.Equal(t, PhaseComposition, PhaseForTool("stori_add_midi_region"))
}
