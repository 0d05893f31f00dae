package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/contract"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/executor"
	"github.com/stori-audio/maestro-agents/generator"
)

func sealedSectionContract(t *testing.T, role string) contract.SectionContract {
	t.Helper()
	section := contract.SectionSpec{SectionID: "0:intro", Name: "intro", Bars: 8, DurationBeats: 32}
	require.NoError(t, section.Seal())
	sc := contract.SectionContract{Section: section, TrackID: "track-1", InstrumentName: role, Role: role, Style: "house", Tempo: 120, Key: "Am"}
	require.NoError(t, sc.Seal("instrument-hash"))
	return sc
}

func genHandler(t *testing.T, notes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rawNotes := make([]map[string]interface{}, notes)
		for i := range rawNotes {
			rawNotes[i] = map[string]interface{}{"pitch": 36, "velocity": 100}
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "complete",
			"result": map[string]interface{}{"success": true, "notes": rawNotes},
		})
	}
}

func TestRunSectionChildDrumRoleWritesNotesAndSignals(t *testing.T) {
	srv := httptest.NewServer(genHandler(t, 3))
	defer srv.Close()
	deps := newTestDeps(srv)

	tx, err := deps.Store.BeginTransaction("t")
	require.NoError(t, err)
	trackID, err := deps.Store.CreateTrack("Drums", "", nil, tx)
	require.NoError(t, err)
	regionID, _, err := deps.Store.CreateRegion("intro", trackID, 0, 32, "", tx)
	require.NoError(t, err)

	sc := sealedSectionContract(t, "drums")
	res := runSectionChild(context.Background(), sectionChildInput{
		Deps:       deps,
		Tx:         tx,
		Section:    sc,
		RegionID:   regionID,
		CompCtx:    executor.CompositionContext{Style: "house", Tempo: 120, Bars: 8, Key: "Am"},
		TraceID:    "trace-1",
		IsDrumRole: true,
	})

	require.NoError(t, res.Err)
	require.Equal(t, 3, res.NoteCount)
	require.NotEmpty(t, res.ExecutionHash)

	region, ok := deps.Store.GetRegion(regionID)
	require.True(t, ok)
	require.Len(t, region.Notes, 3)

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sig, err := deps.Bus.WaitFor(waitCtx, sc.Section.SectionID, sc.ContractHash)
	require.NoError(t, err)
	require.True(t, sig.Success)
	require.Len(t, sig.DrumNotes, 3)
}

func TestRunSectionChildBassWaitsForDrumSignal(t *testing.T) {
	srv := httptest.NewServer(genHandler(t, 2))
	defer srv.Close()
	deps := newTestDeps(srv)

	tx, err := deps.Store.BeginTransaction("t")
	require.NoError(t, err)
	trackID, err := deps.Store.CreateTrack("Bass", "", nil, tx)
	require.NoError(t, err)
	regionID, _, err := deps.Store.CreateRegion("intro", trackID, 0, 32, "", tx)
	require.NoError(t, err)

	drumSC := sealedSectionContract(t, "drums")
	bassSC := sealedSectionContract(t, "bass")
	bassSC.Section = drumSC.Section // share the same section id so the keys line up

	go func() {
		time.Sleep(10 * time.Millisecond)
		deps.Bus.SignalComplete(drumSC.Section.SectionID, drumSC.ContractHash, true, nil)
	}()

	res := runSectionChild(context.Background(), sectionChildInput{
		Deps:            deps,
		Tx:              tx,
		Section:         bassSC,
		RegionID:        regionID,
		CompCtx:         executor.CompositionContext{Style: "house", Tempo: 120, Bars: 8, Key: "Am"},
		TraceID:         "trace-1",
		DrumSectionHash: drumSC.ContractHash,
	})

	require.NoError(t, res.Err)
	require.Equal(t, 2, res.NoteCount)
}

func TestRunSectionChildBassTimesOutWithoutBlockingForever(t *testing.T) {
	srv := httptest.NewServer(genHandler(t, 1))
	defer srv.Close()
	deps := newTestDeps(srv)
	deps.Cfg.BassSignalWaitTimeout = 20 * time.Millisecond

	tx, err := deps.Store.BeginTransaction("t")
	require.NoError(t, err)
	trackID, err := deps.Store.CreateTrack("Bass", "", nil, tx)
	require.NoError(t, err)
	regionID, _, err := deps.Store.CreateRegion("intro", trackID, 0, 32, "", tx)
	require.NoError(t, err)

	bassSC := sealedSectionContract(t, "bass")

	start := time.Now()
	res := runSectionChild(context.Background(), sectionChildInput{
		Deps:            deps,
		Tx:              tx,
		Section:         bassSC,
		RegionID:        regionID,
		CompCtx:         executor.CompositionContext{Style: "house", Tempo: 120, Bars: 8, Key: "Am"},
		TraceID:         "trace-1",
		DrumSectionHash: "never-signalled-hash",
	})

	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, res.Err)
	foundTimeout := false
	for _, e := range res.Events {
		if e.Type == eventstream.TypeStatus && e.Payload["phase"] == "bass_signal_timeout" {
			foundTimeout = true
		}
	}
	require.True(t, foundTimeout)
}

func TestRunSectionChildGeneratorFailureSignalsDrumFailureImmediately(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "complete",
			"result": map[string]interface{}{"success": false, "error": "gpu crashed"},
		})
	}))
	defer srv.Close()
	deps := newTestDeps(srv)

	tx, err := deps.Store.BeginTransaction("t")
	require.NoError(t, err)
	trackID, err := deps.Store.CreateTrack("Drums", "", nil, tx)
	require.NoError(t, err)
	regionID, _, err := deps.Store.CreateRegion("intro", trackID, 0, 32, "", tx)
	require.NoError(t, err)

	sc := sealedSectionContract(t, "drums")
	res := runSectionChild(context.Background(), sectionChildInput{
		Deps:       deps,
		Tx:         tx,
		Section:    sc,
		RegionID:   regionID,
		CompCtx:    executor.CompositionContext{Style: "house", Tempo: 120, Bars: 8, Key: "Am"},
		TraceID:    "trace-1",
		IsDrumRole: true,
	})
	require.Error(t, res.Err)

	waitCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sig, err := deps.Bus.WaitFor(waitCtx, sc.Section.SectionID, sc.ContractHash)
	require.NoError(t, err)
	require.False(t, sig.Success)
}

var _ = generator.Request{}
