package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/logger"
)

func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.GeneratorBaseURL = baseURL
	cfg.GeneratorMaxConcurrent = 2
	cfg.GeneratorPollMaxAttempts = 3
	cfg.GeneratorPollTimeout = 50 * time.Millisecond
	return cfg
}

func TestGenerateCacheHitFastPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/generate", r.URL.Path)
		json.NewEncoder(w).Encode(submitResponse{
			Status: "complete",
			Result: &rawResult{Success: true, Notes: []rawNote{{Pitch: 60, Velocity: 90}}},
		})
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), logger.NoOpLogger{}, nil)
	res, err := c.Generate(context.Background(), Request{Genre: "house", Tempo: 120, Instruments: []string{"bass"}, Bars: 8})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Notes, 1)
	require.Equal(t, 60, res.Notes[0].Pitch)
}

func TestGenerateSubmitThenPollComplete(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/generate":
			json.NewEncoder(w).Encode(submitResponse{JobID: "job-1", Status: "queued", Position: 1})
		default:
			polls++
			if polls < 2 {
				json.NewEncoder(w).Encode(pollResponse{Status: "running"})
				return
			}
			json.NewEncoder(w).Encode(pollResponse{Status: "complete", Result: &rawResult{Success: true, Notes: []rawNote{{Pitch: 64}}}})
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), logger.NoOpLogger{}, nil)
	res, err := c.Generate(context.Background(), Request{Genre: "house", Instruments: []string{"drums"}})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Notes, 1)
}

func TestGeneratePollExhaustionIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			json.NewEncoder(w).Encode(submitResponse{JobID: "job-1", Status: "queued"})
		default:
			json.NewEncoder(w).Encode(pollResponse{Status: "running"})
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), logger.NoOpLogger{}, nil)
	res, err := c.Generate(context.Background(), Request{Genre: "house"})
	require.Error(t, err)
	require.False(t, res.Success)
}

func TestGenerateJobFailureIsPersistentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/generate":
			json.NewEncoder(w).Encode(submitResponse{JobID: "job-1", Status: "queued"})
		default:
			json.NewEncoder(w).Encode(pollResponse{Status: "failed", Error: "gpu crashed"})
		}
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), logger.NoOpLogger{}, nil)
	res, err := c.Generate(context.Background(), Request{Genre: "house"})
	require.Error(t, err)
	require.False(t, res.Success)
	require.Equal(t, "gpu crashed", res.Error)
}

func TestGenerateRetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/generate" {
			attempts++
			if attempts < 2 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			json.NewEncoder(w).Encode(submitResponse{Status: "complete", Result: &rawResult{Success: true}})
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	c := New(cfg, logger.NoOpLogger{}, nil)
	c.submitRetryDelays = []time.Duration{time.Millisecond, time.Millisecond}

	res, err := c.Generate(context.Background(), Request{Genre: "house"})
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 2, attempts)
}

func TestCircuitOpensAfterConsecutiveConnectionFailures(t *testing.T) {
	cfg := config.Default()
	cfg.GeneratorBaseURL = "http://127.0.0.1:1" // nothing listening
	cfg.GeneratorCBThreshold = 2
	cfg.GeneratorMaxConcurrent = 1
	c := New(cfg, logger.NoOpLogger{}, nil)
	c.submitRetryDelays = nil

	for i := 0; i < 2; i++ {
		_, err := c.Generate(context.Background(), Request{Genre: "house"})
		require.Error(t, err)
	}

	require.True(t, c.CircuitOpen())

	_, err := c.Generate(context.Background(), Request{Genre: "house"})
	require.Error(t, err)
	require.Equal(t, "orpheus_circuit_open", err.Error()[len(err.Error())-len("orpheus_circuit_open"):])
}

func TestWarmupDoesNotPanicOnUnreachableService(t *testing.T) {
	cfg := config.Default()
	cfg.GeneratorBaseURL = "http://127.0.0.1:1"
	c := New(cfg, logger.NoOpLogger{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	c.Warmup(ctx)
}

func TestNormalizeToolCallsTranslatesAllFourKinds(t *testing.T) {
	calls := []ToolCall{
		{Tool: "addNotes", Params: map[string]interface{}{"notes": []interface{}{
			map[string]interface{}{"pitch": float64(60), "start_beat": float64(0), "duration_beats": float64(1), "velocity": float64(100), "channel": float64(0)},
		}}},
		{Tool: "addMidiCC", Params: map[string]interface{}{"cc": float64(74), "events": []interface{}{
			map[string]interface{}{"beat": float64(0), "value": float64(64)},
		}}},
		{Tool: "addPitchBend", Params: map[string]interface{}{"events": []interface{}{
			map[string]interface{}{"beat": float64(1), "value": float64(-200)},
		}}},
		{Tool: "addAftertouch", Params: map[string]interface{}{"events": []interface{}{
			map[string]interface{}{"beat": float64(2), "value": float64(50), "pitch": float64(60)},
		}}},
	}

	notes, cc, pb, at, err := normalizeToolCalls(calls)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, 60, notes[0].Pitch)
	require.Len(t, cc, 1)
	require.Equal(t, 74, cc[0].CC)
	require.Len(t, pb, 1)
	require.Equal(t, -200, pb[0].Value)
	require.Len(t, at, 1)
	require.NotNil(t, at[0].Pitch)
	require.Equal(t, 60, *at[0].Pitch)
}

func TestNormalizeToolCallsRejectsOutOfRangePitch(t *testing.T) {
	calls := []ToolCall{
		{Tool: "addNotes", Params: map[string]interface{}{"notes": []interface{}{
			map[string]interface{}{"pitch": float64(200), "velocity": float64(100)},
		}}},
	}
	_, _, _, _, err := normalizeToolCalls(calls)
	require.Error(t, err)
	require.True(t, ferrors.IsValidation(err))
}

func TestNormalizeToolCallsRejectsOutOfRangeCCValue(t *testing.T) {
	calls := []ToolCall{
		{Tool: "addMidiCC", Params: map[string]interface{}{"cc": float64(74), "events": []interface{}{
			map[string]interface{}{"beat": float64(0), "value": float64(999)},
		}}},
	}
	_, _, _, _, err := normalizeToolCalls(calls)
	require.Error(t, err)
	require.True(t, ferrors.IsValidation(err))
}
