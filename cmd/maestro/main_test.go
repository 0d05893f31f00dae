package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/orchestrator"
	"github.com/stori-audio/maestro-agents/signalbus"
	"github.com/stori-audio/maestro-agents/statestore"
)

func testServer(t *testing.T) *server {
	t.Helper()
	cfg := config.Default()
	log := buildLogger()
	deps := orchestrator.Deps{
		Store:     statestore.New(cfg, log),
		Gen:       generator.New(cfg, log, nil),
		Bus:       signalbus.New(),
		Telemetry: signalbus.NewTelemetryStore(),
		Log:       log,
		Cfg:       cfg,
		LLM:       buildLLMClient(log),
	}
	return &server{deps: deps, log: log}
}

func TestHandleHealthReturnsOK(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	srv.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}

func TestHandleComposeRejectsNonPost(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/compose", nil)
	rec := httptest.NewRecorder()

	srv.handleCompose(rec, req)

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleComposeRejectsInvalidJSON(t *testing.T) {
	srv := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/compose", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()

	srv.handleCompose(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleComposeStreamsEventsThenResult(t *testing.T) {
	srv := testServer(t)
	body, err := json.Marshal(orchestrator.CompositionRequest{
		CompositionID: "comp-1",
		TraceID:       "trace-1",
		Style:         "house",
		Tempo:         120,
		Key:           "Am",
		Bars:          8,
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/compose", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	srv.handleCompose(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var lastLine map[string]interface{}
	scanner := bufio.NewScanner(rec.Body)
	lineCount := 0
	for scanner.Scan() {
		lineCount++
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &lastLine))
	}
	require.NoError(t, scanner.Err())
	require.GreaterOrEqual(t, lineCount, 1)
	require.Contains(t, lastLine, "Success")
	require.Equal(t, "trace-1", lastLine["TraceID"])
}
