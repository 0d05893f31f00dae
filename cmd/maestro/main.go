// Command maestro runs the composition orchestrator as an HTTP service:
// POST /compose accepts a CompositionRequest and streams back NDJSON
// progress events followed by the final Result.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/llm"
	"github.com/stori-audio/maestro-agents/logger"
	"github.com/stori-audio/maestro-agents/obstrace"
	"github.com/stori-audio/maestro-agents/orchestrator"
	"github.com/stori-audio/maestro-agents/signalbus"
	"github.com/stori-audio/maestro-agents/statestore"
)

func main() {
	cfg := config.Load()
	log := buildLogger()

	provider, err := obstrace.NewProvider(context.Background(), obstrace.ProviderOptions{
		ServiceName:  "maestro-agents",
		OTLPEndpoint: os.Getenv("MAESTRO_OTLP_ENDPOINT"),
		Insecure:     os.Getenv("MAESTRO_OTLP_INSECURE") == "true",
	})
	if err != nil {
		log.Warn("tracing provider not configured, spans are recorded but never exported", "error", err)
	} else {
		defer func() {
			if shutdownErr := provider.Shutdown(context.Background()); shutdownErr != nil {
				log.Warn("tracer provider shutdown failed", "error", shutdownErr)
			}
		}()
	}

	deps := orchestrator.Deps{
		Store:     statestore.New(cfg, log),
		Gen:       generator.New(cfg, log, obstrace.NewTracedHTTPClient(nil)),
		Bus:       signalbus.New(),
		Telemetry: signalbus.NewTelemetryStore(),
		Tracer:    obstrace.New("maestro-agents/cmd"),
		Log:       log,
		Cfg:       cfg,
		LLM:       buildLLMClient(log),
	}

	if path := os.Getenv("MAESTRO_ROLE_PRESETS_PATH"); path != "" {
		presets, err := config.LoadRolePresets(path)
		if err != nil {
			log.Warn("role presets not loaded", "path", path, "error", err)
		} else {
			deps.RolePresets = presets
		}
	}

	srv := &server{deps: deps, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/compose", srv.handleCompose)
	mux.HandleFunc("/healthz", srv.handleHealth)

	addr := ":8090"
	if v := os.Getenv("MAESTRO_LISTEN_ADDR"); v != "" {
		addr = v
	}
	log.Info("maestro orchestrator listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// buildLLMClient logs a warning and returns an idle FakeClient, so the
// service still starts and reports its own wiring rather than crashing. No
// concrete llm.Client provider (OpenAI/Anthropic/etc.) ships in this
// module; this function is where one would be constructed.
func buildLLMClient(log logger.Logger) llm.Client {
	log.Warn("no LLM provider wired; running with an idle stub client that never calls tools")
	return llm.NewFakeClient()
}

func buildLogger() logger.Logger {
	l := logger.NewSimpleLogger()
	l.SetLevel(logger.LevelFromEnv())
	return l
}

type server struct {
	deps orchestrator.Deps
	log  logger.Logger
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleCompose runs one composition request to completion, draining the
// shared event multiplexer as NDJSON lines while the coordinator's
// goroutines are still producing, then
// writes the final Result as one trailing JSON line.
func (s *server) handleCompose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}

	var req orchestrator.CompositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	runDeps := s.deps
	runDeps.Events = eventstream.NewMultiplexer()
	co := orchestrator.NewCoordinator(runDeps)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	done := make(chan orchestrator.Result, 1)
	go func() {
		done <- co.Run(ctx, req)
		runDeps.Events.Close()
	}()

	enc := json.NewEncoder(w)
	for runDeps.Events.Wait() {
		for _, line := range runDeps.Events.Drain() {
			_ = enc.Encode(line)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	for _, line := range runDeps.Events.Drain() {
		_ = enc.Encode(line)
	}

	res := <-done
	_ = enc.Encode(res)
	if flusher != nil {
		flusher.Flush()
	}
}
