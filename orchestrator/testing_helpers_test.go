package orchestrator

import (
	"errors"
	"net/http/httptest"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/logger"
	"github.com/stori-audio/maestro-agents/statestore"
)

var errBoom = errors.New("boom")

// testConfig builds a Config pointed at an httptest generator server,
// mirroring generator/client_test.go's helper of the same name.
func testConfig(baseURL string) *config.Config {
	cfg := config.Default()
	cfg.GeneratorBaseURL = baseURL
	cfg.GeneratorMaxConcurrent = 4
	cfg.GeneratorPollMaxAttempts = 3
	return cfg
}

// newTestDeps wires a fresh store, generator (against srv), bus, telemetry
// store and multiplexer for one test, leaving LLM unset for callers that
// don't exercise the LLM-driven layers.
func newTestDeps(srv *httptest.Server) Deps {
	cfg := testConfig(srv.URL)
	return Deps{
		Store:     statestore.New(cfg, logger.NoOpLogger{}),
		Gen:       generator.New(cfg, logger.NoOpLogger{}, nil),
		Cfg:       cfg,
	}.withDefaults()
}
