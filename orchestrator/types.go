// Package orchestrator implements the three-level agent hierarchy that
// turns one composition request into a finished project: a Coordinator
// (phase-driven, deterministic setup + parallel instrument fan-out +
// single mixing pass), one Instrument Agent per musical role (an LLM
// tool-calling turn loop), and one Section Child per (instrument, section)
// pair (the region-create → generate → telemetry → signal pipeline).
package orchestrator

import (
	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/executor"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/llm"
	"github.com/stori-audio/maestro-agents/logger"
	"github.com/stori-audio/maestro-agents/obstrace"
	"github.com/stori-audio/maestro-agents/signalbus"
	"github.com/stori-audio/maestro-agents/statestore"
)

// SectionInput is one musical section as supplied in a composition request,
// uniform across every instrument.
type SectionInput struct {
	Name          string
	Character     string
	RoleBrief     string
	Bars          int
	StartBeat     float64
	DurationBeats float64
}

// InstrumentInput is one instrument role requested for the composition.
// ExistingTrackID lets the coordinator reuse a track a prior turn already
// created instead of creating a duplicate.
type InstrumentInput struct {
	Name            string
	Role            string
	ExistingTrackID string
	StartBeat       float64
}

// CompositionRequest is the coordinator's top-level input.
type CompositionRequest struct {
	CompositionID string
	TraceID       string
	Style         string
	Tempo         int
	Key           string
	Bars          int
	QualityPreset string
	Sections      []SectionInput
	Instruments   []InstrumentInput
	// Prompt is the raw user prompt, scanned for expressiveness directives
	// that unlock the section child's refinement pass.
	Prompt string
}

// Deps bundles every shared collaborator the orchestrator needs. Store and
// Gen are required, and so is LLM for any LLM-driven layer (a
// *llm.FakeClient in tests); withDefaults fills Cfg, Log, Tracer,
// Telemetry, Bus and Events when they are nil.
type Deps struct {
	Store     *statestore.StateStore
	Gen       *generator.Client
	LLM       llm.Client
	Bus       *signalbus.Bus
	Telemetry *signalbus.TelemetryStore
	Events    *eventstream.Multiplexer
	Tracer    *obstrace.Tracer
	Log       logger.Logger
	Cfg       *config.Config

	// RolePresets optionally overrides trackstyle's/gmguidance's built-in
	// role-to-color and role-to-GM-program defaults. Nil means "use the
	// built-in defaults", which every override lookup in this package
	// already treats as a no-op.
	RolePresets *config.RolePresets
}

func (d Deps) withDefaults() Deps {
	if d.Cfg == nil {
		d.Cfg = config.Default()
	}
	if d.Log == nil {
		d.Log = logger.NoOpLogger{}
	}
	if d.Tracer == nil {
		d.Tracer = obstrace.New("maestro-agents/orchestrator")
	}
	if d.Telemetry == nil {
		d.Telemetry = signalbus.NewTelemetryStore()
	}
	if d.Bus == nil {
		d.Bus = signalbus.New()
	}
	if d.Events == nil {
		d.Events = eventstream.NewMultiplexer()
	}
	return d
}

// Result is what the coordinator returns once the composition finishes
type Result struct {
	Success      bool
	ToolCalls    int
	StateVersion int
	TraceID      string
	Usage        llm.Usage
	Summary      statestore.Summary
}

// newExecutor builds a fresh *executor.Executor sharing this run's store
// and generator client — each instrument agent gets its own Executor
// instance (per-region failure counters and var-ref batch state must not
// leak between instruments) while the underlying store and generator stay
// process-wide singletons.
func (d Deps) newExecutor() *executor.Executor {
	return executor.New(d.Store, d.Gen, d.Log)
}
