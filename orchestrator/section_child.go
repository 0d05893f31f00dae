package orchestrator

import (
	"context"
	"fmt"

	"github.com/stori-audio/maestro-agents/contract"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/executor"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/signalbus"
	"github.com/stori-audio/maestro-agents/statestore"
)

// sectionChildInput is everything one (instrument, section) generate pass
// needs. It is built by the instrument agent once per section, after the
// region that will hold the generated notes already exists.
type sectionChildInput struct {
	Deps           Deps
	Tx             *statestore.Transaction
	Section        contract.SectionContract
	RegionID       string
	CompCtx        executor.CompositionContext
	TraceID        string
	IsDrumRole     bool
	DrumInstrument string // the drum instrument's name; "" if none (carried along, not read by runSectionChild)
	DrumSectionHash string // drum's own per-section ContractHash for this section id; "" if none/unavailable
}

// sectionChildResult is what the instrument agent folds back into its own
// running tallies and, for the drum role, into the map handed to every
// other instrument.
type sectionChildResult struct {
	NoteCount     int
	Telemetry     signalbus.SectionTelemetry
	ExecutionHash string
	Events        []eventstream.Event
	Err           error
}

// runSectionChild is the L3 pipeline folded into the L2 instrument agent's
// turn loop: for a bass section, wait on the drum section's completion
// signal and pass its drum notes to the generator as previous notes (the
// drum's stored telemetry is not read here), generate
// notes for this section's region, write them into the shared store,
// compute and publish telemetry, signal completion for a drum section, and
// bind the result to this session via the execution hash. Folded into a
// plain function call rather than its own goroutine or task, since the
// tool-calling turn loop above it already owns the goroutine.
func runSectionChild(ctx context.Context, in sectionChildInput) sectionChildResult {
	deps := in.Deps.withDefaults()
	sectionID := in.Section.Section.SectionID
	instrument := in.Section.InstrumentName
	role := in.Section.Role

	var events []eventstream.Event
	events = append(events, eventstream.New(eventstream.TypeStatus, map[string]interface{}{
		"phase": "section_start", "section": in.Section.Section.Name,
	}).WithAgent(instrument).WithSection(in.Section.Section.Name))

	var previousNotes []statestore.Note
	if role == "bass" && in.DrumSectionHash != "" {
		waitCtx, cancel := context.WithTimeout(ctx, deps.Cfg.BassSignalWaitTimeout)
		sig, err := deps.Bus.WaitFor(waitCtx, sectionID, in.DrumSectionHash)
		cancel()
		if err != nil {
			events = append(events, eventstream.New(eventstream.TypeStatus, map[string]interface{}{
				"phase": "bass_signal_timeout", "section": in.Section.Section.Name, "error": err.Error(),
			}).WithAgent(instrument).WithSection(in.Section.Section.Name))
		} else if sig.Success {
			previousNotes = sig.DrumNotes
		}
	}

	genCtx, genCancel := context.WithTimeout(ctx, deps.Cfg.SectionChildTimeout)
	defer genCancel()

	events = append(events, eventstream.New(eventstream.TypeGeneratorStart, map[string]interface{}{
		"role": role, "section": in.Section.Section.Name, "bars": in.Section.Section.Bars,
	}).WithAgent(instrument).WithSection(in.Section.Section.Name))

	req := generator.Request{
		Genre:         in.CompCtx.Style,
		Tempo:         in.CompCtx.Tempo,
		Instruments:   []string{role},
		Bars:          in.Section.Section.Bars,
		Key:           in.CompCtx.Key,
		QualityPreset: firstNonEmptyOr(in.CompCtx.QualityPreset, "balanced"),
		CompositionID: in.CompCtx.CompositionID,
		PreviousNotes: previousNotes,
	}

	result, err := deps.Gen.Generate(genCtx, req)
	if err != nil || result == nil || !result.Success {
		errMsg := "generation failed"
		if result != nil && result.Error != "" {
			errMsg = result.Error
		} else if err != nil {
			errMsg = err.Error()
		}
		events = append(events, eventstream.New(eventstream.TypeToolError, map[string]interface{}{
			"section": in.Section.Section.Name, "error": errMsg,
		}).WithAgent(instrument).WithSection(in.Section.Section.Name))
		if in.IsDrumRole {
			// Signal failure too, so a waiting bass section doesn't block for
			// the full timeout when the drum section will never produce notes.
			deps.Bus.SignalComplete(sectionID, in.Section.ContractHash, false, nil)
		}
		return sectionChildResult{Events: events, Err: fmt.Errorf("%s: %s", instrument, errMsg)}
	}

	if len(result.Notes) > 0 {
		_ = deps.Store.AddNotes(in.RegionID, result.Notes, in.Tx)
	}
	if len(result.CCEvents) > 0 {
		_ = deps.Store.AddCC(in.RegionID, result.CCEvents, in.Tx)
	}
	if len(result.PitchBends) > 0 {
		_ = deps.Store.AddPitchBends(in.RegionID, result.PitchBends, in.Tx)
	}
	if len(result.Aftertouch) > 0 {
		_ = deps.Store.AddAftertouch(in.RegionID, result.Aftertouch, in.Tx)
	}

	events = append(events, eventstream.New(eventstream.TypeGeneratorComplete, map[string]interface{}{
		"role": role, "section": in.Section.Section.Name, "noteCount": len(result.Notes),
	}).WithAgent(instrument).WithSection(in.Section.Section.Name))

	telemetry := signalbus.ComputeTelemetry(result.Notes, float64(in.CompCtx.Tempo), instrument, in.Section.Section.Name, in.Section.Section.DurationBeats)
	deps.Telemetry.Set(signalbus.TelemetryKey(instrument, sectionID), telemetry)

	if in.IsDrumRole {
		deps.Bus.SignalComplete(sectionID, in.Section.ContractHash, true, result.Notes)
	}

	execHash := contract.ExecutionHash(in.Section.ContractHash, in.TraceID)

	events = append(events, eventstream.New(eventstream.TypeStatus, map[string]interface{}{
		"phase": "section_complete", "section": in.Section.Section.Name, "executionHash": execHash,
	}).WithAgent(instrument).WithSection(in.Section.Section.Name))

	return sectionChildResult{
		NoteCount:     len(result.Notes),
		Telemetry:     telemetry,
		ExecutionHash: execHash,
		Events:        events,
	}
}

func firstNonEmptyOr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
