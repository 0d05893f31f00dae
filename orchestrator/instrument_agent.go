package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/contract"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/executor"
	"github.com/stori-audio/maestro-agents/gmguidance"
	"github.com/stori-audio/maestro-agents/llm"
	"github.com/stori-audio/maestro-agents/statestore"
	"github.com/stori-audio/maestro-agents/trackstyle"
)

// instrumentAgentInput is one instrument role's full assignment, sealed and
// ready to execute.
type instrumentAgentInput struct {
	Deps      Deps
	Exec      *executor.Executor
	Tx        *statestore.Transaction
	CompCtx   executor.CompositionContext
	Contract  contract.InstrumentContract
	TraceID   string
	RotationIndex int

	// DrumSectionHashes maps section name -> the drum instrument's own
	// per-section ContractHash, so a bass section child can wait on the
	// right signal key. Empty/nil when this agent IS the drum role.
	DrumSectionHashes map[string]string
	DrumInstrument    string

	// AllowRefinement gates the optional expressive refinement pass
	//, decided once up front by the
	// coordinator from the user's prompt.
	AllowRefinement bool
}

// instrumentAgentResult rolls an instrument's work back up to the
// coordinator: the hashes it produced (for the drum role, these feed
// DrumSectionHashes for every other instrument) and aggregate counts for
// the final summary.
type instrumentAgentResult struct {
	InstrumentName   string
	TrackID          string
	ToolCallCount    int
	NoteCount        int
	SectionHashes    map[string]string // section name -> SectionContract.ContractHash
	ExecutionHashes  map[string]string // section name -> execution hash
	Events           []eventstream.Event
	Err              error
}

// runInstrumentAgent drives one instrument role's turn loop: ensure its
// track exists, then for each section, ask the model for a region-plus-
// generate pair of tool calls and dispatch them, folding the section-child
// pipeline around the generate step.
func runInstrumentAgent(ctx context.Context, in instrumentAgentInput) instrumentAgentResult {
	deps := in.Deps.withDefaults()
	result := instrumentAgentResult{
		InstrumentName:  in.Contract.InstrumentName,
		SectionHashes:   make(map[string]string),
		ExecutionHashes: make(map[string]string),
	}

	trackID, trackEvents, err := ensureTrack(in)
	result.Events = append(result.Events, trackEvents...)
	if err != nil {
		result.Err = fmt.Errorf("ensure track for %s: %w", in.Contract.InstrumentName, err)
		return result
	}
	result.TrackID = trackID

	systemPrompt := buildInstrumentSystemPrompt(in.Contract)

	for _, section := range in.Contract.Sections {
		sc := contract.SectionContract{
			Section:        section,
			TrackID:        trackID,
			InstrumentName: in.Contract.InstrumentName,
			Role:           in.Contract.Role,
			Style:          in.Contract.Style,
			Tempo:          in.Contract.Tempo,
			Key:            in.Contract.Key,
		}
		if err := sc.Seal(in.Contract.ContractHash); err != nil {
			result.Err = fmt.Errorf("seal section contract %s/%s: %w", in.Contract.InstrumentName, section.Name, err)
			return result
		}
		result.SectionHashes[section.Name] = sc.ContractHash

		regionID, noteCount, execHash, sectionEvents, err := runSection(ctx, in, deps, trackID, sc, systemPrompt)
		result.Events = append(result.Events, sectionEvents...)
		result.ToolCallCount++
		if err != nil {
			result.Err = fmt.Errorf("section %s/%s: %w", in.Contract.InstrumentName, section.Name, err)
			continue
		}
		_ = regionID
		result.NoteCount += noteCount
		result.ExecutionHashes[section.Name] = execHash

		if deps.Gen.CircuitOpen() {
			result.Err = fmt.Errorf("instrument %s aborted: generator circuit open", in.Contract.InstrumentName)
			break
		}
	}

	if in.AllowRefinement {
		refineEvents := runRefinementPass(ctx, in, deps, trackID, systemPrompt)
		result.Events = append(result.Events, refineEvents...)
	}

	return result
}

// ensureTrack reuses an existing track if the request named one, otherwise
// creates it with styling metadata attached up front.
func ensureTrack(in instrumentAgentInput) (string, []eventstream.Event, error) {
	if in.Contract.ExistingTrackID != "" {
		return in.Contract.ExistingTrackID, nil, nil
	}

	styling := trackstyle.StylingFor(in.Contract.InstrumentName, in.RotationIndex)
	color := styling.Color
	if override, ok := in.Deps.RolePresets.ColorForRole(in.Contract.Role); ok {
		color = override
	}
	meta := map[string]interface{}{
		"color": color,
		"icon":  styling.Icon,
		"role":  in.Contract.Role,
	}

	tc := executor.ToolCall{
		ID:     "track-" + in.Contract.InstrumentName,
		Name:   executor.ToolAddMidiTrack,
		Params: map[string]interface{}{"trackName": in.Contract.InstrumentName, "metadata": meta},
	}
	outcome := in.Exec.Execute(context.Background(), tc, in.Tx, nil)
	if outcome.Skipped {
		errMsg, _ := outcome.ToolResult["error"].(string)
		return "", outcome.SSEEvents, fmt.Errorf("%s", errMsg)
	}
	trackID, _ := outcome.ToolResult["trackId"].(string)
	return trackID, outcome.SSEEvents, nil
}

// runSection asks the model for this section's region-plus-generate pair
// (with a bounded number of retries), dispatches the tool calls in
// dispatch order, and folds the section-child pipeline around the generate
// call.
func runSection(ctx context.Context, in instrumentAgentInput, deps Deps, trackID string, sc contract.SectionContract, systemPrompt string) (regionID string, noteCount int, execHash string, events []eventstream.Event, err error) {
	delays := config.SectionRetryDelays()
	attempts := deps.Cfg.MaxSectionRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildSectionPrompt(in.Contract, sc.Section)},
		}
		opts := llm.Options{Tools: sectionToolSpecs(in.Contract.Role)}

		content, toolCalls, _, llmErr := runLLMTurn(ctx, deps.LLM, in.Contract.InstrumentName, deps.Events, messages, opts)
		_ = content
		if llmErr != nil {
			err = llmErr
		} else {
			regionID, noteCount, execHash, events, err = dispatchSectionToolCalls(ctx, in, deps, trackID, sc, toolCalls)
		}

		if err == nil {
			return regionID, noteCount, execHash, events, nil
		}
		if attempt < attempts-1 {
			waitOut(ctx, delays[attempt%len(delays)])
		}
	}
	return "", 0, "", events, err
}

// dispatchSectionToolCalls sorts one turn's tool calls into dispatch order
// and executes them: region/mixing calls through the
// shared executor, the generate call through the section-child pipeline so
// it can pick up drum telemetry and publish its own.
func dispatchSectionToolCalls(ctx context.Context, in instrumentAgentInput, deps Deps, trackID string, sc contract.SectionContract, calls []llm.ToolCall) (regionID string, noteCount int, execHash string, events []eventstream.Event, err error) {
	toolCalls := make([]executor.ToolCall, 0, len(calls))
	for _, c := range calls {
		if !executor.IsAllowedForInstrumentAgent(c.Name) {
			continue
		}
		toolCalls = append(toolCalls, toExecutorToolCall(c))
	}
	sorted := executor.SortToolCalls(toolCalls)

	var generateCall *executor.ToolCall
	for i := range sorted {
		tc := sorted[i]
		switch {
		case tc.Name == executor.ToolAddMidiRegion:
			if _, has := tc.Params["trackId"]; !has {
				tc.Params["trackId"] = trackID
			}
			outcome := in.Exec.Execute(ctx, tc, in.Tx, nil)
			events = append(events, outcome.SSEEvents...)
			if outcome.Skipped {
				errMsg, _ := outcome.ToolResult["error"].(string)
				return "", 0, "", events, fmt.Errorf("%s", errMsg)
			}
			regionID, _ = outcome.ToolResult["regionId"].(string)
		case executor.IsGeneratorTool(tc.Name):
			generateCall = &sorted[i]
		case executor.IsAllowedForInstrumentAgent(tc.Name):
			outcome := in.Exec.Execute(ctx, tc, in.Tx, nil)
			events = append(events, outcome.SSEEvents...)
		}
	}

	if generateCall == nil {
		return regionID, 0, "", events, fmt.Errorf("no generate tool call for section %s", sc.Section.Name)
	}
	if regionID == "" {
		return "", 0, "", events, fmt.Errorf("no region created before generate for section %s", sc.Section.Name)
	}

	compCtx := in.CompCtx
	if bars, ok := generateCall.Params["bars"].(float64); ok && bars > 0 {
		compCtx.Bars = int(bars)
	}

	childResult := runSectionChild(ctx, sectionChildInput{
		Deps:            in.Deps,
		Tx:              in.Tx,
		Section:         sc,
		RegionID:        regionID,
		CompCtx:         compCtx,
		TraceID:         in.TraceID,
		IsDrumRole:      in.Contract.Role == "drums",
		DrumInstrument:  in.DrumInstrument,
		DrumSectionHash: in.DrumSectionHashes[sc.Section.Name],
	})
	events = append(events, childResult.Events...)
	if childResult.Err != nil {
		return regionID, 0, "", events, childResult.Err
	}
	return regionID, childResult.NoteCount, childResult.ExecutionHash, events, nil
}

// runRefinementPass optionally asks the model for a small number of
// add_midi_cc/add_pitch_bend calls once all sections are generated
func runRefinementPass(ctx context.Context, in instrumentAgentInput, deps Deps, trackID, systemPrompt string) []eventstream.Event {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: "Add any expressive MIDI CC or pitch bend automation this part needs. If none is needed, call no tools."},
	}
	opts := llm.Options{
		Tools: []llm.ToolSpec{
			{Name: executor.ToolAddMidiCC},
			{Name: executor.ToolAddPitchBend},
		},
	}
	_, toolCalls, _, err := runLLMTurn(ctx, deps.LLM, in.Contract.InstrumentName, deps.Events, messages, opts)
	if err != nil {
		return nil
	}
	var events []eventstream.Event
	for _, c := range toolCalls {
		if c.Name != executor.ToolAddMidiCC && c.Name != executor.ToolAddPitchBend {
			continue
		}
		tc := toExecutorToolCall(c)
		outcome := in.Exec.Execute(ctx, tc, in.Tx, nil)
		events = append(events, outcome.SSEEvents...)
	}
	return events
}

func toExecutorToolCall(c llm.ToolCall) executor.ToolCall {
	params := map[string]interface{}{}
	if c.Arguments != "" {
		_ = json.Unmarshal([]byte(c.Arguments), &params)
	}
	return executor.ToolCall{ID: c.ID, Name: c.Name, Params: params}
}

func buildInstrumentSystemPrompt(ic contract.InstrumentContract) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the %s instrument agent for a %s composition at %d BPM in %s.\n", ic.InstrumentName, ic.Style, ic.Tempo, ic.Key)
	if ic.GMGuidance != "" {
		b.WriteString(ic.GMGuidance)
		b.WriteString("\n")
	} else if g := gmguidance.GuidanceText(ic.Role); g != "" {
		b.WriteString(g)
		b.WriteString("\n")
	}
	b.WriteString("Create one MIDI region per section and generate notes into it. Stay within your assigned track.")
	return b.String()
}

func buildSectionPrompt(ic contract.InstrumentContract, section contract.SectionSpec) string {
	return fmt.Sprintf(
		"Section %q (bars %d, starting at beat %.2f, duration %.2f beats). Character: %s. Role brief: %s.",
		section.Name, section.Bars, section.StartBeat, section.DurationBeats, section.Character, section.RoleBrief,
	)
}

func sectionToolSpecs(role string) []llm.ToolSpec {
	generateName := executor.ToolGenerateMidi
	switch role {
	case "drums":
		generateName = executor.ToolGenerateDrums
	case "bass":
		generateName = executor.ToolGenerateBass
	case "melody":
		generateName = executor.ToolGenerateMelody
	case "chords":
		generateName = executor.ToolGenerateChords
	}
	return []llm.ToolSpec{
		{Name: executor.ToolAddMidiRegion},
		{Name: generateName},
	}
}
