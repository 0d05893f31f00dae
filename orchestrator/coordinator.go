package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stori-audio/maestro-agents/contract"
	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/executor"
	"github.com/stori-audio/maestro-agents/gmguidance"
	"github.com/stori-audio/maestro-agents/llm"
	"github.com/stori-audio/maestro-agents/statestore"
	"github.com/stori-audio/maestro-agents/trackstyle"
)

// Coordinator is the L1 of the three-level hierarchy: it seals the
// contract lineage for one composition request, runs the drum instrument
// agent to completion before fanning the rest out in parallel, and
// finishes with a single sequential mixing pass.
type Coordinator struct {
	deps Deps
}

// NewCoordinator builds a Coordinator over deps, filling in any
// unconfigured collaborator with its no-op/default form.
func NewCoordinator(deps Deps) *Coordinator {
	return &Coordinator{deps: deps.withDefaults()}
}

// Run executes all three phases of req and returns the aggregate result
func (co *Coordinator) Run(ctx context.Context, req CompositionRequest) Result {
	deps := co.deps
	start := time.Now()

	tx, err := deps.Store.BeginTransaction("composition:" + req.CompositionID)
	if err != nil {
		return Result{Success: false, TraceID: req.TraceID}
	}

	compContract, instrumentContracts, err := co.sealContracts(req)
	if err != nil {
		_ = deps.Store.Rollback(tx)
		deps.Events.Emit(eventstream.New(eventstream.TypeComplete, map[string]interface{}{"success": false, "error": err.Error()}))
		return Result{Success: false, TraceID: req.TraceID}
	}

	steps := planStepsFor(instrumentContracts)
	emitPlan(deps.Events, req.CompositionID, steps)
	emitPreflight(deps.Events, steps)
	tracker := newPlanTracker(deps.Events, steps)

	// Phase 1: deterministic tempo/key setup, applied directly against the
	// shared transaction before any instrument agent starts.
	_ = deps.Store.SetTempo(req.Tempo, tx)
	_ = deps.Store.SetKey(req.Key, tx)
	deps.Events.Emit(eventstream.New(eventstream.TypeStatus, map[string]interface{}{"phase": "setup_complete"}).WithPhase(eventstream.PhaseSetup))

	compCtx := executor.CompositionContext{
		Style: req.Style, Tempo: req.Tempo, Bars: req.Bars, Key: req.Key,
		CompositionID: req.CompositionID, QualityPreset: req.QualityPreset,
	}
	allowRefinement := scanForExpressiveness(req.Prompt)

	results, toolCalls, noteCount := co.runInstrumentsPhase(ctx, deps, tx, compContract, instrumentContracts, compCtx, req.TraceID, allowRefinement, tracker)

	// Phase 3: sequential single-call mixing pass.
	tracker.transition("mixing", "active")
	mixEvents, mixErr := co.runMixingPhase(ctx, deps, tx, req, instrumentContracts)
	deps.Events.EmitAll(mixEvents)
	toolCalls += countMixingCalls(mixEvents)
	if mixErr != nil {
		tracker.transition("mixing", "failed")
	} else {
		tracker.transition("mixing", "completed")
	}

	regionsCreated := countRegionsCreated(results)

	if err := deps.Store.Commit(tx); err != nil {
		deps.Events.Emit(eventstream.New(eventstream.TypeComplete, map[string]interface{}{"success": false, "error": err.Error()}))
		return Result{Success: false, TraceID: req.TraceID}
	}

	tracker.skipRemainingPending()

	summary := deps.Store.Summarize()
	// A composition with no regions at all trivially succeeds (nothing was
	// asked of it), but one that created regions must have produced at
	// least one note.
	success := noteCount > 0 || regionsCreated == 0

	deps.Events.Emit(eventstream.New(eventstream.TypeSummary, map[string]interface{}{
		"trackCount": summary.TrackCount, "regionCount": summary.RegionCount,
		"noteCount": summary.NoteCount, "effectCount": summary.EffectCount,
	}))
	deps.Events.Emit(eventstream.New(eventstream.TypeSummaryFinal, map[string]interface{}{
		"trackNames": summary.TrackNames,
	}))
	deps.Events.Emit(eventstream.New(eventstream.TypeComplete, map[string]interface{}{
		"success": success, "toolCalls": toolCalls, "stateVersion": deps.Store.Version(),
	}))
	deps.Events.Close()

	deps.Tracer.RecordMetric(ctx, "maestro_compositions_total", 1, map[string]string{
		"success": fmt.Sprint(success),
	})
	deps.Tracer.RecordMetric(ctx, "maestro_composition_duration_seconds", time.Since(start).Seconds(), nil)

	return Result{
		Success:      success,
		ToolCalls:    toolCalls,
		StateVersion: deps.Store.Version(),
		TraceID:      req.TraceID,
		Summary:      summary,
	}
}

// sealContracts builds and seals the composition's lineage root and one
// InstrumentContract per requested instrument, sharing the same sealed
// SectionSpec slice across all of them.
func (co *Coordinator) sealContracts(req CompositionRequest) (contract.CompositionContract, []contract.InstrumentContract, error) {
	sections := make([]contract.SectionSpec, len(req.Sections))
	for i, s := range req.Sections {
		spec := contract.SectionSpec{
			SectionID:     uuid.NewString(),
			Name:          s.Name,
			Index:         i,
			StartBeat:     s.StartBeat,
			DurationBeats: s.DurationBeats,
			Bars:          s.Bars,
			Character:     s.Character,
			RoleBrief:     s.RoleBrief,
		}
		if err := spec.Seal(); err != nil {
			return contract.CompositionContract{}, nil, fmt.Errorf("seal section %q: %w", s.Name, err)
		}
		sections[i] = spec
	}

	comp := contract.CompositionContract{
		CompositionID: req.CompositionID, Sections: sections,
		Style: req.Style, Tempo: req.Tempo, Key: req.Key,
	}
	if err := comp.Seal(); err != nil {
		return contract.CompositionContract{}, nil, fmt.Errorf("seal composition: %w", err)
	}

	names := make([]string, len(req.Instruments))
	for i, inst := range req.Instruments {
		names[i] = inst.Name
	}
	colors := trackstyle.AllocateColors(names)

	instruments := make([]contract.InstrumentContract, len(req.Instruments))
	for i, inst := range req.Instruments {
		assignedColor := colors[inst.Name]
		if override, ok := co.deps.RolePresets.ColorForRole(inst.Role); ok {
			assignedColor = override
		}
		guidance := gmguidance.GuidanceText(inst.Role)
		if program, ok := co.deps.RolePresets.GMProgramForRole(inst.Role); ok {
			guidance = gmguidance.GuidanceForProgram(program)
		}
		ic := contract.InstrumentContract{
			InstrumentName:  inst.Name,
			Role:            inst.Role,
			Style:           req.Style,
			Bars:            req.Bars,
			Tempo:           req.Tempo,
			Key:             req.Key,
			StartBeat:       inst.StartBeat,
			Sections:        sections,
			ExistingTrackID: inst.ExistingTrackID,
			AssignedColor:   assignedColor,
			GMGuidance:      guidance,
		}
		if err := ic.Seal(comp.ContractHash); err != nil {
			return contract.CompositionContract{}, nil, fmt.Errorf("seal instrument %q: %w", inst.Name, err)
		}
		instruments[i] = ic
	}

	return comp, instruments, nil
}

// runInstrumentsPhase runs the drum instrument to completion first (so its
// per-section contract hashes are available for every bass section to wait
// on), then fans the remaining instruments out in parallel over the same
// shared transaction.
func (co *Coordinator) runInstrumentsPhase(
	ctx context.Context,
	deps Deps,
	tx *statestore.Transaction,
	comp contract.CompositionContract,
	instruments []contract.InstrumentContract,
	compCtx executor.CompositionContext,
	traceID string,
	allowRefinement bool,
	tracker *planTracker,
) (results []instrumentAgentResult, toolCalls, noteCount int) {
	var drum *contract.InstrumentContract
	var rest []contract.InstrumentContract
	for i := range instruments {
		if instruments[i].Role == "drums" && drum == nil {
			drum = &instruments[i]
			continue
		}
		rest = append(rest, instruments[i])
	}

	drumSectionHashes := map[string]string{}
	var drumName string

	if drum != nil {
		tracker.transition(drum.InstrumentName, "active")
		res := co.runOneInstrument(ctx, deps, tx, *drum, compCtx, traceID, 0, nil, "", allowRefinement)
		results = append(results, res)
		toolCalls += res.ToolCallCount
		noteCount += res.NoteCount
		drumSectionHashes = res.SectionHashes
		drumName = drum.InstrumentName
		deps.Events.EmitAll(res.Events)
		finishInstrument(deps.Events, tracker, *drum, res)
	}

	if len(rest) > 0 {
		var mu sync.Mutex
		var wg sync.WaitGroup
		wg.Add(len(rest))
		for i, inst := range rest {
			go func(idx int, ic contract.InstrumentContract) {
				defer wg.Done()
				tracker.transition(ic.InstrumentName, "active")
				defer func() {
					if r := recover(); r != nil {
						res := instrumentAgentResult{
							InstrumentName: ic.InstrumentName,
							Err:            fmt.Errorf("instrument %s panicked: %v", ic.InstrumentName, r),
						}
						mu.Lock()
						results = append(results, res)
						mu.Unlock()
						finishInstrument(deps.Events, tracker, ic, res)
					}
				}()
				res := co.runOneInstrument(ctx, deps, tx, ic, compCtx, traceID, idx+1, drumSectionHashes, drumName, allowRefinement)
				mu.Lock()
				results = append(results, res)
				toolCalls += res.ToolCallCount
				noteCount += res.NoteCount
				deps.Events.EmitAll(res.Events)
				mu.Unlock()
				finishInstrument(deps.Events, tracker, ic, res)
			}(i, inst)
		}
		wg.Wait()
	}

	return results, toolCalls, noteCount
}

// finishInstrument converts one instrument agent's outcome into its
// planStepUpdate transition and agentComplete event. An instrument counts as
// successful only if every expected section produced a generate-stage
// execution hash and there was at least one section to begin with.
func finishInstrument(events *eventstream.Multiplexer, tracker *planTracker, ic contract.InstrumentContract, res instrumentAgentResult) {
	success := res.Err == nil && len(ic.Sections) > 0 && len(res.ExecutionHashes) >= len(ic.Sections)
	if success {
		tracker.transition(ic.InstrumentName, "completed")
	} else {
		tracker.transition(ic.InstrumentName, "failed")
	}
	events.Emit(eventstream.New(eventstream.TypeAgentComplete, map[string]interface{}{
		"agentId": ic.InstrumentName, "success": success,
	}).WithAgent(ic.InstrumentName))
}

func (co *Coordinator) runOneInstrument(
	ctx context.Context,
	deps Deps,
	tx *statestore.Transaction,
	ic contract.InstrumentContract,
	compCtx executor.CompositionContext,
	traceID string,
	rotationIndex int,
	drumSectionHashes map[string]string,
	drumName string,
	allowRefinement bool,
) instrumentAgentResult {
	exec := deps.newExecutor()
	return runInstrumentAgent(ctx, instrumentAgentInput{
		Deps:              deps,
		Exec:              exec,
		Tx:                tx,
		CompCtx:           compCtx,
		Contract:          ic,
		TraceID:           traceID,
		RotationIndex:     rotationIndex,
		DrumSectionHashes: drumSectionHashes,
		DrumInstrument:    drumName,
		AllowRefinement:   allowRefinement,
	})
}

// runMixingPhase asks the model once for a restricted set of mixing/sound-
// design tool calls over the finished project and dispatches them
// sequentially.
func (co *Coordinator) runMixingPhase(ctx context.Context, deps Deps, tx *statestore.Transaction, req CompositionRequest, instruments []contract.InstrumentContract) ([]eventstream.Event, error) {
	names := make([]string, len(instruments))
	for i, ic := range instruments {
		names[i] = ic.InstrumentName
	}
	summary := deps.Store.Summarize()

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: "You are the mixing engineer for this composition. Balance levels, pan, and effects across tracks: " + fmt.Sprint(names)},
		{Role: llm.RoleUser, Content: fmt.Sprintf("Project has %d tracks and %d regions with %d notes total. Apply mixing and sound-design moves as needed.", summary.TrackCount, summary.RegionCount, summary.NoteCount)},
	}
	opts := llm.Options{Tools: mixingToolSpecs()}

	resp, err := deps.LLM.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	exec := deps.newExecutor()
	var events []eventstream.Event
	for _, c := range resp.ToolCalls {
		if !isMixingTool(c.Name) {
			continue
		}
		tc := toExecutorToolCall(c)
		outcome := exec.Execute(ctx, tc, tx, nil)
		events = append(events, outcome.SSEEvents...)
	}
	return events, nil
}

func mixingToolSpecs() []llm.ToolSpec {
	names := []string{
		executor.ToolAddInsertEffect, executor.ToolEnsureBus, executor.ToolAddSend,
		executor.ToolSetTrackVolume, executor.ToolSetTrackPan, executor.ToolMuteTrack,
		executor.ToolSoloTrack, executor.ToolSetTrackColor, executor.ToolSetTrackIcon,
		executor.ToolSetTrackName, executor.ToolAddAutomation,
	}
	specs := make([]llm.ToolSpec, len(names))
	for i, n := range names {
		specs[i] = llm.ToolSpec{Name: n}
	}
	return specs
}

func isMixingTool(name string) bool {
	for _, spec := range mixingToolSpecs() {
		if spec.Name == name {
			return true
		}
	}
	return false
}

func countMixingCalls(events []eventstream.Event) int {
	n := 0
	for _, e := range events {
		if e.Type == eventstream.TypeToolCall {
			n++
		}
	}
	return n
}

func countRegionsCreated(results []instrumentAgentResult) int {
	n := 0
	for _, r := range results {
		n += len(r.SectionHashes)
	}
	return n
}

// planStep is one externally visible unit of progress: one per requested
// instrument, plus a trailing one for the sequential mixing pass.
type planStep struct {
	StepID     string
	AgentID    string
	AgentRole  string
	Label      string
	Phase      eventstream.Phase
	TrackColor string
}

// planStepsFor builds the fixed list of steps a composition run will
// attempt: one per instrument contract, in request order, followed by the
// mixing step. This list is emitted once as `plan` and underlies every
// later `preflight`/`planStepUpdate`.
func planStepsFor(instruments []contract.InstrumentContract) []planStep {
	steps := make([]planStep, 0, len(instruments)+1)
	for _, ic := range instruments {
		steps = append(steps, planStep{
			StepID: ic.InstrumentName, AgentID: ic.InstrumentName, AgentRole: ic.Role,
			Label: ic.InstrumentName, Phase: eventstream.PhaseComposition, TrackColor: ic.AssignedColor,
		})
	}
	return append(steps, planStep{
		StepID: "mixing", AgentID: "mixing", AgentRole: "mixing",
		Label: "Mixing", Phase: eventstream.PhaseMixing,
	})
}

// emitPlan sends the one up-front `plan` event listing every predicted
// step, each starting in the "pending" status.
func emitPlan(events *eventstream.Multiplexer, planID string, steps []planStep) {
	stepPayloads := make([]map[string]interface{}, len(steps))
	for i, s := range steps {
		stepPayloads[i] = map[string]interface{}{
			"stepId": s.StepID, "label": s.Label, "status": "pending", "phase": s.Phase,
		}
	}
	events.Emit(eventstream.New(eventstream.TypePlan, map[string]interface{}{
		"planId": planID, "title": "Composition plan", "steps": stepPayloads,
	}))
}

// emitPreflight sends one `preflight` event per expected plan step so the
// client can pre-allocate UI rows before any agent actually starts.
func emitPreflight(events *eventstream.Multiplexer, steps []planStep) {
	for _, s := range steps {
		events.Emit(eventstream.New(eventstream.TypePreflight, map[string]interface{}{
			"stepId": s.StepID, "agentId": s.AgentID, "agentRole": s.AgentRole,
			"label": s.Label, "trackColor": s.TrackColor,
		}).WithAgent(s.AgentID))
	}
}

// planTracker tracks each step's current status so that any step still
// pending once the run finishes can be emitted as skipped. Safe for
// concurrent use by the parallel instrument goroutines.
type planTracker struct {
	mu     sync.Mutex
	steps  map[string]planStep
	status map[string]string
	events *eventstream.Multiplexer
}

func newPlanTracker(events *eventstream.Multiplexer, steps []planStep) *planTracker {
	byID := make(map[string]planStep, len(steps))
	status := make(map[string]string, len(steps))
	for _, s := range steps {
		byID[s.StepID] = s
		status[s.StepID] = "pending"
	}
	return &planTracker{steps: byID, status: status, events: events}
}

// transition moves stepID to status and emits the corresponding
// planStepUpdate. Unknown step ids are a no-op.
func (t *planTracker) transition(stepID, status string) {
	t.mu.Lock()
	step, ok := t.steps[stepID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.status[stepID] = status
	t.mu.Unlock()
	t.events.Emit(eventstream.New(eventstream.TypePlanStepUpdate, map[string]interface{}{
		"stepId": stepID, "status": status, "phase": step.Phase,
	}).WithAgent(stepID))
}

// skipRemainingPending marks every step that never left "pending" as
// skipped once the run has finished.
func (t *planTracker) skipRemainingPending() {
	t.mu.Lock()
	var toSkip []string
	for id, status := range t.status {
		if status == "pending" {
			toSkip = append(toSkip, id)
			t.status[id] = "skipped"
		}
	}
	t.mu.Unlock()
	for _, id := range toSkip {
		step := t.steps[id]
		t.events.Emit(eventstream.New(eventstream.TypePlanStepUpdate, map[string]interface{}{
			"stepId": id, "status": "skipped", "phase": step.Phase,
		}).WithAgent(id))
	}
}

// scanForExpressiveness decides whether the user's prompt unlocks the
// section child's optional expressive refinement pass.
func scanForExpressiveness(prompt string) bool {
	keywords := []string{"expressive", "dynamics", "humanize", "groove", "swing", "automation", "pitch bend", "vibrato"}
	lower := strings.ToLower(prompt)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
