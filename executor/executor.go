package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/generator"
	"github.com/stori-audio/maestro-agents/logger"
	"github.com/stori-audio/maestro-agents/statestore"
)

// Backfill defaults for missing required subfields.
const (
	defaultPitch         = 60
	defaultVelocity      = 100
	defaultStartBeat     = 0.0
	defaultDurationBeats = 1.0
	defaultCCBeat        = 0.0
	defaultCCValue       = 0
)

// maxConsecutiveRegionFailures is the per-region add_notes failure count
// after which further add_notes to that region fail fast.
const maxConsecutiveRegionFailures = 4

// ToolCall is one LLM-issued tool invocation within a batch.
type ToolCall struct {
	ID     string
	Name   string
	Params map[string]interface{}
}

// ToolCallOutcome is the executor's result for one applied tool call
type ToolCallOutcome struct {
	EnrichedParams map[string]interface{}
	ToolResult     map[string]interface{}
	SSEEvents      []eventstream.Event
	MsgCall        map[string]interface{}
	MsgResult      map[string]interface{}
	Skipped        bool
}

// CompositionContext carries the style/tempo/bars/key defaults a generator
// tool call falls back to when its own params omit them.
type CompositionContext struct {
	Style         string
	Tempo         int
	Bars          int
	Key           string
	CompositionID string
	QualityPreset string
}

// Executor applies tool calls against a statestore.StateStore, routing
// generator tools through a generator.Client.
type Executor struct {
	store *statestore.StateStore
	gen   *generator.Client
	log   logger.Logger

	mu                    sync.Mutex
	regionFailureCounts   map[string]int
	priorResultsInBatch   []map[string]interface{}
}

// New creates an Executor over store, optionally routing generator tools
// through gen (gen may be nil if no CompositionContext will ever be
// supplied).
func New(store *statestore.StateStore, gen *generator.Client, log logger.Logger) *Executor {
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &Executor{
		store:               store,
		gen:                 gen,
		log:                 log,
		regionFailureCounts: make(map[string]int),
	}
}

// varRefPattern matches "$N.field" variable references into a prior tool
// call's result within the same batch.
var varRefPattern = regexp.MustCompile(`^\$(\d+)\.(.+)$`)

// BeginBatch resets the prior-results cursor for a new tool-call batch
func (e *Executor) BeginBatch() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.priorResultsInBatch = nil
}

// resolveVarRefs replaces any "$N.field" argument values with the named
// field out of the Nth prior tool call's result in this batch.
func (e *Executor) resolveVarRefs(params map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		s, ok := v.(string)
		if !ok {
			out[k] = v
			continue
		}
		m := varRefPattern.FindStringSubmatch(s)
		if m == nil {
			out[k] = v
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= len(e.priorResultsInBatch) {
			out[k] = v
			continue
		}
		if resolved, ok := e.priorResultsInBatch[idx][m[2]]; ok {
			out[k] = resolved
		} else {
			out[k] = v
		}
	}
	return out
}

// Execute applies one tool call. tx is the ambient
// transaction every store mutation happens within; ctx bounds generator
// calls made from this tool.
func (e *Executor) Execute(ctx context.Context, tc ToolCall, tx *statestore.Transaction, compCtx *CompositionContext) ToolCallOutcome {
	params := e.resolveVarRefs(tc.Params)
	params = e.enrichWithTrackContext(params, tc.Name)

	var outcome ToolCallOutcome
	switch {
	case IsGeneratorTool(tc.Name) && compCtx != nil:
		outcome = e.executeGenerator(ctx, tc, params, tx, compCtx)
	case tc.Name == ToolAddMidiTrack:
		outcome = e.executeAddMidiTrack(tc, params, tx)
	case tc.Name == ToolAddMidiRegion:
		outcome = e.executeAddMidiRegion(tc, params, tx)
	case tc.Name == ToolAddNotes:
		outcome = e.executeAddNotes(tc, params, tx)
	case tc.Name == ToolSetTempo:
		outcome = e.executeSetTempo(tc, params, tx)
	case tc.Name == ToolSetKey:
		outcome = e.executeSetKey(tc, params, tx)
	case tc.Name == ToolAddInsertEffect:
		outcome = e.executeAddInsertEffect(tc, params, tx)
	case tc.Name == ToolEnsureBus:
		outcome = e.executeEnsureBus(tc, params, tx)
	case tc.Name == ToolAddMidiCC:
		outcome = e.executeAddMidiCC(tc, params, tx)
	case tc.Name == ToolAddPitchBend:
		outcome = e.executeAddPitchBend(tc, params, tx)
	case tc.Name == ToolAddSend:
		outcome = e.executeAddSend(tc, params, tx)
	case tc.Name == ToolSetTrackVolume:
		outcome = e.executeSetTrackVolume(tc, params, tx)
	case tc.Name == ToolSetTrackPan:
		outcome = e.executeSetTrackPan(tc, params, tx)
	case tc.Name == ToolMuteTrack:
		outcome = e.executeMuteTrack(tc, params, tx)
	case tc.Name == ToolSoloTrack:
		outcome = e.executeSoloTrack(tc, params, tx)
	case tc.Name == ToolSetTrackColor:
		outcome = e.executeSetTrackColor(tc, params, tx)
	case tc.Name == ToolSetTrackIcon:
		outcome = e.executeSetTrackIcon(tc, params, tx)
	case tc.Name == ToolSetTrackName:
		outcome = e.executeSetTrackName(tc, params, tx)
	case tc.Name == ToolAddAutomation:
		outcome = e.executeAddAutomation(tc, params, tx)
	default:
		outcome = e.unknownTool(tc, params)
	}

	e.mu.Lock()
	e.priorResultsInBatch = append(e.priorResultsInBatch, outcome.ToolResult)
	e.mu.Unlock()

	return outcome
}

// enrichWithTrackContext resolves trackName -> trackId via the registry
// when no trackId is given. A regionName is not resolved: region-targeted
// tools need an explicit regionId.
func (e *Executor) enrichWithTrackContext(params map[string]interface{}, toolName string) map[string]interface{} {
	out := params
	if name, ok := out["trackName"].(string); ok && name != "" {
		if _, hasID := out["trackId"]; !hasID {
			if id, found := e.store.ResolveTrack(name, false); found {
				out["trackId"] = id
			}
		}
	}
	return out
}

func toolStartEvent(tc ToolCall, label string) eventstream.Event {
	return eventstream.New(eventstream.TypeToolStart, map[string]interface{}{"name": tc.Name}).
		WithPhase(eventstream.PhaseForTool(tc.Name)).WithLabel(label)
}

func toolCallEvent(tc ToolCall, label string, params map[string]interface{}) eventstream.Event {
	return eventstream.New(eventstream.TypeToolCall, map[string]interface{}{"name": tc.Name, "params": params}).
		WithPhase(eventstream.PhaseForTool(tc.Name)).WithLabel(label)
}

func toolErrorEvent(tc ToolCall, errMsg string) eventstream.Event {
	return eventstream.New(eventstream.TypeToolError, map[string]interface{}{"name": tc.Name, "error": errMsg}).
		WithPhase(eventstream.PhaseForTool(tc.Name))
}

func humanLabel(toolName string) string {
	switch toolName {
	case ToolAddMidiTrack:
		return "Adding track"
	case ToolAddMidiRegion:
		return "Adding region"
	case ToolAddNotes:
		return "Adding notes"
	case ToolSetTempo:
		return "Setting tempo"
	case ToolSetKey:
		return "Setting key"
	case ToolAddInsertEffect:
		return "Adding effect"
	case ToolEnsureBus:
		return "Ensuring bus"
	case ToolAddMidiCC:
		return "Adding MIDI CC"
	case ToolAddPitchBend:
		return "Adding pitch bend"
	case ToolAddSend:
		return "Adding send"
	case ToolSetTrackVolume:
		return "Setting track volume"
	case ToolSetTrackPan:
		return "Setting track pan"
	case ToolMuteTrack:
		return "Muting track"
	case ToolSoloTrack:
		return "Soloing track"
	case ToolSetTrackColor:
		return "Setting track color"
	case ToolSetTrackIcon:
		return "Setting track icon"
	case ToolSetTrackName:
		return "Renaming track"
	case ToolAddAutomation:
		return "Adding automation"
	default:
		if IsGeneratorTool(toolName) {
			return "Generating " + RoleForGeneratorTool(toolName)
		}
		return toolName
	}
}

func messages(tc ToolCall, params, result map[string]interface{}) (call, res map[string]interface{}) {
	argsJSON, _ := json.Marshal(params)
	resultJSON, _ := json.Marshal(result)
	call = map[string]interface{}{
		"role": "assistant",
		"tool_calls": []map[string]interface{}{{
			"id":   tc.ID,
			"type": "function",
			"function": map[string]interface{}{
				"name":      tc.Name,
				"arguments": string(argsJSON),
			},
		}},
	}
	res = map[string]interface{}{
		"role":         "tool",
		"tool_call_id": tc.ID,
		"content":      string(resultJSON),
	}
	return call, res
}

func (e *Executor) unknownTool(tc ToolCall, params map[string]interface{}) ToolCallOutcome {
	errMsg := fmt.Sprintf("unknown or disallowed tool: %s", tc.Name)
	result := map[string]interface{}{"error": errMsg}
	call, res := messages(tc, params, result)
	return ToolCallOutcome{
		EnrichedParams: params,
		ToolResult:     result,
		SSEEvents:      []eventstream.Event{toolErrorEvent(tc, errMsg)},
		MsgCall:        call,
		MsgResult:      res,
		Skipped:        true,
	}
}

func (e *Executor) executeAddMidiTrack(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	name, _ := params["trackName"].(string)
	if name == "" {
		errMsg := "stori_add_midi_track requires trackName"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	var meta map[string]interface{}
	if m, ok := params["metadata"].(map[string]interface{}); ok {
		meta = m
	}

	existingID, exact := e.store.ResolveTrack(name, true)
	trackID := existingID
	if !exact {
		id, err := e.store.CreateTrack(name, "", meta, tx)
		if err != nil {
			errMsg := err.Error()
			result := map[string]interface{}{"error": errMsg}
			call, res := messages(tc, params, result)
			events = append(events, toolErrorEvent(tc, errMsg))
			return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
		}
		trackID = id
	}

	params["trackId"] = trackID
	result := map[string]interface{}{"trackId": trackID, "trackName": name}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddMidiRegion(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	trackID, _ := params["trackId"].(string)
	if trackID == "" {
		errMsg := "stori_add_midi_region requires trackId (or resolvable trackName)"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	name, _ := params["regionName"].(string)
	start := asFloatParam(params["startBeat"], defaultStartBeat)
	duration := asFloatParam(params["durationBeats"], defaultDurationBeats)

	regionID, created, err := e.store.CreateRegion(name, trackID, start, duration, "", tx)
	if err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	params["regionId"] = regionID
	result := map[string]interface{}{"regionId": regionID, "created": created}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddNotes(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	regionID, _ := params["regionId"].(string)
	if regionID == "" {
		errMsg := "stori_add_notes requires regionId"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	e.mu.Lock()
	failures := e.regionFailureCounts[regionID]
	e.mu.Unlock()
	if failures >= maxConsecutiveRegionFailures {
		errMsg := fmt.Sprintf("region %s has failed add_notes %d times in a row; further attempts are blocked for this region", regionID, failures)
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	notes, decodeErr := decodeNotes(params["notes"])
	if decodeErr != nil {
		errMsg := decodeErr.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	err := e.store.AddNotes(regionID, notes, tx)

	e.mu.Lock()
	if err != nil {
		e.regionFailureCounts[regionID]++
	} else {
		e.regionFailureCounts[regionID] = 0
	}
	e.mu.Unlock()

	if err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	result := map[string]interface{}{"count": len(notes)}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeSetTempo(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	tempo := int(asFloatParam(params["tempo"], 120))
	_ = e.store.SetTempo(tempo, tx)
	result := map[string]interface{}{"tempo": tempo}
	call, res := messages(tc, params, result)
	events := []eventstream.Event{toolStartEvent(tc, label), toolCallEvent(tc, label, params)}
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeSetKey(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	key, _ := params["key"].(string)
	_ = e.store.SetKey(key, tx)
	result := map[string]interface{}{"key": key}
	call, res := messages(tc, params, result)
	events := []eventstream.Event{toolStartEvent(tc, label), toolCallEvent(tc, label, params)}
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddInsertEffect(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	trackID, _ := params["trackId"].(string)
	effectType, _ := params["effectType"].(string)
	err := e.store.AddEffect(trackID, effectType, tx)
	events := []eventstream.Event{toolStartEvent(tc, label)}
	if err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	result := map[string]interface{}{"trackId": trackID, "effectType": effectType}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeEnsureBus(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	name, _ := params["busName"].(string)
	busID, err := e.store.GetOrCreateBus(name, tx)
	events := []eventstream.Event{toolStartEvent(tc, label)}
	if err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	result := map[string]interface{}{"busId": busID}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddMidiCC(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	regionID, _ := params["regionId"].(string)
	if regionID == "" {
		errMsg := "stori_add_midi_cc requires regionId"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	cc := int(asFloatParam(params["cc"], 0))
	ccEvents, decodeErr := decodeCCEvents(cc, params["events"])
	if decodeErr != nil {
		errMsg := decodeErr.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	if err := e.store.AddCC(regionID, ccEvents, tx); err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	result := map[string]interface{}{"count": len(ccEvents)}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddPitchBend(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	regionID, _ := params["regionId"].(string)
	if regionID == "" {
		errMsg := "stori_add_pitch_bend requires regionId"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	bends, decodeErr := decodePitchBends(params["events"])
	if decodeErr != nil {
		errMsg := decodeErr.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	if err := e.store.AddPitchBends(regionID, bends, tx); err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	result := map[string]interface{}{"count": len(bends)}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeAddSend(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}

	trackID, _ := params["trackId"].(string)
	busID, _ := params["busId"].(string)
	if busID == "" {
		if busName, _ := params["busName"].(string); busName != "" {
			if id, err := e.store.GetOrCreateBus(busName, tx); err == nil {
				busID = id
			}
		}
	}
	level := asFloatParam(params["level"], 1.0)

	if err := e.store.AddSend(trackID, busID, level, tx); err != nil {
		errMsg := err.Error()
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	result := map[string]interface{}{"trackId": trackID, "busId": busID, "level": level}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

// trackPropertyMutation runs one track-property setter and shapes its
// outcome uniformly.
func (e *Executor) trackPropertyMutation(tc ToolCall, params map[string]interface{}, result map[string]interface{}, err error) ToolCallOutcome {
	label := humanLabel(tc.Name)
	events := []eventstream.Event{toolStartEvent(tc, label)}
	if err != nil {
		errMsg := err.Error()
		errResult := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, errResult)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: errResult, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func (e *Executor) executeSetTrackVolume(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	volume := asFloatParam(params["volume"], 1.0)
	err := e.store.SetTrackVolume(trackID, volume, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "volume": volume}, err)
}

func (e *Executor) executeSetTrackPan(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	pan := asFloatParam(params["pan"], 0)
	err := e.store.SetTrackPan(trackID, pan, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "pan": pan}, err)
}

func (e *Executor) executeMuteTrack(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	muted := asBoolParam(params["muted"], true)
	err := e.store.MuteTrack(trackID, muted, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "muted": muted}, err)
}

func (e *Executor) executeSoloTrack(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	soloed := asBoolParam(params["soloed"], true)
	err := e.store.SoloTrack(trackID, soloed, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "soloed": soloed}, err)
}

func (e *Executor) executeSetTrackColor(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	color, _ := params["color"].(string)
	err := e.store.SetTrackColor(trackID, color, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "color": color}, err)
}

func (e *Executor) executeSetTrackIcon(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	icon, _ := params["icon"].(string)
	err := e.store.SetTrackIcon(trackID, icon, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "icon": icon}, err)
}

func (e *Executor) executeSetTrackName(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	name, _ := params["name"].(string)
	err := e.store.SetTrackName(trackID, name, tx)
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "name": name}, err)
}

func (e *Executor) executeAddAutomation(tc ToolCall, params map[string]interface{}, tx *statestore.Transaction) ToolCallOutcome {
	trackID, _ := params["trackId"].(string)
	parameter, _ := params["parameter"].(string)
	points, err := decodeAutomationPoints(params["points"])
	if err == nil {
		err = e.store.AddAutomation(trackID, parameter, points, tx)
	}
	return e.trackPropertyMutation(tc, params, map[string]interface{}{"trackId": trackID, "parameter": parameter, "count": len(points)}, err)
}

// executeGenerator routes a generator tool call through gen, grounded on tool_execution.py's _execute_agent_generator.
func (e *Executor) executeGenerator(ctx context.Context, tc ToolCall, params map[string]interface{}, tx *statestore.Transaction, compCtx *CompositionContext) ToolCallOutcome {
	label := humanLabel(tc.Name)
	role, _ := params["role"].(string)
	if role == "" {
		role = RoleForGeneratorTool(tc.Name)
	}

	trackID, _ := params["trackId"].(string)
	if trackID == "" {
		trackName, _ := params["trackName"].(string)
		if trackName == "" {
			trackName = strings.Title(role)
		}
		if id, found := e.store.ResolveTrack(trackName, false); found {
			trackID = id
		}
	}

	regionID, _ := params["regionId"].(string)
	if regionID == "" && trackID != "" {
		if id, found := e.store.LatestRegionForTrack(trackID); found {
			regionID = id
		}
	}

	events := []eventstream.Event{toolStartEvent(tc, label)}

	if regionID == "" {
		errMsg := fmt.Sprintf(
			"generator %s: no region found for track %q (role=%s); stori_add_midi_region must be called before %s",
			tc.Name, trackID, role, tc.Name,
		)
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	style := firstNonEmpty(asStringParam(params["style"]), compCtx.Style)
	tempo := firstNonZeroInt(int(asFloatParam(params["tempo"], 0)), compCtx.Tempo, 120)
	bars := firstNonZeroInt(int(asFloatParam(params["bars"], 0)), compCtx.Bars, 4)
	key := firstNonEmpty(asStringParam(params["key"]), compCtx.Key)
	startBeat := asFloatParam(params["startBeat"], 0)

	events = append(events, eventstream.New(eventstream.TypeGeneratorStart, map[string]interface{}{
		"role": role, "style": style, "bars": bars, "startBeat": startBeat,
	}).WithAgent(role))

	if e.gen == nil {
		errMsg := "no generator client configured"
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	genReq := generatorRequestFrom(role, style, tempo, bars, key, compCtx)
	genResult, err := e.gen.Generate(ctx, genReq)
	if err != nil || genResult == nil || !genResult.Success {
		errMsg := "generation failed"
		if genResult != nil && genResult.Error != "" {
			errMsg = genResult.Error
		} else if err != nil {
			errMsg = err.Error()
		}
		result := map[string]interface{}{"error": errMsg}
		call, res := messages(tc, params, result)
		events = append(events, toolErrorEvent(tc, errMsg))
		return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res, Skipped: true}
	}

	if len(genResult.Notes) > 0 {
		_ = e.store.AddNotes(regionID, genResult.Notes, tx)
	}
	if len(genResult.CCEvents) > 0 {
		_ = e.store.AddCC(regionID, genResult.CCEvents, tx)
	}
	if len(genResult.PitchBends) > 0 {
		_ = e.store.AddPitchBends(regionID, genResult.PitchBends, tx)
	}
	if len(genResult.Aftertouch) > 0 {
		_ = e.store.AddAftertouch(regionID, genResult.Aftertouch, tx)
	}

	events = append(events, eventstream.New(eventstream.TypeGeneratorComplete, map[string]interface{}{
		"role":      role,
		"noteCount": len(genResult.Notes),
	}).WithAgent(role))

	params["regionId"] = regionID
	params["trackId"] = trackID
	result := map[string]interface{}{
		"success":    true,
		"noteCount":  len(genResult.Notes),
		"regionId":   regionID,
		"metadata":   genResult.Metadata,
	}
	call, res := messages(tc, params, result)
	events = append(events, toolCallEvent(tc, label, params))
	return ToolCallOutcome{EnrichedParams: params, ToolResult: result, SSEEvents: events, MsgCall: call, MsgResult: res}
}

func generatorRequestFrom(role, style string, tempo, bars int, key string, compCtx *CompositionContext) generator.Request {
	return generator.Request{
		Genre:         style,
		Tempo:         tempo,
		Instruments:   []string{role},
		Bars:          bars,
		Key:           key,
		QualityPreset: firstNonEmpty(compCtx.QualityPreset, "balanced"),
		CompositionID: compCtx.CompositionID,
	}
}

// midiRange validates that an int7 field (pitch, velocity, cc, value) falls
// within the MIDI 7-bit range.
func midiRange(field string, value int) error {
	if value < 0 || value > 127 {
		return ferrors.Wrap("executor.decode", ferrors.KindValidation,
			fmt.Errorf("%w: %s %d is out of MIDI range [0,127]", ferrors.ErrValidation, field, value))
	}
	return nil
}

func decodeNotes(v interface{}) ([]statestore.Note, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]statestore.Note, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		pitch := int(asFloatParam(m["pitch"], defaultPitch))
		if err := midiRange("pitch", pitch); err != nil {
			return nil, err
		}
		velocity := int(asFloatParam(m["velocity"], defaultVelocity))
		if err := midiRange("velocity", velocity); err != nil {
			return nil, err
		}
		out = append(out, statestore.Note{
			Pitch:         pitch,
			StartBeat:     asFloatParam(m["startBeat"], defaultStartBeat),
			DurationBeats: asFloatParam(m["durationBeats"], defaultDurationBeats),
			Velocity:      velocity,
			Channel:       int(asFloatParam(m["channel"], 0)),
		})
	}
	return out, nil
}

func decodeCCEvents(defaultCC int, v interface{}) ([]statestore.ControllerEvent, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]statestore.ControllerEvent, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		cc := int(asFloatParam(m["cc"], float64(defaultCC)))
		if err := midiRange("cc", cc); err != nil {
			return nil, err
		}
		value := int(asFloatParam(m["value"], defaultCCValue))
		if err := midiRange("value", value); err != nil {
			return nil, err
		}
		out = append(out, statestore.ControllerEvent{
			CC:    cc,
			Beat:  asFloatParam(m["beat"], defaultCCBeat),
			Value: value,
		})
	}
	return out, nil
}

// decodePitchBends has no [0,127] bound: pitch bend values are 14-bit and
// may legitimately fall outside the 7-bit MIDI range other controller data
// uses.
func decodePitchBends(v interface{}) ([]statestore.PitchBend, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]statestore.PitchBend, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, statestore.PitchBend{
			Beat:  asFloatParam(m["beat"], defaultCCBeat),
			Value: int(asFloatParam(m["value"], defaultCCValue)),
		})
	}
	return out, nil
}

// decodeAutomationPoints has no [0,127] bound: a mixing automation curve's
// value is parameter-specific (volume, pan, …), not a 7-bit MIDI value.
func decodeAutomationPoints(v interface{}) ([]statestore.AutomationPoint, error) {
	raw, ok := v.([]interface{})
	if !ok {
		return nil, nil
	}
	out := make([]statestore.AutomationPoint, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, statestore.AutomationPoint{
			Beat:  asFloatParam(m["beat"], defaultCCBeat),
			Value: asFloatParam(m["value"], 0),
		})
	}
	return out, nil
}

func asBoolParam(v interface{}, fallback bool) bool {
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}

func asFloatParam(v interface{}, fallback float64) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return fallback
	}
}

func asStringParam(v interface{}) string {
	s, _ := v.(string)
	return s
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZeroInt(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
