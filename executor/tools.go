// Package executor implements the tool executor: it applies
// one tool invocation against the state store, resolving variable
// references and track/region names, routing generator tools through a
// generator.Client, and emitting the outbound SSE-style events and LLM
// conversation messages the caller needs.
package executor

import "sort"

// Tool names this module knows how to execute.
const (
	ToolSetTempo        = "stori_set_tempo"
	ToolSetKey           = "stori_set_key"
	ToolAddMidiTrack     = "stori_add_midi_track"
	ToolAddMidiRegion    = "stori_add_midi_region"
	ToolAddNotes         = "stori_add_notes"
	ToolGenerateMidi     = "stori_generate_midi"
	ToolGenerateDrums    = "stori_generate_drums"
	ToolGenerateBass     = "stori_generate_bass"
	ToolGenerateMelody   = "stori_generate_melody"
	ToolGenerateChords   = "stori_generate_chords"
	ToolAddInsertEffect  = "stori_add_insert_effect"
	ToolEnsureBus        = "stori_ensure_bus"
	ToolAddSend          = "stori_add_send"
	ToolAddMidiCC        = "stori_add_midi_cc"
	ToolAddPitchBend     = "stori_add_pitch_bend"
	ToolAddAutomation    = "stori_add_automation"
	ToolSetTrackVolume   = "stori_set_track_volume"
	ToolSetTrackPan      = "stori_set_track_pan"
	ToolMuteTrack        = "stori_mute_track"
	ToolSoloTrack        = "stori_solo_track"
	ToolSetTrackColor    = "stori_set_track_color"
	ToolSetTrackIcon     = "stori_set_track_icon"
	ToolSetTrackName     = "stori_set_track_name"
)

// generatorToolNames is the set of tools routed through the generator
// client instead of being applied directly.
var generatorToolNames = map[string]string{
	ToolGenerateMidi:   "",
	ToolGenerateDrums:  "drums",
	ToolGenerateBass:   "bass",
	ToolGenerateMelody: "melody",
	ToolGenerateChords: "chords",
}

// instrumentAgentTools is the allow-set an instrument agent's LLM turn may
// call, grounded on constants.py's
// _INSTRUMENT_AGENT_TOOLS.
var instrumentAgentTools = map[string]bool{
	ToolAddMidiTrack:    true,
	ToolAddMidiRegion:   true,
	ToolAddNotes:        true,
	ToolGenerateMidi:    true,
	ToolGenerateDrums:   true,
	ToolGenerateBass:    true,
	ToolGenerateMelody:  true,
	ToolGenerateChords:  true,
	ToolAddInsertEffect: true,
	ToolAddMidiCC:       true,
	ToolAddPitchBend:    true,
	ToolSetTrackIcon:    true,
	ToolSetTrackColor:   true,
}

// IsAllowedForInstrumentAgent reports whether tool is in the instrument
// agent's allow-set.
func IsAllowedForInstrumentAgent(tool string) bool {
	return instrumentAgentTools[tool]
}

// IsGeneratorTool reports whether tool routes through the generator client.
func IsGeneratorTool(tool string) bool {
	_, ok := generatorToolNames[tool]
	return ok
}

// RoleForGeneratorTool returns the musical role a generator tool name
// implies when the call does not set an explicit "role" param, defaulting
// to "melody" for the generic stori_generate_midi.
func RoleForGeneratorTool(tool string) string {
	if role, ok := generatorToolNames[tool]; ok && role != "" {
		return role
	}
	return "melody"
}

// isTrackCreation/isEffectOrMixing/isRegionCall classify a tool for the
// instrument agent's dispatch sort.
func isTrackCreation(tool string) bool { return tool == ToolAddMidiTrack }

func isEffectOrMixing(tool string) bool {
	switch tool {
	case ToolAddInsertEffect, ToolEnsureBus, ToolAddSend,
		ToolSetTrackVolume, ToolSetTrackPan, ToolMuteTrack, ToolSoloTrack,
		ToolSetTrackColor, ToolSetTrackIcon, ToolSetTrackName:
		return true
	}
	return false
}

func isRegionCall(tool string) bool { return tool == ToolAddMidiRegion }

// dispatchRank orders one turn's tool calls for execution: track creation first, then region calls
// before the generate call they pair with, then everything else, with
// effects/mixing calls last.
func dispatchRank(tool string) int {
	switch {
	case isTrackCreation(tool):
		return 0
	case isRegionCall(tool):
		return 1
	case IsGeneratorTool(tool):
		return 2
	case isEffectOrMixing(tool):
		return 4
	default:
		return 3
	}
}

// SortToolCalls stable-sorts calls into dispatch order without disturbing
// the relative order of calls that share a rank (e.g. two generate calls
// for different sections keep the model's original ordering between them).
func SortToolCalls(calls []ToolCall) []ToolCall {
	sorted := append([]ToolCall(nil), calls...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dispatchRank(sorted[i].Name) < dispatchRank(sorted[j].Name)
	})
	return sorted
}
