// Package generator implements the circuit-breaker-guarded, semaphore-bounded
// client for the external MIDI generation service: explicit context.Context
// on the blocking call, structured errors via ferrors, and a
// resilience.CircuitBreaker guarding every outbound request.
package generator

import (
	"github.com/stori-audio/maestro-agents/statestore"
)

// Request is a single generate call's musical parameters.
type Request struct {
	Genre            string
	Tempo            int
	Instruments      []string
	Bars             int
	Key              string
	MusicalGoals     []string
	ToneBrightness   float64
	ToneWarmth       float64
	EnergyIntensity  float64
	EnergyExcitement float64
	Complexity       float64
	QualityPreset    string
	CompositionID    string
	PreviousNotes    []statestore.Note
}

// ToolCall is one raw DAW-style tool call the generator service packs its
// musical data into — its own private vocabulary, never exposed past the
// normalizeToolCalls boundary.
type ToolCall struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params"`
}

// Result is the generator client's normalised return shape: raw service
// tool-call vocabulary has already been translated into flat typed lists
// by the time a caller sees this.
type Result struct {
	Success    bool
	Notes      []statestore.Note
	CCEvents   []statestore.ControllerEvent
	PitchBends []statestore.PitchBend
	Aftertouch []statestore.Aftertouch
	Metadata   map[string]interface{}
	Error      string
	RetryCount int
}

// submitResponse is the JSON shape of POST /generate.
type submitResponse struct {
	JobID    string      `json:"jobId"`
	Status   string      `json:"status"`
	Position int         `json:"position"`
	Result   *rawResult  `json:"result"`
}

// pollResponse is the JSON shape of GET /jobs/{id}/wait.
type pollResponse struct {
	Status string     `json:"status"`
	Result *rawResult `json:"result"`
	Error  string     `json:"error"`
}

// rawResult is the service's inner result payload, still in its own tool-call
// vocabulary until normalizeToolCalls runs.
type rawResult struct {
	Success   bool                   `json:"success"`
	Notes     []rawNote              `json:"notes"`
	ToolCalls []ToolCall             `json:"tool_calls"`
	Metadata  map[string]interface{} `json:"metadata"`
	Error     string                 `json:"error"`
}

type rawNote struct {
	Pitch         int     `json:"pitch"`
	StartBeat     float64 `json:"start_beat"`
	DurationBeats float64 `json:"duration_beats"`
	Velocity      int     `json:"velocity"`
	Channel       int     `json:"channel"`
}
