// Package eventstream implements the outbound event-stream multiplexer: a
// many-producer-one-consumer queue of typed events, numbered with a strict
// per-connection seq assigned at the drain point so ordering is guaranteed
// regardless of producer completion order.
package eventstream

// Phase classifies a tool event by composition stage.
type Phase string

const (
	PhaseSetup       Phase = "setup"
	PhaseComposition Phase = "composition"
	PhaseSoundDesign Phase = "soundDesign"
	PhaseMixing      Phase = "mixing"
)

// Type enumerates every outbound event kind the stream can carry.
type Type string

const (
	TypeToolStart        Type = "toolStart"
	TypeToolCall          Type = "toolCall"
	TypeToolError         Type = "toolError"
	TypeGeneratorStart    Type = "generatorStart"
	TypeGeneratorComplete Type = "generatorComplete"
	TypeReasoning         Type = "reasoning"
	TypeReasoningEnd      Type = "reasoningEnd"
	TypeContent           Type = "content"
	TypeStatus            Type = "status"
	TypeAgentComplete     Type = "agentComplete"
	TypePlan              Type = "plan"
	TypePreflight         Type = "preflight"
	TypePlanStepUpdate    Type = "planStepUpdate"
	TypeSummary           Type = "summary"
	TypeSummaryFinal      Type = "summary.final"
	TypeComplete          Type = "complete"
	TypeDone              Type = "done"
)

// Event is one outbound message. Seq is assigned by the Multiplexer at
// drain time, never by the producer.
type Event struct {
	Seq         int                    `json:"seq"`
	Type        Type                   `json:"type"`
	AgentID     string                 `json:"agentId,omitempty"`
	SectionName string                 `json:"sectionName,omitempty"`
	Phase       Phase                  `json:"phase,omitempty"`
	Label       string                 `json:"label,omitempty"`
	Payload     map[string]interface{} `json:"-"`
}

// New builds an Event with the given type and payload merged in at
// serialisation time (MarshalJSON below).
func New(typ Type, payload map[string]interface{}) Event {
	return Event{Type: typ, Payload: payload}
}

// WithAgent tags the event with an agentId.
func (e Event) WithAgent(agentID string) Event {
	e.AgentID = agentID
	return e
}

// WithSection additionally tags a section-scoped emission.
func (e Event) WithSection(sectionName string) Event {
	e.SectionName = sectionName
	return e
}

// WithPhase tags a tool event with its composition phase.
func (e Event) WithPhase(phase Phase) Event {
	e.Phase = phase
	return e
}

// WithLabel sets the human-readable label.
func (e Event) WithLabel(label string) Event {
	e.Label = label
	return e
}

// PhaseForTool maps a tool name to its composition phase, grounded on tool_execution.py's phase_for_tool.
func PhaseForTool(tool string) Phase {
	switch tool {
	case "stori_set_tempo", "stori_set_key":
		return PhaseSetup
	case "stori_set_track_volume", "stori_set_track_pan", "stori_mute_track",
		"stori_solo_track", "stori_set_track_color", "stori_set_track_icon",
		"stori_set_track_name", "stori_add_automation":
		return PhaseMixing
	case "stori_add_insert_effect", "stori_ensure_bus", "stori_add_send",
		"stori_add_midi_cc", "stori_add_pitch_bend":
		return PhaseSoundDesign
	default:
		return PhaseComposition
	}
}
