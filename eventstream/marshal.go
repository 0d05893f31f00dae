package eventstream

import "encoding/json"

// MarshalJSON flattens Payload alongside the event's structured fields, so
// the wire shape is a single flat object: {type, seq, agentId, ...payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Payload)+6)
	for k, v := range e.Payload {
		out[k] = v
	}
	out["type"] = e.Type
	out["seq"] = e.Seq
	if e.AgentID != "" {
		out["agentId"] = e.AgentID
	}
	if e.SectionName != "" {
		out["sectionName"] = e.SectionName
	}
	if e.Phase != "" {
		out["phase"] = e.Phase
	}
	if e.Label != "" {
		out["label"] = e.Label
	}
	return json.Marshal(out)
}
