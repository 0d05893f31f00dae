package generator

import (
	"fmt"

	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/statestore"
)

// midi7 validates that a 7-bit MIDI field (pitch, velocity, cc, value)
// falls within [0,127].
func midi7(field string, value int) error {
	if value < 0 || value > 127 {
		return ferrors.Wrap("generator.normalizeToolCalls", ferrors.KindValidation,
			fmt.Errorf("%w: %s %d is out of MIDI range [0,127]", ferrors.ErrValidation, field, value))
	}
	return nil
}

// normalizeToolCalls translates the service's DAW-style tool calls
// (addNotes, addMidiCC, addPitchBend, addAftertouch) into Maestro's flat
// typed lists, so the service's private tool vocabulary never leaks past
// this file. Any pitch/velocity/cc/value outside the MIDI 7-bit range
// aborts normalization with a validation error.
func normalizeToolCalls(calls []ToolCall) ([]statestore.Note, []statestore.ControllerEvent, []statestore.PitchBend, []statestore.Aftertouch, error) {
	var notes []statestore.Note
	var cc []statestore.ControllerEvent
	var pitchBends []statestore.PitchBend
	var aftertouch []statestore.Aftertouch

	for _, tc := range calls {
		switch tc.Tool {
		case "addNotes":
			for _, n := range asMapSlice(tc.Params["notes"]) {
				pitch := asInt(n["pitch"])
				if err := midi7("pitch", pitch); err != nil {
					return nil, nil, nil, nil, err
				}
				velocity := asInt(n["velocity"])
				if err := midi7("velocity", velocity); err != nil {
					return nil, nil, nil, nil, err
				}
				notes = append(notes, statestore.Note{
					Pitch:         pitch,
					StartBeat:     asFloat(n["start_beat"]),
					DurationBeats: asFloat(n["duration_beats"]),
					Velocity:      velocity,
					Channel:       asInt(n["channel"]),
				})
			}

		case "addMidiCC":
			ccNum := asInt(tc.Params["cc"])
			if err := midi7("cc", ccNum); err != nil {
				return nil, nil, nil, nil, err
			}
			for _, ev := range asMapSlice(tc.Params["events"]) {
				value := asInt(ev["value"])
				if err := midi7("value", value); err != nil {
					return nil, nil, nil, nil, err
				}
				cc = append(cc, statestore.ControllerEvent{
					CC:    ccNum,
					Beat:  asFloat(ev["beat"]),
					Value: value,
				})
			}

		case "addPitchBend":
			// PitchBend.Value is 14-bit; it has no [0,127] bound.
			for _, ev := range asMapSlice(tc.Params["events"]) {
				pitchBends = append(pitchBends, statestore.PitchBend{
					Beat:  asFloat(ev["beat"]),
					Value: asInt(ev["value"]),
				})
			}

		case "addAftertouch":
			for _, ev := range asMapSlice(tc.Params["events"]) {
				entry := statestore.Aftertouch{
					Beat:  asFloat(ev["beat"]),
					Value: asInt(ev["value"]),
				}
				if p, ok := ev["pitch"]; ok {
					pv := asInt(p)
					if err := midi7("pitch", pv); err != nil {
						return nil, nil, nil, nil, err
					}
					entry.Pitch = &pv
				}
				aftertouch = append(aftertouch, entry)
			}
		}
	}

	return notes, cc, pitchBends, aftertouch, nil
}

func asMapSlice(v interface{}) []map[string]interface{} {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func asFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

func rawNotesToNotes(raw []rawNote) ([]statestore.Note, error) {
	out := make([]statestore.Note, 0, len(raw))
	for _, n := range raw {
		if err := midi7("pitch", n.Pitch); err != nil {
			return nil, err
		}
		if err := midi7("velocity", n.Velocity); err != nil {
			return nil, err
		}
		out = append(out, statestore.Note{
			Pitch:         n.Pitch,
			StartBeat:     n.StartBeat,
			DurationBeats: n.DurationBeats,
			Velocity:      n.Velocity,
			Channel:       n.Channel,
		})
	}
	return out, nil
}
