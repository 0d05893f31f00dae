package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExecuteSetTrackVolumeAndPan(t *testing.T) {
	ex, store, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Lead"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)

	ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolSetTrackVolume, Params: map[string]interface{}{"trackId": trackID, "volume": 0.8}}, tx, nil)
	ex.Execute(context.Background(), ToolCall{ID: "3", Name: ToolSetTrackPan, Params: map[string]interface{}{"trackId": trackID, "pan": -0.5}}, tx, nil)

	track, ok := store.GetTrack(trackID)
	require.True(t, ok)
	require.Equal(t, 0.8, track.Volume)
	require.Equal(t, -0.5, track.Pan)
}

func TestExecuteMuteAndSoloTrack(t *testing.T) {
	ex, store, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Hats"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)

	ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolMuteTrack, Params: map[string]interface{}{"trackId": trackID, "muted": true}}, tx, nil)
	ex.Execute(context.Background(), ToolCall{ID: "3", Name: ToolSoloTrack, Params: map[string]interface{}{"trackId": trackID, "soloed": true}}, tx, nil)

	track, ok := store.GetTrack(trackID)
	require.True(t, ok)
	require.True(t, track.Muted)
	require.True(t, track.Soloed)
}

func TestExecuteSetTrackColorIconName(t *testing.T) {
	ex, store, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Pad"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)

	ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolSetTrackColor, Params: map[string]interface{}{"trackId": trackID, "color": "#FF0000"}}, tx, nil)
	ex.Execute(context.Background(), ToolCall{ID: "3", Name: ToolSetTrackIcon, Params: map[string]interface{}{"trackId": trackID, "icon": "piano"}}, tx, nil)
	ex.Execute(context.Background(), ToolCall{ID: "4", Name: ToolSetTrackName, Params: map[string]interface{}{"trackId": trackID, "name": "Warm Pad"}}, tx, nil)

	track, ok := store.GetTrack(trackID)
	require.True(t, ok)
	require.Equal(t, "#FF0000", track.Color)
	require.Equal(t, "piano", track.Icon)
	require.Equal(t, "Warm Pad", track.Name)

	resolved, found := store.ResolveTrack("Warm Pad", true)
	require.True(t, found)
	require.Equal(t, trackID, resolved)

	_, stillFound := store.ResolveTrack("Pad", true)
	require.False(t, stillFound)
}

func TestExecuteAddSendCreatesBusByName(t *testing.T) {
	ex, store, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Vox"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)

	out := ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolAddSend, Params: map[string]interface{}{"trackId": trackID, "busName": "Reverb", "level": 0.3}}, tx, nil)
	require.False(t, out.Skipped)

	track, ok := store.GetTrack(trackID)
	require.True(t, ok)
	require.Len(t, track.Sends, 1)
	require.Equal(t, 0.3, track.Sends[0].Level)

	busID, err := store.GetOrCreateBus("Reverb", tx)
	require.NoError(t, err)
	require.Equal(t, busID, track.Sends[0].BusID)
}

func TestExecuteAddMidiCCAndPitchBend(t *testing.T) {
	ex, _, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Synth"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)
	regionOut := ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolAddMidiRegion, Params: map[string]interface{}{
		"trackId": trackID, "startBeat": 0.0, "durationBeats": 4.0,
	}}, tx, nil)
	regionID := regionOut.ToolResult["regionId"].(string)

	ccOut := ex.Execute(context.Background(), ToolCall{ID: "3", Name: ToolAddMidiCC, Params: map[string]interface{}{
		"regionId": regionID, "cc": 74.0,
		"events": []interface{}{map[string]interface{}{"beat": 0.0, "value": 64.0}},
	}}, tx, nil)
	require.False(t, ccOut.Skipped)
	require.Equal(t, 1, ccOut.ToolResult["count"])

	bendOut := ex.Execute(context.Background(), ToolCall{ID: "4", Name: ToolAddPitchBend, Params: map[string]interface{}{
		"regionId": regionID,
		"events":   []interface{}{map[string]interface{}{"beat": 1.0, "value": 200.0}},
	}}, tx, nil)
	require.False(t, bendOut.Skipped)
	require.Equal(t, 1, bendOut.ToolResult["count"])
}

func TestExecuteAddAutomation(t *testing.T) {
	ex, store, tx := newTestExecutor(t)
	trackOut := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolAddMidiTrack, Params: map[string]interface{}{"trackName": "Master"}}, tx, nil)
	trackID := trackOut.ToolResult["trackId"].(string)

	out := ex.Execute(context.Background(), ToolCall{ID: "2", Name: ToolAddAutomation, Params: map[string]interface{}{
		"trackId": trackID, "parameter": "volume",
		"points": []interface{}{map[string]interface{}{"beat": 0.0, "value": 1.0}, map[string]interface{}{"beat": 8.0, "value": 0.5}},
	}}, tx, nil)
	require.False(t, out.Skipped)

	track, ok := store.GetTrack(trackID)
	require.True(t, ok)
	require.Len(t, track.Automation["volume"], 2)
}

func TestExecuteTrackPropertyMutationOnUnknownTrackIsSkipped(t *testing.T) {
	ex, _, tx := newTestExecutor(t)
	out := ex.Execute(context.Background(), ToolCall{ID: "1", Name: ToolSetTrackVolume, Params: map[string]interface{}{"trackId": "nope", "volume": 0.5}}, tx, nil)
	require.True(t, out.Skipped)
}
