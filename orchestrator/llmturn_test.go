package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stori-audio/maestro-agents/llm"
	"github.com/stretchr/testify/require"
)

func TestRunLLMTurnAssemblesToolCallDeltasByIndex(t *testing.T) {
	client := llm.NewFakeClient()
	client.QueueStream([]llm.StreamChunk{
		{ContentDelta: "thinking"},
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "call-1", Name: "add_midi_region"}}},
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ArgsFragment: `{"trackId":`}}},
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ArgsFragment: `"t1"}`}}},
		{Done: true, Final: &llm.Response{Usage: llm.Usage{TotalTokens: 42}}},
	})

	content, toolCalls, usage, err := runLLMTurn(context.Background(), client, "test-agent", nil, nil, llm.Options{})
	require.NoError(t, err)
	require.Equal(t, "thinking", content)
	require.Len(t, toolCalls, 1)
	require.Equal(t, "call-1", toolCalls[0].ID)
	require.Equal(t, "add_midi_region", toolCalls[0].Name)
	require.Equal(t, `{"trackId":"t1"}`, toolCalls[0].Arguments)
	require.Equal(t, 42, usage.TotalTokens)
}

func TestRunLLMTurnOrdersMultipleToolCallsByIndex(t *testing.T) {
	client := llm.NewFakeClient()
	client.QueueStream([]llm.StreamChunk{
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 1, ID: "second", Name: "generate_bass", ArgsFragment: "{}"}}},
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "first", Name: "add_midi_region", ArgsFragment: "{}"}}},
		{Done: true, Final: &llm.Response{}},
	})

	_, toolCalls, _, err := runLLMTurn(context.Background(), client, "test-agent", nil, nil, llm.Options{})
	require.NoError(t, err)
	require.Len(t, toolCalls, 2)
	require.Equal(t, "first", toolCalls[0].ID)
	require.Equal(t, "second", toolCalls[1].ID)
}

func TestRunLLMTurnShortCircuitsOnFinalToolCalls(t *testing.T) {
	client := llm.NewFakeClient()
	final := &llm.Response{
		Content:   "done",
		ToolCalls: []llm.ToolCall{{ID: "x", Name: "set_tempo", Arguments: `{"bpm":120}`}},
		Usage:     llm.Usage{TotalTokens: 7},
	}
	client.QueueStream([]llm.StreamChunk{
		{ToolCallDeltas: []llm.ToolCallDelta{{Index: 0, ID: "stale", Name: "stale_tool"}}},
		{Done: true, Final: final},
	})

	content, toolCalls, usage, err := runLLMTurn(context.Background(), client, "test-agent", nil, nil, llm.Options{})
	require.NoError(t, err)
	require.Equal(t, "done", content)
	require.Equal(t, final.ToolCalls, toolCalls)
	require.Equal(t, 7, usage.TotalTokens)
}

func TestRunLLMTurnPropagatesStreamError(t *testing.T) {
	client := llm.NewFakeClient()
	client.Err = errBoom

	_, _, _, err := runLLMTurn(context.Background(), client, "test-agent", nil, nil, llm.Options{})
	require.ErrorIs(t, err, errBoom)
}

func TestRunLLMTurnFallsBackToDefaultResponseWhenNothingQueued(t *testing.T) {
	client := llm.NewFakeClient()
	client.DefaultResponse = llm.Response{Content: "fallback"}

	content, toolCalls, _, err := runLLMTurn(context.Background(), client, "test-agent", nil, nil, llm.Options{})
	require.NoError(t, err)
	require.Equal(t, "fallback", content)
	require.Empty(t, toolCalls)
}

func TestWaitOutReturnsEarlyOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	waitOut(ctx, 2*time.Second)
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitOutSleepsForDuration(t *testing.T) {
	start := time.Now()
	waitOut(context.Background(), 20*time.Millisecond)
	require.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
