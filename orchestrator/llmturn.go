package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/stori-audio/maestro-agents/eventstream"
	"github.com/stori-audio/maestro-agents/llm"
)

// runLLMTurn drives one streamed chat-completion call to completion and
// assembles its tool-call deltas into whole tool calls by keying partial
// deltas by index until a Done chunk arrives. Reasoning and content deltas
// are emitted as they arrive (tagged agentID), with a trailing reasoningEnd
// once the stream closes if any reasoning was seen; events may be nil in
// tests that don't care about the outbound stream.
func runLLMTurn(ctx context.Context, client llm.Client, agentID string, events *eventstream.Multiplexer, messages []llm.Message, opts llm.Options) (content string, toolCalls []llm.ToolCall, usage llm.Usage, err error) {
	stream, err := client.ChatCompletionStream(ctx, messages, opts)
	if err != nil {
		return "", nil, llm.Usage{}, err
	}

	type partial struct {
		id, name, args string
	}
	byIndex := make(map[int]*partial)
	var order []int
	var contentBuilder []byte
	sawReasoning := false

	for chunk := range stream {
		contentBuilder = append(contentBuilder, chunk.ContentDelta...)
		if chunk.ReasoningDelta != "" {
			sawReasoning = true
			emitTurnEvent(events, eventstream.TypeReasoning, agentID, map[string]interface{}{"delta": chunk.ReasoningDelta})
		}
		if chunk.ContentDelta != "" {
			emitTurnEvent(events, eventstream.TypeContent, agentID, map[string]interface{}{"delta": chunk.ContentDelta})
		}
		for _, d := range chunk.ToolCallDeltas {
			p, ok := byIndex[d.Index]
			if !ok {
				p = &partial{}
				byIndex[d.Index] = p
				order = append(order, d.Index)
			}
			if d.ID != "" {
				p.id = d.ID
			}
			if d.Name != "" {
				p.name = d.Name
			}
			p.args += d.ArgsFragment
		}
		if chunk.Done {
			if chunk.Final != nil {
				usage = chunk.Final.Usage
				if chunk.Final.Content != "" {
					contentBuilder = []byte(chunk.Final.Content)
				}
				if len(chunk.Final.ToolCalls) > 0 {
					if sawReasoning {
						emitTurnEvent(events, eventstream.TypeReasoningEnd, agentID, nil)
					}
					return string(contentBuilder), chunk.Final.ToolCalls, usage, nil
				}
			}
		}
	}

	if sawReasoning {
		emitTurnEvent(events, eventstream.TypeReasoningEnd, agentID, nil)
	}

	sort.Ints(order)
	for _, idx := range order {
		p := byIndex[idx]
		toolCalls = append(toolCalls, llm.ToolCall{ID: p.id, Name: p.name, Arguments: p.args})
	}
	return string(contentBuilder), toolCalls, usage, nil
}

// emitTurnEvent is a nil-safe Emit: tests that don't care about the event
// stream pass a nil *eventstream.Multiplexer.
func emitTurnEvent(events *eventstream.Multiplexer, typ eventstream.Type, agentID string, payload map[string]interface{}) {
	if events == nil {
		return
	}
	events.Emit(eventstream.New(typ, payload).WithAgent(agentID))
}

// waitOut sleeps for d or returns early if ctx is cancelled, used for the
// fixed section-retry backoff schedule.
func waitOut(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
