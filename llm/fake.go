package llm

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is a scripted Client test double. Scripted responses are
// consumed in order per call kind (non-streaming vs streaming); once
// exhausted it returns DefaultResponse.
type FakeClient struct {
	mu               sync.Mutex
	responses        []*Response
	streamResponses  [][]StreamChunk
	callIndex        int
	streamIndex      int
	DefaultResponse  Response
	RecordedMessages [][]Message
	RecordedOptions  []Options
	Err              error
}

// NewFakeClient builds an empty FakeClient; use QueueResponse/QueueStream to
// script its behavior before use.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		DefaultResponse: Response{Content: "", FinishReason: "stop"},
	}
}

// QueueResponse appends a scripted non-streaming response.
func (f *FakeClient) QueueResponse(r Response) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, &r)
}

// QueueStream appends a scripted sequence of stream chunks for one
// ChatCompletionStream call. The final chunk should have Done=true and a
// non-nil Final.
func (f *FakeClient) QueueStream(chunks []StreamChunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamResponses = append(f.streamResponses, chunks)
}

func (f *FakeClient) ChatCompletion(ctx context.Context, messages []Message, opts Options) (*Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RecordedMessages = append(f.RecordedMessages, messages)
	f.RecordedOptions = append(f.RecordedOptions, opts)
	if f.Err != nil {
		return nil, f.Err
	}
	if f.callIndex < len(f.responses) {
		r := f.responses[f.callIndex]
		f.callIndex++
		return r, nil
	}
	resp := f.DefaultResponse
	return &resp, nil
}

func (f *FakeClient) ChatCompletionStream(ctx context.Context, messages []Message, opts Options) (<-chan StreamChunk, error) {
	f.mu.Lock()
	f.RecordedMessages = append(f.RecordedMessages, messages)
	f.RecordedOptions = append(f.RecordedOptions, opts)
	if f.Err != nil {
		f.mu.Unlock()
		return nil, f.Err
	}
	var chunks []StreamChunk
	if f.streamIndex < len(f.streamResponses) {
		chunks = f.streamResponses[f.streamIndex]
		f.streamIndex++
	} else {
		resp := f.DefaultResponse
		chunks = []StreamChunk{{Done: true, Final: &resp}}
	}
	f.mu.Unlock()

	out := make(chan StreamChunk, len(chunks))
	for _, c := range chunks {
		select {
		case <-ctx.Done():
			close(out)
			return out, fmt.Errorf("llm: stream cancelled: %w", ctx.Err())
		default:
		}
		out <- c
	}
	close(out)
	return out, nil
}

var _ Client = (*FakeClient)(nil)
