package llm

import (
	"context"
	"fmt"
	"sync"
)

// Mock is a scripted client for tests: it replays queued responses in order
// and records every request it received.
type Mock struct {
	mu        sync.Mutex
	model     string
	responses []mockResponse
	requests  []CompletionRequest
}

type mockResponse struct {
	resp *CompletionResponse
	err  error
}

// NewMock creates a mock client reporting the given model name.
func NewMock(model string) *Mock {
	return &Mock{model: model}
}

// EnqueueText queues a plain assistant reply.
func (m *Mock) EnqueueText(content string) *Mock {
	return m.Enqueue(&CompletionResponse{Content: content, StopReason: "stop"}, nil)
}

// EnqueueToolCall queues a reply requesting a single tool execution.
func (m *Mock) EnqueueToolCall(id, name string, args map[string]any) *Mock {
	return m.Enqueue(&CompletionResponse{
		ToolCalls:  []ToolCall{{ID: id, Name: name, Arguments: args}},
		StopReason: "tool_calls",
	}, nil)
}

// EnqueueError queues a failure.
func (m *Mock) EnqueueError(err error) *Mock {
	return m.Enqueue(nil, err)
}

// Enqueue queues a raw response.
func (m *Mock) Enqueue(resp *CompletionResponse, err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, mockResponse{resp: resp, err: err})
	return m
}

func (m *Mock) Model() string { return m.model }

func (m *Mock) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock: no response queued for request %d", len(m.requests))
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return next.resp, next.err
}

func (m *Mock) StreamComplete(ctx context.Context, req CompletionRequest, onChunk StreamFunc) (*CompletionResponse, error) {
	resp, err := m.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk != nil {
		if resp.Content != "" {
			onChunk(StreamChunk{Content: resp.Content})
		}
		onChunk(StreamChunk{Final: true})
	}
	return resp, nil
}

// Requests returns every request received so far.
func (m *Mock) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CompletionRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount reports how many completions were requested.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}
