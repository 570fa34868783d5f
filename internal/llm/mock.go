package llm

import (
	"context"
	"fmt"
	"sync"
)

const mockScript = `from manim import *

class %s(Scene):
    def construct(self):
        text = Text("animgen mock provider")
        self.play(Write(text))
        self.wait(1)
`

// MockClient is an offline Client. By default it answers with a minimal
// script; tests queue scripted responses or errors with Enqueue.
type MockClient struct {
	model string

	mu       sync.Mutex
	queue    []mockReply
	requests []CompletionRequest
}

type mockReply struct {
	resp *CompletionResponse
	err  error
}

// NewMockClient returns a MockClient reporting model.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = "mock"
	}
	return &MockClient{model: model}
}

// Enqueue schedules the next reply. A nil resp with a nil err yields the
// default script.
func (m *MockClient) Enqueue(resp *CompletionResponse, err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, mockReply{resp: resp, err: err})
	return m
}

// Requests returns the requests received so far.
func (m *MockClient) Requests() []CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CompletionRequest(nil), m.requests...)
}

func (m *MockClient) Model() string {
	return m.model
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	var reply mockReply
	if len(m.queue) > 0 {
		reply = m.queue[0]
		m.queue = m.queue[1:]
	}
	m.mu.Unlock()

	if reply.err != nil {
		return nil, reply.err
	}
	if reply.resp != nil {
		return reply.resp, nil
	}

	scene := "PromptAnimationScene"
	if name, ok := req.Metadata["scene"].(string); ok && name != "" {
		scene = name
	}
	return &CompletionResponse{
		Content:    fmt.Sprintf(mockScript, scene),
		HasText:    true,
		StopReason: StopReasonEndTurn,
		Usage:      TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}
