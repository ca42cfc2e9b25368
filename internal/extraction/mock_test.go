package extraction

import (
	"context"
	"sync"

	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// mockAnthropicClient answers CreateMessage through a configurable respond
// func and records every request. Safe for the runner's concurrent fan-out.
type mockAnthropicClient struct {
	mu      sync.Mutex
	respond func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
	reqs    []anthropic.MessageRequest
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	m.mu.Unlock()
	if m.respond != nil {
		return m.respond(req)
	}
	return textResponse("[]"), nil
}

func (m *mockAnthropicClient) requests() []anthropic.MessageRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]anthropic.MessageRequest(nil), m.reqs...)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg-test",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage: anthropic.TokenUsage{
			InputTokens:  120,
			OutputTokens: 60,
		},
	}
}

var _ anthropic.Client = (*mockAnthropicClient)(nil)
