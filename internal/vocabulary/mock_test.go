package vocabulary

import (
	"context"

	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	response *anthropic.MessageResponse
	err      error
	lastReq  anthropic.MessageRequest
	calls    int
}

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.lastReq = req
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.response, nil
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:    "msg-test",
		Model: "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{
			{Type: "text", Text: text},
		},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 120, OutputTokens: 60},
	}
}

var _ anthropic.Client = (*mockAnthropicClient)(nil)
