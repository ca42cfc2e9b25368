package api

import (
	"context"
	"sync"

	"github.com/sells-group/curator-cli/pkg/anthropic"
)

// mockAnthropicClient answers model requests with a canned responder. The
// zero value answers every request with an empty JSON array.
type mockAnthropicClient struct {
	mu      sync.Mutex
	respond func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error)
}

var _ anthropic.Client = (*mockAnthropicClient)(nil)

func (m *mockAnthropicClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.mu.Lock()
	respond := m.respond
	m.mu.Unlock()

	if respond == nil {
		return textResponse("[]"), nil
	}
	return respond(req)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		ID:         "msg-test",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 120, OutputTokens: 60},
	}
}
