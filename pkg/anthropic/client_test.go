package anthropic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockClient implements Client for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) CreateMessage(ctx context.Context, req MessageRequest) (*MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MessageResponse), args.Error(1)
}

func TestCreateMessage_MockClient(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	want := &MessageResponse{
		ID:         "msg_001",
		Model:      "claude-sonnet-4-5-20250929",
		Content:    []ContentBlock{{Type: "text", Text: "extracted"}},
		StopReason: "end_turn",
		Usage:      TokenUsage{InputTokens: 100, OutputTokens: 20},
	}
	mc.On("CreateMessage", ctx, mock.AnythingOfType("anthropic.MessageRequest")).Return(want, nil)

	resp, err := mc.CreateMessage(ctx, MessageRequest{
		Model:     "claude-sonnet-4-5-20250929",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "extract the features"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "msg_001", resp.ID)
	assert.Equal(t, "extracted", resp.Text())
	mc.AssertExpectations(t)
}

func TestCreateMessage_MockClient_Error(t *testing.T) {
	mc := new(MockClient)
	ctx := context.Background()

	mc.On("CreateMessage", ctx, mock.Anything).Return(nil, errors.New("overloaded"))

	_, err := mc.CreateMessage(ctx, MessageRequest{Model: "claude-sonnet-4-5-20250929"})
	require.Error(t, err)
	mc.AssertExpectations(t)
}

func TestMessageResponse_Text(t *testing.T) {
	resp := &MessageResponse{
		Content: []ContentBlock{
			{Type: "text", Text: "part one "},
			{Type: "tool_use", Text: "ignored"},
			{Type: "text", Text: "part two"},
		},
	}
	assert.Equal(t, "part one part two", resp.Text())

	empty := &MessageResponse{}
	assert.Equal(t, "", empty.Text())
}

func TestSDKTypeConversion_toSDKMessages(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "question"},
		{Role: "assistant", Content: "answer"},
		{Role: "other", Content: "defaults to user"},
	})
	require.Len(t, msgs, 3)
	assert.Equal(t, "user", string(msgs[0].Role))
	assert.Equal(t, "assistant", string(msgs[1].Role))
	assert.Equal(t, "user", string(msgs[2].Role))
}

func TestSDKTypeConversion_toSDKSystemBlocks(t *testing.T) {
	blocks := toSDKSystemBlocks([]SystemBlock{
		{Text: "plain"},
		{Text: "cached", CacheControl: &CacheControl{TTL: "1h"}},
	})
	require.Len(t, blocks, 2)
	assert.Equal(t, "plain", blocks[0].Text)
	assert.Equal(t, "cached", blocks[1].Text)
	assert.Equal(t, "1h", string(blocks[1].CacheControl.TTL))
}

func TestEstimateCost_Haiku(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 0.80+4.00, cost, 0.001)
}

func TestEstimateCost_Sonnet(t *testing.T) {
	usage := TokenUsage{InputTokens: 500_000, OutputTokens: 100_000}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	assert.InDelta(t, 0.5*3.00+0.1*15.00, cost, 0.001)
}

func TestEstimateCost_Opus(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := usage.EstimateCost("claude-opus-4-6")
	assert.InDelta(t, 15.00+75.00, cost, 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              100_000,
		OutputTokens:             10_000,
		CacheCreationInputTokens: 1_000_000,
		CacheReadInputTokens:     2_000_000,
	}
	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")

	// Cache writes bill at 1.25x input, reads at 0.1x input.
	want := 0.1*3.00 + 0.01*15.00 + 3.00*1.25 + 2*3.00*0.1
	assert.InDelta(t, want, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	usage := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	assert.Zero(t, usage.EstimateCost("claude-unknown-model"))
}

func TestEstimateCost_ZeroTokens(t *testing.T) {
	var usage TokenUsage
	assert.Zero(t, usage.EstimateCost("claude-sonnet-4-5-20250929"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	usage := TokenUsage{InputTokens: 100, OutputTokens: 50}
	usage.LogCost("claude-sonnet-4-5-20250929", "extraction")
}

func TestNewRateLimited_PassesThrough(t *testing.T) {
	mc := new(MockClient)
	want := &MessageResponse{ID: "msg_rl"}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(want, nil)

	limited := NewRateLimited(mc, 100, 1)
	resp, err := limited.CreateMessage(context.Background(), MessageRequest{})
	require.NoError(t, err)
	assert.Equal(t, "msg_rl", resp.ID)
	mc.AssertExpectations(t)
}

func TestNewRateLimited_ContextCancelled(t *testing.T) {
	mc := new(MockClient)
	want := &MessageResponse{ID: "msg_rl"}
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(want, nil)

	// Burst 1 at a very slow refill: the second call must block, so a
	// cancelled context surfaces instead of a second API call.
	limited := NewRateLimited(mc, 0.001, 1)

	_, err := limited.CreateMessage(context.Background(), MessageRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = limited.CreateMessage(ctx, MessageRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit wait")
	mc.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestNewRateLimited_Defaults(t *testing.T) {
	mc := new(MockClient)
	mc.On("CreateMessage", mock.Anything, mock.Anything).Return(&MessageResponse{}, nil)

	// Non-positive settings fall back to safe defaults rather than a
	// zero limiter that would block forever.
	limited := NewRateLimited(mc, 0, 0)
	_, err := limited.CreateMessage(context.Background(), MessageRequest{})
	require.NoError(t, err)
}
