package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

const testEvidence = "Acme Health employs 250 people. The SME plan includes a Virtual GP service " +
	"and Dental Cover. Acme Health is authorised and regulated by the FCA."

func newExtractRunner(t *testing.T, client anthropic.Client) (*ExtractRunner, store.Store) {
	t.Helper()
	p, s := newTestPipeline(t)
	return NewExtractRunner(p, client, RunnerConfig{}), s
}

func seedExtractionJob(t *testing.T, s store.Store, params string) *model.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), model.Job{
		Project:    "health-plans",
		Entity:     "acme-health",
		Kind:       model.JobKindExtraction,
		SourceType: "document",
		SourceRef:  "doc-7",
		Params:     json.RawMessage(params),
	})
	require.NoError(t, err)
	return job
}

func extractionJobParams(attrs ...string) string {
	params := map[string]any{"evidence": testEvidence}
	if len(attrs) > 0 {
		params["attributes"] = attrs
	}
	data, _ := json.Marshal(params) //nolint:errcheck
	return string(data)
}

func TestExtractRunner_RecordsAcrossAttributes(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			prompt := req.Messages[0].Content
			switch {
			case strings.Contains(prompt, "(features,"):
				return textResponse("```json\n" +
					`[{"value": "Virtual GP", "confidence": 0.9, "reasoning": "benefits list"},` +
					` {"value": "Dental Cover", "confidence": 0.7, "reasoning": "benefits list"}]` +
					"\n```"), nil
			case strings.Contains(prompt, "(employee_count,"):
				return textResponse(`[{"value": 250, "confidence": 0.8, "reasoning": "stated directly"}]`), nil
			case strings.Contains(prompt, "(regulated,"):
				return textResponse(`[{"value": true, "confidence": 0.95, "reasoning": "FCA authorisation"}]`), nil
			}
			return textResponse("[]"), nil
		},
	}
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams("features", "employee_count", "regulated"))

	res, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 4, res.ResultCount)
	assert.Equal(t, "claude-sonnet-4-5-20250929", res.Model)
	assert.InDelta(t, 0.00378, res.Cost, 1e-9) // 360 in + 180 out at sonnet pricing

	payload, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 4, payload["result_count"])
	assert.Equal(t, int64(360), payload["input_tokens"])
	assert.Equal(t, int64(180), payload["output_tokens"])

	queue, err := s.ReviewQueue(context.Background(), "health-plans", 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 4)
	byAttr := map[string]string{}
	for _, item := range queue {
		if item.AttrSlug != "features" {
			byAttr[item.AttrSlug] = item.ExtractedValue
		}
	}
	assert.Equal(t, "250", byAttr["employee_count"])
	assert.Equal(t, "1", byAttr["regulated"])

	reqs := client.requests()
	require.Len(t, reqs, 3)
	// The primer goes first, in requested attribute order.
	assert.Contains(t, reqs[0].Messages[0].Content, "(features,")
	for _, req := range reqs {
		require.Len(t, req.System, 1)
		assert.Contains(t, req.System[0].Text, testEvidence)
		require.NotNil(t, req.System[0].CacheControl)
		assert.Equal(t, "1h", req.System[0].CacheControl.TTL)
		// Identical system text across the fan-out is what makes the
		// cache primer pay off.
		assert.Equal(t, reqs[0].System[0].Text, req.System[0].Text)
	}
}

func TestExtractRunner_Validation(t *testing.T) {
	r, s := newExtractRunner(t, &mockAnthropicClient{})

	cases := map[string]*model.Job{
		"missing evidence":   seedExtractionJob(t, s, `{}`),
		"malformed params":   seedExtractionJob(t, s, `{"evidence": 5}`),
		"unknown attributes": seedExtractionJob(t, s, `{"evidence": "some text", "attributes": ["favourite_colour"]}`),
		"no entity": {
			ID:      "job-no-entity",
			Project: "health-plans",
			Params:  json.RawMessage(extractionJobParams()),
		},
	}
	for name, job := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Run(context.Background(), job)
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrValidation))
		})
	}
}

func TestExtractRunner_SkipsEmptyAndFailedAttributes(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			prompt := req.Messages[0].Content
			switch {
			case strings.Contains(prompt, "(features,"):
				return textResponse("[]"), nil
			case strings.Contains(prompt, "(exclusions,"):
				return nil, eris.New("model exploded")
			}
			return textResponse(`[{"value": 250, "confidence": 0.8, "reasoning": "stated"}]`), nil
		},
	}
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams("features", "exclusions", "employee_count"))

	res, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ResultCount)

	queue, err := s.ReviewQueue(context.Background(), "health-plans", 10, 0)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, "employee_count", queue[0].AttrSlug)

	// Permanent errors are not retried: one request per attribute.
	assert.Len(t, client.requests(), 3)
}

func TestExtractRunner_AllAttributesFailed(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return nil, eris.New("model exploded")
		},
	}
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams("features", "regulated"))

	_, err := r.Run(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attribute requests failed")

	queue, err := s.ReviewQueue(context.Background(), "health-plans", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestExtractRunner_NoCandidatesIsSuccess(t *testing.T) {
	client := &mockAnthropicClient{} // every attribute answers []
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams())

	res, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ResultCount)

	// All seven built-in attributes were asked exactly once.
	assert.Len(t, client.requests(), 7)

	queue, err := s.ReviewQueue(context.Background(), "health-plans", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, queue)
}

func TestExtractRunner_DeduplicatesRequestedAttributes(t *testing.T) {
	client := &mockAnthropicClient{}
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams("features", "features", "bogus"))

	_, err := r.Run(context.Background(), job)
	require.NoError(t, err)
	assert.Len(t, client.requests(), 1)
}

func TestExtractRunner_CancelledContext(t *testing.T) {
	client := &mockAnthropicClient{}
	r, s := newExtractRunner(t, client)
	job := seedExtractionJob(t, s, extractionJobParams())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Run(ctx, job)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
