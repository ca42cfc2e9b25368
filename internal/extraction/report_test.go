package extraction

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

func seedReportJob(t *testing.T, s store.Store) *model.Job {
	t.Helper()
	job, err := s.CreateJob(context.Background(), model.Job{
		Project:    "health-plans",
		Kind:       model.JobKindReport,
		SourceType: "api",
	})
	require.NoError(t, err)
	return job
}

func TestReportRunner_BuildsReport(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse("Extraction is on track with two results awaiting review."), nil
		},
	}
	p, s := newTestPipeline(t)
	r := NewReportRunner(p, client, RunnerConfig{})

	jobID, err := p.CreateJob(context.Background(), "health-plans", "acme-health", "document", "")
	require.NoError(t, err)
	_, err = p.UpdateJob(context.Background(), jobID, map[string]any{"status": "completed", "cost": 0.10})
	require.NoError(t, err)
	_, err = p.RecordResults(context.Background(), jobID, "acme-health", []Candidate{
		{AttrSlug: "features", Value: "Virtual GP", Confidence: 0.9},
		{AttrSlug: "features", Value: "Dental Cover", Confidence: 0.6},
	}, "")
	require.NoError(t, err)

	res, err := r.Run(context.Background(), seedReportJob(t, s))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ResultCount)
	assert.InDelta(t, 0.00126, res.Cost, 1e-9) // 120 in + 60 out at sonnet pricing

	payload, ok := res.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Extraction is on track with two results awaiting review.", payload["report"])

	reqs := client.requests()
	require.Len(t, reqs, 1)
	prompt := reqs[0].Messages[0].Content
	assert.Contains(t, prompt, `"health-plans"`)
	assert.Contains(t, prompt, `"total_cost": 0.1`)
	assert.Contains(t, prompt, `"pending": 2`)
}

func TestReportRunner_EmptyResponse(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return textResponse("  \n"), nil
		},
	}
	p, s := newTestPipeline(t)
	r := NewReportRunner(p, client, RunnerConfig{})

	_, err := r.Run(context.Background(), seedReportJob(t, s))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no text")
}

func TestReportRunner_ModelError(t *testing.T) {
	client := &mockAnthropicClient{
		respond: func(anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			return nil, eris.New("model exploded")
		},
	}
	p, s := newTestPipeline(t)
	r := NewReportRunner(p, client, RunnerConfig{})

	_, err := r.Run(context.Background(), seedReportJob(t, s))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "report: model request")
}

func TestReportRunner_StatsPayloadIsValidJSON(t *testing.T) {
	var prompt string
	client := &mockAnthropicClient{
		respond: func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
			prompt = req.Messages[0].Content
			return textResponse("Nothing recorded yet."), nil
		},
	}
	p, s := newTestPipeline(t)
	r := NewReportRunner(p, client, RunnerConfig{})

	_, err := r.Run(context.Background(), seedReportJob(t, s))
	require.NoError(t, err)

	start := 0
	for start < len(prompt) && prompt[start] != '{' {
		start++
	}
	end := len(prompt) - 1
	for end > start && prompt[end] != '}' {
		end--
	}
	require.Greater(t, end, start, "prompt should embed a JSON stats object")

	var stats store.PipelineStats
	require.NoError(t, json.Unmarshal([]byte(prompt[start:end+1]), &stats))
	assert.Equal(t, "health-plans", stats.Project)
}
