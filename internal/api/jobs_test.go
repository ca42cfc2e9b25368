package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/model"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/pkg/anthropic"
)

func createJobOverHTTP(t *testing.T, e *testEnv) string {
	t.Helper()

	rec := e.do(t, http.MethodPost, "/api/jobs", map[string]any{
		"project":     "health-plans",
		"entity":      "acme-health",
		"source_type": "document",
		"evidence_id": "doc-7",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &created)
	require.NotEmpty(t, created.JobID)
	return created.JobID
}

func TestJobLifecycle(t *testing.T) {
	e := newTestEnv(t)
	jobID := createJobOverHTTP(t, e)

	rec := e.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var job model.Job
	decode(t, rec, &job)
	assert.Equal(t, model.JobKindExtraction, job.Kind)
	assert.Equal(t, model.JobStatusPending, job.Status)
	assert.Equal(t, "acme-health", job.Entity)
	assert.Equal(t, "doc-7", job.SourceRef)

	rec = e.do(t, http.MethodGet, "/api/jobs?project=health-plans&status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Jobs  []model.Job `json:"jobs"`
		Count int         `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, jobID, list.Jobs[0].ID)

	rec = e.do(t, http.MethodPatch, "/api/jobs/"+jobID, map[string]any{
		"status": "running",
		"model":  "claude-sonnet-4-5-20250929",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var patched struct {
		Updated bool `json:"updated"`
	}
	decode(t, rec, &patched)
	assert.True(t, patched.Updated)

	rec = e.do(t, http.MethodGet, "/api/jobs/"+jobID, nil)
	decode(t, rec, &job)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, "claude-sonnet-4-5-20250929", job.Model)
}

func TestListJobs_EmptyIsArray(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/api/jobs?project=nothing-here", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"jobs": [], "count": 0}`, rec.Body.String())
}

func TestUpdateJob_InvalidStatus(t *testing.T) {
	e := newTestEnv(t)
	jobID := createJobOverHTTP(t, e)

	rec := e.do(t, http.MethodPatch, "/api/jobs/"+jobID, map[string]any{"status": "paused"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown fields are ignored, not rejected.
	rec = e.do(t, http.MethodPatch, "/api/jobs/"+jobID, map[string]any{"favourite": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var patched struct {
		Updated bool `json:"updated"`
	}
	decode(t, rec, &patched)
	assert.False(t, patched.Updated)
}

func TestRecordResultsAndStats(t *testing.T) {
	e := newTestEnv(t)
	jobID := createJobOverHTTP(t, e)

	rec := e.do(t, http.MethodPost, "/api/results", map[string]any{
		"job_id":    jobID,
		"entity_id": "acme-health",
		"results": []map[string]any{
			{"attr_slug": "features", "value": "Virtual GP", "confidence": 0.9, "reasoning": "listed on page"},
			{"attr_slug": "employee_count", "value": 250, "confidence": 0.8},
		},
		"source_evidence_id": "doc-7",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var out struct {
		ResultIDs []string `json:"result_ids"`
	}
	decode(t, rec, &out)
	require.Len(t, out.ResultIDs, 2)

	rec = e.do(t, http.MethodGet, "/api/results/"+out.ResultIDs[0], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result model.ExtractionResult
	decode(t, rec, &result)
	assert.Equal(t, "features", result.AttrSlug)
	assert.Equal(t, "Virtual GP", result.ExtractedValue)
	assert.Equal(t, model.ResultStatusPending, result.Status)
	assert.Equal(t, "doc-7", result.SourceEvidenceID)

	rec = e.do(t, http.MethodGet, "/api/stats?project=health-plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats store.PipelineStats
	decode(t, rec, &stats)
	assert.Equal(t, "health-plans", stats.Project)
	assert.Equal(t, 1, stats.JobsByStatus["pending"])
	assert.Equal(t, 2, stats.ResultsByStatus["pending"])

	rec = e.do(t, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecordResults_Invalid(t *testing.T) {
	e := newTestEnv(t)
	jobID := createJobOverHTTP(t, e)

	rec := e.do(t, http.MethodPost, "/api/results", map[string]any{
		"job_id":    jobID,
		"entity_id": "acme-health",
		"results": []map[string]any{
			{"attr_slug": "features", "value": "Virtual GP", "confidence": 1.5},
		},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartAndPoll(t *testing.T) {
	e := newTestEnv(t)
	e.client.respond = func(req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
		if strings.Contains(req.Messages[0].Content, "(features,") {
			return textResponse(`[{"value": "Virtual GP", "confidence": 0.9, "reasoning": "listed"}]`), nil
		}
		return textResponse("[]"), nil
	}

	rec := e.do(t, http.MethodPost, "/api/jobs/start", map[string]any{
		"kind":        "extraction",
		"project":     "health-plans",
		"entity":      "acme-health",
		"source_type": "document",
		"evidence_id": "doc-7",
		"evidence":    "Acme Health offers a Virtual GP service to all members.",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	var started struct {
		JobID string `json:"job_id"`
	}
	decode(t, rec, &started)
	require.NotEmpty(t, started.JobID)

	// Drain the gateway so the poll below observes a terminal state.
	require.NoError(t, e.gateway.Close(context.Background()))

	rec = e.do(t, http.MethodGet, "/api/jobs/"+started.JobID+"/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ps jobs.PollStatus
	decode(t, rec, &ps)
	require.Equal(t, model.JobStatusCompleted, ps.Status)
	assert.Empty(t, ps.Error)

	var payload struct {
		ResultCount int `json:"result_count"`
	}
	require.NoError(t, json.Unmarshal(ps.Result, &payload))
	assert.Equal(t, 1, payload.ResultCount)

	rec = e.do(t, http.MethodGet, "/api/review/queue?project=health-plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue struct {
		Items []model.ReviewQueueItem `json:"items"`
		Count int                     `json:"count"`
	}
	decode(t, rec, &queue)
	require.Equal(t, 1, queue.Count)
	assert.Equal(t, "features", queue.Items[0].AttrSlug)
	assert.Equal(t, "Virtual GP", queue.Items[0].ExtractedValue)
}

func TestPoll_Contract(t *testing.T) {
	e := newTestEnv(t)

	// Poll never fails hard: a malformed key reads as an error status, a
	// well-formed unknown key as pending, both under HTTP 200.
	rec := e.do(t, http.MethodGet, "/api/jobs/banana/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ps jobs.PollStatus
	decode(t, rec, &ps)
	assert.Equal(t, model.JobStatusError, ps.Status)
	assert.Equal(t, "invalid job key", ps.Error)

	rec = e.do(t, http.MethodGet, "/api/jobs/3b241101-e2bb-4255-8caf-4136c566a962/poll", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &ps)
	assert.Equal(t, model.JobStatusPending, ps.Status)
}

func TestStartJob_Validation(t *testing.T) {
	e := newTestEnv(t)

	cases := map[string]any{
		"unknown kind":        map[string]any{"kind": "banana", "project": "health-plans"},
		"no runner for kind":  map[string]any{"kind": "similarity", "project": "health-plans"},
		"missing project":     map[string]any{"kind": "extraction"},
		"malformed JSON body": `{"kind": `,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/jobs/start", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}
