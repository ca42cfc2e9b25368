package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
)

// seedResults creates a job with three pending results through the API and
// returns the result ids in insert order.
func seedResults(t *testing.T, e *testEnv) []string {
	t.Helper()
	jobID := createJobOverHTTP(t, e)

	rec := e.do(t, http.MethodPost, "/api/results", map[string]any{
		"job_id":    jobID,
		"entity_id": "acme-health",
		"results": []map[string]any{
			{"attr_slug": "features", "value": "Virtual GP", "confidence": 0.95},
			{"attr_slug": "features", "value": "dental cover", "confidence": 0.7},
			{"attr_slug": "employee_count", "value": 250, "confidence": 0.8},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var out struct {
		ResultIDs []string `json:"result_ids"`
	}
	decode(t, rec, &out)
	require.Len(t, out.ResultIDs, 3)
	return out.ResultIDs
}

func applyReview(t *testing.T, e *testEnv, body map[string]any) bool {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/api/review", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Applied bool `json:"applied"`
	}
	decode(t, rec, &out)
	return out.Applied
}

func TestReviewActions(t *testing.T) {
	e := newTestEnv(t)
	ids := seedResults(t, e)

	assert.True(t, applyReview(t, e, map[string]any{"result_id": ids[0], "action": "accept"}))

	// Reviewing the same result again is a no-op, not an error.
	assert.False(t, applyReview(t, e, map[string]any{"result_id": ids[0], "action": "accept"}))

	assert.True(t, applyReview(t, e, map[string]any{
		"result_id":    ids[1],
		"action":       "edit",
		"edited_value": "Dental Cover",
	}))
	assert.True(t, applyReview(t, e, map[string]any{"result_id": ids[2], "action": "reject"}))

	rec := e.do(t, http.MethodGet, "/api/results/"+ids[1], nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result model.ExtractionResult
	decode(t, rec, &result)
	assert.Equal(t, model.ResultStatusEdited, result.Status)
	require.NotNil(t, result.ReviewedValue)
	assert.Equal(t, "Dental Cover", *result.ReviewedValue)
	require.NotNil(t, result.ReviewedAt)

	// Everything reviewed, so the queue is drained.
	rec = e.do(t, http.MethodGet, "/api/review/queue?project=health-plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue struct {
		Count int `json:"count"`
	}
	decode(t, rec, &queue)
	assert.Zero(t, queue.Count)

	// Accept and edit applied their values to the entity's attribute history;
	// reject left no trace there.
	rec = e.do(t, http.MethodGet, "/api/entities/acme-health/attributes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history struct {
		Attributes []model.EntityAttribute `json:"attributes"`
		Count      int                     `json:"count"`
	}
	decode(t, rec, &history)
	require.Equal(t, 2, history.Count)
	values := []string{history.Attributes[0].Value, history.Attributes[1].Value}
	assert.ElementsMatch(t, []string{"Virtual GP", "Dental Cover"}, values)
	for _, attr := range history.Attributes {
		assert.Equal(t, model.AttributeSourceExtraction, attr.Source)
	}
}

func TestReview_UnknownResultIsNotApplied(t *testing.T) {
	e := newTestEnv(t)

	applied := applyReview(t, e, map[string]any{
		"result_id": "3b241101-e2bb-4255-8caf-4136c566a962",
		"action":    "accept",
	})
	assert.False(t, applied)
}

func TestReview_Validation(t *testing.T) {
	e := newTestEnv(t)
	ids := seedResults(t, e)

	cases := map[string]map[string]any{
		"unknown action":     {"result_id": ids[0], "action": "approve"},
		"edit without value": {"result_id": ids[0], "action": "edit"},
		"missing result id":  {"action": "accept"},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/review", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestBulkReview(t *testing.T) {
	e := newTestEnv(t)
	ids := seedResults(t, e)

	rec := e.do(t, http.MethodPost, "/api/review/bulk", map[string]any{
		"result_ids": []string{ids[0], ids[1], "3b241101-e2bb-4255-8caf-4136c566a962"},
		"action":     "accept",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var out struct {
		Count int `json:"count"`
	}
	decode(t, rec, &out)
	assert.Equal(t, 2, out.Count)

	// Edit needs a per-result value, so it is not allowed in bulk.
	rec = e.do(t, http.MethodPost, "/api/review/bulk", map[string]any{
		"result_ids": []string{ids[2]},
		"action":     "edit",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewQueue_OrderAndPagination(t *testing.T) {
	e := newTestEnv(t)
	seedResults(t, e)

	rec := e.do(t, http.MethodGet, "/api/review/queue?project=health-plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var queue struct {
		Items []model.ReviewQueueItem `json:"items"`
		Count int                     `json:"count"`
	}
	decode(t, rec, &queue)
	require.Equal(t, 3, queue.Count)

	// Highest confidence first.
	assert.Equal(t, "Virtual GP", queue.Items[0].ExtractedValue)
	assert.Equal(t, 0.95, queue.Items[0].Confidence)
	assert.Equal(t, "health-plans", queue.Items[0].Project)

	rec = e.do(t, http.MethodGet, "/api/review/queue?project=health-plans&limit=1&offset=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &queue)
	require.Equal(t, 1, queue.Count)
	assert.Equal(t, 0.8, queue.Items[0].Confidence)

	rec = e.do(t, http.MethodGet, "/api/review/queue", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
