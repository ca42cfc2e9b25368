package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/model"
)

func TestDimensionLifecycle(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/dimensions", map[string]any{
		"project":     "health-plans",
		"name":        "Sales Motion",
		"data_type":   "enum",
		"enum_values": []string{"PLG", "Sales-led"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var dim model.Dimension
	decode(t, rec, &dim)
	require.NotEmpty(t, dim.ID)
	assert.Equal(t, "sales-motion", dim.Slug)
	assert.Equal(t, model.TypeEnum, dim.DataType)

	rec = e.do(t, http.MethodGet, "/api/dimensions?project=health-plans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Dimensions []model.Dimension `json:"dimensions"`
		Count      int               `json:"count"`
	}
	decode(t, rec, &list)
	require.Equal(t, 1, list.Count)

	rec = e.do(t, http.MethodPost, "/api/dimensions/"+dim.ID+"/values", map[string]any{
		"company_id": "acme-health",
		"value":      "PLG",
	})
	require.Equal(t, http.StatusNoContent, rec.Code)

	// Values outside the declared enum are rejected.
	rec = e.do(t, http.MethodPost, "/api/dimensions/"+dim.ID+"/values", map[string]any{
		"company_id": "acme-health",
		"value":      "Freemium",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/dimensions/"+dim.ID+"/values/bulk", map[string]any{
		"values": []map[string]any{
			{"company_id": "beta-corp", "value": "Sales-led"},
			{"company_id": "gamma-inc", "value": "PLG"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var bulk struct {
		Count int `json:"count"`
	}
	decode(t, rec, &bulk)
	assert.Equal(t, 2, bulk.Count)

	rec = e.do(t, http.MethodGet, "/api/dimensions/"+dim.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &dim)
	assert.Equal(t, 3, dim.ValueCount)

	rec = e.do(t, http.MethodDelete, "/api/dimensions/"+dim.ID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = e.do(t, http.MethodGet, "/api/dimensions/"+dim.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDimensionValidation(t *testing.T) {
	e := newTestEnv(t)

	cases := map[string]map[string]any{
		"missing name": {
			"project": "health-plans",
		},
		"enum without values": {
			"project":   "health-plans",
			"name":      "Tier",
			"data_type": "enum",
		},
		"enum values on non-enum type": {
			"project":     "health-plans",
			"name":        "Notes",
			"data_type":   "text",
			"enum_values": []string{"a"},
		},
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/dimensions", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSetDimensionValue_Validation(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/dimensions", map[string]any{
		"project":   "health-plans",
		"name":      "Churn Risk",
		"data_type": "number",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var dim model.Dimension
	decode(t, rec, &dim)

	rec = e.do(t, http.MethodPost, "/api/dimensions/"+dim.ID+"/values", map[string]any{
		"value": "0.4",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(t, http.MethodPost, "/api/dimensions/"+dim.ID+"/values", map[string]any{
		"company_id": "acme-health",
		"value":      "not a number",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Unknown dimension id surfaces the missing row.
	rec = e.do(t, http.MethodPost, "/api/dimensions/3b241101-e2bb-4255-8caf-4136c566a962/values", map[string]any{
		"company_id": "acme-health",
		"value":      "1",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
