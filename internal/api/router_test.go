package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/curator-cli/internal/attribute"
	"github.com/sells-group/curator-cli/internal/dimension"
	"github.com/sells-group/curator-cli/internal/extraction"
	"github.com/sells-group/curator-cli/internal/jobs"
	"github.com/sells-group/curator-cli/internal/review"
	"github.com/sells-group/curator-cli/internal/store"
	"github.com/sells-group/curator-cli/internal/vocabulary"
)

// testEnv wires the full handler stack against a throwaway SQLite store, the
// same shape the serve command assembles in production.
type testEnv struct {
	router  http.Handler
	store   store.Store
	gateway *jobs.Gateway
	client  *mockAnthropicClient
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))

	client := &mockAnthropicClient{}
	pipe := extraction.NewPipeline(s, nil)
	gw := jobs.New(s, 2,
		extraction.NewExtractRunner(pipe, client, extraction.RunnerConfig{}),
		extraction.NewReportRunner(pipe, client, extraction.RunnerConfig{}),
	)
	t.Cleanup(func() { gw.Close(context.Background()) }) //nolint:errcheck

	h := NewHandlers(gw, pipe,
		review.NewWorkflow(s),
		vocabulary.NewNormalizer(s, client, ""),
		dimension.NewRegistry(s),
		attribute.NewService(s, nil),
	)
	return &testEnv{router: NewRouter(h, nil), store: s, gateway: gw, client: client}
}

// do sends a JSON request through the router. A string body is sent verbatim
// so tests can exercise malformed payloads.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status": "ok"}`, rec.Body.String())
}

func TestErrorMapping(t *testing.T) {
	e := newTestEnv(t)

	cases := map[string]struct {
		method string
		path   string
		body   any
		status int
	}{
		"validation maps to 400": {
			method: http.MethodPost,
			path:   "/api/jobs",
			body:   map[string]any{"entity": "acme-health"},
			status: http.StatusBadRequest,
		},
		"malformed JSON maps to 400": {
			method: http.MethodPost,
			path:   "/api/review",
			body:   `{"result_id": `,
			status: http.StatusBadRequest,
		},
		"missing row maps to 404": {
			method: http.MethodGet,
			path:   "/api/jobs/3b241101-e2bb-4255-8caf-4136c566a962",
			status: http.StatusNotFound,
		},
		"unknown route maps to 404": {
			method: http.MethodGet,
			path:   "/api/nope",
			status: http.StatusNotFound,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rec := e.do(t, tc.method, tc.path, tc.body)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestErrorBodyShape(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(t, http.MethodPost, "/api/jobs", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	assert.Contains(t, body.Error, "project")
}
