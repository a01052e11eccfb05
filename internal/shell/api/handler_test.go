package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/shipmap/internal/engine"
	"github.com/artpar/shipmap/internal/shell/store"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(engine.Config{}, nil, nil)
	return NewHandler(s, e, nil, nil, "test")
}

func fixtureRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "apps", "web")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	compose := "services:\n  web:\n    image: nginx:1.25\n    ports:\n      - \"8080:80\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docker-compose.yml"), []byte(compose), 0o644))
	return root
}

func postAnalysis(t *testing.T, srv *httptest.Server, root string) RunResponse {
	t.Helper()
	body, _ := json.Marshal(AnalyzeRequest{Root: root})
	resp, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	return run
}

func TestHealthEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var health HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "test", health.Version)
}

func TestReadyEndpoint(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ready ReadyResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ok", ready.Checks["database"])
}

func TestCreateAnalysis(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	run := postAnalysis(t, srv, fixtureRepo(t))
	assert.Equal(t, "done", run.Status)
	assert.Equal(t, 1, run.ArtifactCount)
	assert.NotEmpty(t, run.TreeChecksum)
	assert.NotNil(t, run.FinishedAt)
}

func TestCreateAnalysisValidation(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{not json"},
		{"missing root", `{}`},
		{"root not a directory", `{"root": "/no/such/path"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/v1/analyses", "application/json", bytes.NewReader([]byte(tt.body)))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var errResp ErrorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
			assert.Equal(t, "validation_error", errResp.Code)
		})
	}
}

func TestGetAnalysis(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	created := postAnalysis(t, srv, fixtureRepo(t))

	resp, err := http.Get(srv.URL + "/api/v1/analyses/" + created.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got RunResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, created.TreeChecksum, got.TreeChecksum)
}

func TestGetAnalysisNotFound(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/analyses/no-such-run")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	assert.Equal(t, "not_found", errResp.Code)
}

func TestListAnalyses(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	root := fixtureRepo(t)
	postAnalysis(t, srv, root)
	postAnalysis(t, srv, root)

	resp, err := http.Get(srv.URL + "/api/v1/analyses/?limit=1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list RunListResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)
	require.Len(t, list.Runs, 1)
}

func TestGetReport(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	created := postAnalysis(t, srv, fixtureRepo(t))

	resp, err := http.Get(srv.URL + "/api/v1/analyses/" + created.ID + "/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep engine.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	assert.Equal(t, created.ID, rep.RunID)
	assert.Equal(t, 1, rep.ArtifactCount)
	assert.Len(t, rep.Plans, 1)
}

func TestGetReportNotFound(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(t).Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/analyses/no-such-run/report")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
