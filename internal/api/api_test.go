package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/vidpipe/internal/config"
	"github.com/jmylchreest/vidpipe/internal/pipeline/blocks"
	"github.com/jmylchreest/vidpipe/internal/pipeline/core"
)

func newTestServer(t *testing.T) (*Server, *core.Pipeline) {
	t.Helper()

	reg := core.NewRegistry(nil)
	require.NoError(t, blocks.RegisterAll(reg))

	p := core.NewPipeline(reg, nil)
	require.NoError(t, p.Initialize(core.Config{
		Name: "api-test",
		Blocks: []core.BlockDef{
			{Name: "src", Type: "test_pattern", Parameters: core.Params{
				"width": "64", "height": "48", "fps": "30",
			}},
			{Name: "out", Type: "console"},
		},
		Connections: []core.Connection{
			{SourceBlock: "src", SourceOutput: "output", SinkBlock: "out", SinkInput: "input"},
		},
	}))
	t.Cleanup(func() { _ = p.Shutdown() })

	s := NewServer(config.APIConfig{Host: "127.0.0.1", Port: 8080}, nil, "test")
	NewPipelineHandler(p).Register(s.API())
	return s, p
}

func doJSON(t *testing.T, s *Server, method, path string, wantStatus int) map[string]any {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, wantStatus, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestGetStatus(t *testing.T) {
	s, p := newTestServer(t)

	body := doJSON(t, s, http.MethodGet, "/api/v1/status", http.StatusOK)
	assert.Equal(t, "api-test", body["pipeline"])
	assert.Equal(t, p.RunID(), body["run_id"])
	assert.Equal(t, false, body["running"])
	assert.Equal(t, float64(2), body["blocks"])

	host, ok := body["host"].(map[string]any)
	require.True(t, ok)
	assert.GreaterOrEqual(t, host["logical_cpus"].(float64), float64(1))
}

func TestListBlocks(t *testing.T) {
	s, _ := newTestServer(t)

	body := doJSON(t, s, http.MethodGet, "/api/v1/blocks", http.StatusOK)
	list, ok := body["blocks"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)

	first := list[0].(map[string]any)
	assert.Equal(t, "out", first["name"])
	assert.Equal(t, "console", first["type"])
	assert.Equal(t, "initialized", first["state"])
}

func TestGetBlockStats(t *testing.T) {
	s, _ := newTestServer(t)

	body := doJSON(t, s, http.MethodGet, "/api/v1/blocks/src/stats", http.StatusOK)
	assert.Equal(t, "src", body["name"])
	assert.Equal(t, float64(0), body["frames_processed"])

	doJSON(t, s, http.MethodGet, "/api/v1/blocks/ghost/stats", http.StatusNotFound)
}

func TestStartAndStopPipeline(t *testing.T) {
	s, p := newTestServer(t)

	body := doJSON(t, s, http.MethodPost, "/api/v1/pipeline/start", http.StatusOK)
	assert.Equal(t, true, body["running"])
	assert.True(t, p.IsRunning())

	body = doJSON(t, s, http.MethodPost, "/api/v1/pipeline/stop", http.StatusOK)
	assert.Equal(t, false, body["running"])
	assert.False(t, p.IsRunning())
}

func TestStartFailureReturnsConflict(t *testing.T) {
	reg := core.NewRegistry(nil)
	require.NoError(t, blocks.RegisterAll(reg))
	p := core.NewPipeline(reg, nil)

	s := NewServer(config.APIConfig{Host: "127.0.0.1", Port: 8080}, nil, "test")
	NewPipelineHandler(p).Register(s.API())

	// Start without Initialize has no blocks in a startable state.
	doJSON(t, s, http.MethodPost, "/api/v1/pipeline/start", http.StatusConflict)
}
