package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/config"
	"github.com/pendergraft/xdeploy/internal/observability/metrics"
	"github.com/pendergraft/xdeploy/internal/storage"
)

type fakeStore struct {
	pingErr error
}

func (f *fakeStore) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	if id == "run-1" {
		return &storage.Run{ID: "run-1", Contract: "Counter"}, nil
	}
	return nil, storage.ErrNotFound
}

func (f *fakeStore) ListRuns(ctx context.Context, filter storage.RunFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Run], error) {
	return &storage.PaginatedResult[storage.Run]{Data: []storage.Run{{ID: "run-1", Contract: "Counter"}}}, nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			RequestTimeout: 5,
			RateLimit:      config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, BurstSize: 3},
		},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

func newTestServer(t *testing.T, cfg *config.Config, store Store) *httptest.Server {
	t.Helper()
	srv := New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts
}

func get(t *testing.T, url string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{})

	for _, p := range []string{"/health", "/healthz", "/readyz"} {
		resp, body := get(t, ts.URL+p)
		assert.Equal(t, http.StatusOK, resp.StatusCode, p)
		assert.Equal(t, "ok", body["status"], p)
	}
}

func TestReady_StoreDown(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{pingErr: errors.New("connection refused")})

	resp, body := get(t, ts.URL+"/readyz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", body["status"])

	resp, _ = get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRunsRoutes(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{})

	resp, body := get(t, ts.URL+"/api/v1/runs")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["data"], 1)

	resp, body = get(t, ts.URL+"/api/v1/runs/run-1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Counter", body["contract"])

	resp, _ = get(t, ts.URL+"/api/v1/runs/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRunsRoutes_APIKeys(t *testing.T) {
	cfg := testConfig()
	cfg.Server.APIKeys = []string{"xd_secret"}
	ts := newTestServer(t, cfg, &fakeStore{})

	resp, body := get(t, ts.URL+"/api/v1/runs")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.NotNil(t, body["error"])

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/v1/runs", nil)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", "xd_secret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// Health endpoints stay open
	resp, _ = get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{})

	resp, body := get(t, ts.URL+"/api/v1/packages")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	errBody, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NOT_FOUND", errBody["code"])
}

func TestMetricsRoute(t *testing.T) {
	metrics.Init(true, "xdeploy-test")
	ts := newTestServer(t, testConfig(), &fakeStore{})
	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cfg := testConfig()
	cfg.Metrics.Enabled = false
	ts = newTestServer(t, cfg, &fakeStore{})
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{})

	var limited bool
	for i := 0; i < 6; i++ {
		resp, _ := get(t, ts.URL+"/api/v1/runs")
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)

	// Health endpoints are never limited
	resp, _ := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, testConfig(), &fakeStore{})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/v1/runs", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestListenAndServe_Shutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, config.ServerConfig{}, "127.0.0.1:0", http.NotFoundHandler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	cancel()
	assert.NoError(t, <-done)
}
