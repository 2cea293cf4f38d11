package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(handler http.Handler, path, remote string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remote
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestLimiter_BurstThenBlock(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 2})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/runs", "192.168.1.100:1").Code)
	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/runs", "192.168.1.100:2").Code)

	rr := request(handler, "/api/v1/runs", "192.168.1.100:3")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))

	var body map[string]map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body["error"]["code"])
}

func TestLimiter_PerClient(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/runs", "10.0.0.1:1").Code)
	assert.Equal(t, http.StatusTooManyRequests, request(handler, "/api/v1/runs", "10.0.0.1:2").Code)
	assert.Equal(t, http.StatusOK, request(handler, "/api/v1/runs", "10.0.0.2:1").Code)
	assert.Equal(t, 2, l.Len())
}

func TestLimiter_ExemptPaths(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 1, BurstSize: 1})
	defer l.Stop()
	handler := l.Middleware()(okHandler())

	for i := 0; i < 5; i++ {
		for _, p := range []string{"/health", "/healthz", "/readyz", "/metrics"} {
			assert.Equal(t, http.StatusOK, request(handler, p, "10.0.0.1:1").Code, p)
		}
	}
	assert.Equal(t, 0, l.Len())
}

func TestLimiter_Sweep(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60, BurstSize: 1, IdleTTL: time.Hour})
	defer l.Stop()

	now := time.Now()
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(2 * time.Hour)
	l.Allow("b")

	l.sweep()
	assert.Equal(t, 1, l.Len())
}

func TestLimiter_Concurrent(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 600, BurstSize: 50})
	defer l.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Allow("shared")
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, l.Len())
}

func TestMiddleware_Disabled(t *testing.T) {
	mw, stop := Middleware(Config{Enabled: false, RequestsPerMin: 1, BurstSize: 1})
	defer stop()
	handler := mw(okHandler())

	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, request(handler, "/api/v1/runs", "10.0.0.1:1").Code)
	}
}

func TestLimiter_StopIdempotent(t *testing.T) {
	l := New(Config{Enabled: true, RequestsPerMin: 60})
	l.Stop()
	assert.NotPanics(t, l.Stop)
}
