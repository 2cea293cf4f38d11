package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ListRuns(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/runs", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Counter", r.URL.Query().Get("contract"))
		assert.Equal(t, "100", r.URL.Query().Get("chain_id"))
		assert.Equal(t, "false", r.URL.Query().Get("success"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "c1", r.URL.Query().Get("cursor"))

		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "run-1", "contract": "Counter", "success": false},
			},
			"pagination": map[string]any{
				"limit":      10,
				"hasMore":    true,
				"nextCursor": "run-1",
			},
		})
	}))
	defer server.Close()

	failed := false
	resp, err := New(server.URL+"/").ListRuns(context.Background(), ListRunsOptions{
		Contract: "Counter",
		ChainID:  100,
		Success:  &failed,
		Limit:    10,
		Cursor:   "c1",
	})
	require.NoError(t, err)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-1", resp.Data[0].ID)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, "run-1", resp.Pagination.NextCursor)
}

func TestClient_ListRuns_NoQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	resp, err := New(server.URL).ListRuns(context.Background(), ListRunsOptions{})
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}

func TestClient_WithAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "xd_secret", r.Header.Get("X-API-Key"))
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	}))
	defer server.Close()

	_, err := New(server.URL, WithAPIKey("xd_secret")).ListRuns(context.Background(), ListRunsOptions{})
	require.NoError(t, err)
}

func TestClient_GetRun(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/runs/run-1", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{
			"id":       "run-1",
			"contract": "Counter",
			"salt":     "0x01",
			"success":  true,
			"chains": []map[string]any{
				{"chainId": 1, "name": "mainnet", "state": "verified", "address": "0xabc"},
			},
			"report": map[string]any{"runId": "run-1"},
		})
	}))
	defer server.Close()

	run, err := New(server.URL).GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", run.ID)
	assert.True(t, run.Success)
	assert.Equal(t, "0x01", run.Salt)
	require.Len(t, run.Chains, 1)
	assert.Equal(t, uint64(1), run.Chains[0].ChainID)
	assert.JSONEq(t, `{"runId":"run-1"}`, string(run.Report))
}

func TestClient_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/runs/missing":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{"code": "NOT_FOUND", "message": "Run not found"},
			})
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}
	}))
	defer server.Close()

	c := New(server.URL)

	_, err := c.GetRun(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "Run not found")

	err = c.Ready(context.Background())
	require.Error(t, err)
	assert.False(t, IsNotFound(err))
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Equal(t, "HTTP_ERROR", apiErr.Code)
}

func TestClient_WithHTTPClient(t *testing.T) {
	custom := &http.Client{}
	c := New("http://localhost", WithHTTPClient(custom))
	assert.Same(t, custom, c.httpClient)
}
