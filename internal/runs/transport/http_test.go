package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/storage"
)

// mockService implements Service for testing
type mockService struct {
	runs       map[string]*storage.Run
	listErr    error
	lastFilter storage.RunFilter
	lastPage   storage.PaginationParams
}

func (m *mockService) GetRun(ctx context.Context, id string) (*storage.Run, error) {
	if r, ok := m.runs[id]; ok {
		return r, nil
	}
	return nil, storage.ErrNotFound
}

func (m *mockService) ListRuns(ctx context.Context, filter storage.RunFilter, pagination storage.PaginationParams) (*storage.PaginatedResult[storage.Run], error) {
	m.lastFilter = filter
	m.lastPage = pagination
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []storage.Run
	for _, r := range m.runs {
		out = append(out, *r)
	}
	return &storage.PaginatedResult[storage.Run]{Data: out, HasMore: true, NextCursor: "next"}, nil
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/runs", NewHandler(svc).RegisterRoutes)
	return r
}

func newMockService() *mockService {
	finished := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	return &mockService{runs: map[string]*storage.Run{
		"run-1": {
			ID:                "run-1",
			Contract:          "Counter",
			Salt:              "0x01",
			PredictedAddress:  "0xabc",
			StartedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			FinishedAt:        &finished,
			Success:           true,
			AddressConsistent: true,
			Report:            json.RawMessage(`{"runId":"run-1"}`),
			Chains: []storage.ChainResult{
				{ChainID: 1, Name: "mainnet", State: "verified", Address: "0xabc"},
			},
		},
	}}
}

func TestHandleList(t *testing.T) {
	svc := newMockService()
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5&contract=Counter&chain_id=1&success=true&cursor=abc", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp RunListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "run-1", resp.Data[0].ID)
	assert.Equal(t, 5, resp.Pagination.Limit)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, "next", resp.Pagination.NextCursor)

	assert.Equal(t, "Counter", svc.lastFilter.Contract)
	assert.Equal(t, uint64(1), svc.lastFilter.ChainID)
	require.NotNil(t, svc.lastFilter.Success)
	assert.True(t, *svc.lastFilter.Success)
	assert.Equal(t, "abc", svc.lastPage.Cursor)
}

func TestHandleList_BadQuery(t *testing.T) {
	router := setupRouter(newMockService())

	for _, q := range []string{"limit=0", "limit=101", "limit=x", "chain_id=0", "chain_id=-1", "success=maybe"} {
		t.Run(q, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
		})
	}
}

func TestHandleList_StoreError(t *testing.T) {
	svc := newMockService()
	svc.listErr = errors.New("db down")

	rec := httptest.NewRecorder()
	setupRouter(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleGet(t *testing.T) {
	router := setupRouter(newMockService())

	t.Run("found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var resp RunResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "run-1", resp.ID)
		assert.Equal(t, "0x01", resp.Salt)
		require.Len(t, resp.Chains, 1)
		assert.Equal(t, "verified", resp.Chains[0].State)
		assert.JSONEq(t, `{"runId":"run-1"}`, string(resp.Report))
	})

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	})
}
