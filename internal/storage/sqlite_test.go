package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "runs.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("CreateAndGetRun", func(t *testing.T) {
		run := &Run{
			ID:               "run-1",
			Contract:         "src/Counter.sol:Counter",
			Salt:             "0x01",
			PredictedAddress: "0xAbC0000000000000000000000000000000000001",
			Signer:           "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
			StartedAt:        started,
		}
		require.NoError(t, store.CreateRun(ctx, run))

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, run.Contract, got.Contract)
		assert.Equal(t, run.PredictedAddress, got.PredictedAddress)
		assert.True(t, got.StartedAt.Equal(started))
		assert.False(t, got.Finished())
		assert.Empty(t, got.Chains)
	})

	t.Run("DuplicateRun", func(t *testing.T) {
		err := store.CreateRun(ctx, &Run{ID: "run-1", Contract: "X"})
		assert.ErrorIs(t, err, ErrRunExists)
	})

	t.Run("InvalidRun", func(t *testing.T) {
		err := store.CreateRun(ctx, &Run{})
		assert.ErrorIs(t, err, ErrInvalidRun)
	})

	t.Run("GeneratedID", func(t *testing.T) {
		run := &Run{Contract: "Other"}
		require.NoError(t, store.CreateRun(ctx, run))
		assert.NotEmpty(t, run.ID)
		assert.False(t, run.StartedAt.IsZero())
	})

	t.Run("SaveChainResultUpserts", func(t *testing.T) {
		require.NoError(t, store.SaveChainResult(ctx, &ChainResult{
			RunID: "run-1", ChainID: 100, Name: "gnosis", State: "deploying",
		}))
		require.NoError(t, store.SaveChainResult(ctx, &ChainResult{
			RunID: "run-1", ChainID: 1, Name: "mainnet", State: "deployed",
			Address: "0xAbC0000000000000000000000000000000000001", TxHash: "0x02",
			Detail: json.RawMessage(`{"chainId":1}`),
		}))
		require.NoError(t, store.SaveChainResult(ctx, &ChainResult{
			RunID: "run-1", ChainID: 100, Name: "gnosis", State: "deploy_failed", Reason: "out of gas",
		}))

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		require.Len(t, got.Chains, 2)
		assert.Equal(t, uint64(1), got.Chains[0].ChainID)
		assert.Equal(t, "0x02", got.Chains[0].TxHash)
		assert.JSONEq(t, `{"chainId":1}`, string(got.Chains[0].Detail))
		assert.Equal(t, "deploy_failed", got.Chains[1].State)
		assert.Equal(t, "out of gas", got.Chains[1].Reason)
	})

	t.Run("ChainResultRequiresRun", func(t *testing.T) {
		err := store.SaveChainResult(ctx, &ChainResult{RunID: "missing", ChainID: 1, Name: "mainnet", State: "deploying"})
		assert.Error(t, err)
	})

	t.Run("FinishRun", func(t *testing.T) {
		finished := started.Add(time.Minute)
		run := &Run{
			ID:                "run-1",
			FinishedAt:        &finished,
			Success:           false,
			AddressConsistent: true,
			Report:            json.RawMessage(`{"runId":"run-1"}`),
		}
		require.NoError(t, store.FinishRun(ctx, run))

		got, err := store.GetRun(ctx, "run-1")
		require.NoError(t, err)
		require.True(t, got.Finished())
		assert.True(t, got.FinishedAt.Equal(finished))
		assert.True(t, got.AddressConsistent)
		assert.JSONEq(t, `{"runId":"run-1"}`, string(got.Report))

		assert.ErrorIs(t, store.FinishRun(ctx, &Run{ID: "missing"}), ErrNotFound)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		_, err := store.GetRun(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}

func TestSQLiteStore_ListRuns(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		contract := "Counter"
		if i%2 == 1 {
			contract = "Token"
		}
		run := &Run{
			ID:        fmt.Sprintf("run-%d", i),
			Contract:  contract,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, store.CreateRun(ctx, run))
		run.Success = i == 4
		require.NoError(t, store.FinishRun(ctx, run))
	}
	require.NoError(t, store.SaveChainResult(ctx, &ChainResult{RunID: "run-2", ChainID: 100, Name: "gnosis", State: "verified"}))

	t.Run("most recent first with cursor", func(t *testing.T) {
		page, err := store.ListRuns(ctx, RunFilter{}, PaginationParams{Limit: 2})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "run-4", page.Data[0].ID)
		assert.Equal(t, "run-3", page.Data[1].ID)
		assert.True(t, page.HasMore)
		assert.Equal(t, "run-3", page.NextCursor)

		page, err = store.ListRuns(ctx, RunFilter{}, PaginationParams{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Data, 2)
		assert.Equal(t, "run-2", page.Data[0].ID)

		page, err = store.ListRuns(ctx, RunFilter{}, PaginationParams{Limit: 2, Cursor: page.NextCursor})
		require.NoError(t, err)
		require.Len(t, page.Data, 1)
		assert.False(t, page.HasMore)
		assert.Empty(t, page.NextCursor)
	})

	t.Run("filters", func(t *testing.T) {
		success := true
		tests := []struct {
			name    string
			filter  RunFilter
			wantIDs []string
		}{
			{name: "contract", filter: RunFilter{Contract: "Token"}, wantIDs: []string{"run-3", "run-1"}},
			{name: "chain", filter: RunFilter{ChainID: 100}, wantIDs: []string{"run-2"}},
			{name: "success", filter: RunFilter{Success: &success}, wantIDs: []string{"run-4"}},
			{name: "no match", filter: RunFilter{Contract: "Nope"}, wantIDs: []string{}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				page, err := store.ListRuns(ctx, tt.filter, PaginationParams{})
				require.NoError(t, err)
				ids := make([]string, 0, len(page.Data))
				for _, r := range page.Data {
					ids = append(ids, r.ID)
				}
				assert.Equal(t, tt.wantIDs, ids)
			})
		}
	})
}

func TestPaginationParams_Limit(t *testing.T) {
	assert.Equal(t, DefaultPageLimit, PaginationParams{}.limit())
	assert.Equal(t, MaxPageLimit, PaginationParams{Limit: 1000}.limit())
	assert.Equal(t, 7, PaginationParams{Limit: 7}.limit())
}
