package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pendergraft/xdeploy/internal/config"
)

// RunStore persists run history
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	SaveChainResult(ctx context.Context, result *ChainResult) error
	FinishRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter, pagination PaginationParams) (*PaginatedResult[Run], error)
}

// Store combines the run store with lifecycle methods.
// Consumers define their own minimal interfaces based on their actual usage.
type Store interface {
	RunStore

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error
}

// Run is one recorded deployment run
type Run struct {
	ID                string          `json:"id"`
	Contract          string          `json:"contract"`
	Salt              string          `json:"salt"`
	PredictedAddress  string          `json:"predictedAddress"`
	Signer            string          `json:"signer"`
	StartedAt         time.Time       `json:"startedAt"`
	FinishedAt        *time.Time      `json:"finishedAt,omitempty"`
	Success           bool            `json:"success"`
	AddressConsistent bool            `json:"addressConsistent"`
	Report            json.RawMessage `json:"report,omitempty"`
	Chains            []ChainResult   `json:"chains,omitempty"`
}

// Finished reports whether the run has a final report
func (r Run) Finished() bool {
	return r.FinishedAt != nil
}

// ChainResult is the latest known state of one chain of a run
type ChainResult struct {
	RunID     string          `json:"runId"`
	ChainID   uint64          `json:"chainId"`
	Name      string          `json:"name"`
	State     string          `json:"state"`
	Address   string          `json:"address,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	Explorer  string          `json:"explorer,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// RunFilter contains filter options for listing runs
type RunFilter struct {
	Contract string
	ChainID  uint64
	Success  *bool
}

// PaginationParams contains pagination options. Cursor is the id of the
// last run of the previous page.
type PaginationParams struct {
	Limit  int
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T
	HasMore    bool
	NextCursor string
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

func (p PaginationParams) limit() int {
	switch {
	case p.Limit <= 0:
		return DefaultPageLimit
	case p.Limit > MaxPageLimit:
		return MaxPageLimit
	default:
		return p.Limit
	}
}

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
