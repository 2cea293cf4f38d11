package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Chain pipelines write concurrently; one connection serializes them
	// instead of surfacing SQLITE_BUSY
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		salt TEXT NOT NULL,
		predicted_address TEXT NOT NULL,
		signer TEXT NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT,
		success INTEGER NOT NULL DEFAULT 0,
		address_consistent INTEGER NOT NULL DEFAULT 1,
		report TEXT
	);

	CREATE TABLE IF NOT EXISTS chain_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		chain_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		address TEXT,
		tx_hash TEXT,
		explorer TEXT,
		reason TEXT,
		updated_at TEXT NOT NULL,
		detail TEXT,
		PRIMARY KEY (run_id, chain_id)
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at, id);
	CREATE INDEX IF NOT EXISTS idx_runs_contract ON runs(contract);
	CREATE INDEX IF NOT EXISTS idx_chain_results_chain ON chain_results(chain_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations completed")
	return nil
}

// CreateRun records the start of a run
func (s *SQLiteStore) CreateRun(ctx context.Context, run *Run) error {
	if err := prepareRun(run); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, contract, salt, predicted_address, signer, started_at, success, address_consistent, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.Contract, run.Salt, run.PredictedAddress, run.Signer, formatTime(run.StartedAt),
		run.Success, run.AddressConsistent, jsonOrNull(run.Report))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	return err
}

// SaveChainResult inserts or replaces the state of one chain
func (s *SQLiteStore) SaveChainResult(ctx context.Context, result *ChainResult) error {
	if result.UpdatedAt.IsZero() {
		result.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_results (run_id, chain_id, name, state, address, tx_hash, explorer, reason, updated_at, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id, chain_id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			address = excluded.address,
			tx_hash = excluded.tx_hash,
			explorer = excluded.explorer,
			reason = excluded.reason,
			updated_at = excluded.updated_at,
			detail = excluded.detail
	`, result.RunID, int64(result.ChainID), result.Name, result.State, result.Address, result.TxHash,
		result.Explorer, result.Reason, formatTime(result.UpdatedAt), jsonOrNull(result.Detail))
	return err
}

// FinishRun stores the final report of a run
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = ?, success = ?, address_consistent = ?, report = ?
		WHERE id = ?
	`, formatTime(finished), run.Success, run.AddressConsistent, jsonOrNull(run.Report), run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	run.FinishedAt = &finished
	return nil
}

// GetRun retrieves a run with its chain results
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, contract, salt, predicted_address, signer, started_at, finished_at, success, address_consistent, report
		FROM runs WHERE id = ?
	`, id)

	var (
		run      Run
		started  string
		finished sql.NullString
		report   sql.NullString
	)
	err := row.Scan(&run.ID, &run.Contract, &run.Salt, &run.PredictedAddress, &run.Signer,
		&started, &finished, &run.Success, &run.AddressConsistent, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.fillTimes(&run, started, finished); err != nil {
		return nil, err
	}
	if report.Valid {
		run.Report = []byte(report.String)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, chain_id, name, state, address, tx_hash, explorer, reason, updated_at, detail
		FROM chain_results WHERE run_id = ? ORDER BY chain_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                                         ChainResult
			address, txHash, explorer, reason, detail sql.NullString
			chainID                                   int64
			updated                                   string
		)
		if err := rows.Scan(&c.RunID, &chainID, &c.Name, &c.State, &address, &txHash, &explorer, &reason, &updated, &detail); err != nil {
			return nil, err
		}
		c.ChainID = uint64(chainID)
		c.Address, c.TxHash, c.Explorer, c.Reason = address.String, txHash.String, explorer.String, reason.String
		if c.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if detail.Valid {
			c.Detail = []byte(detail.String)
		}
		run.Chains = append(run.Chains, c)
	}
	return &run, rows.Err()
}

// ListRuns lists runs, most recent first
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter, pagination PaginationParams) (*PaginatedResult[Run], error) {
	query, args := buildListRuns(func(int) string { return "?" }, filter, pagination)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&run.ID, &run.Contract, &run.Salt, &run.PredictedAddress, &run.Signer,
			&started, &finished, &run.Success, &run.AddressConsistent); err != nil {
			return nil, err
		}
		if err := s.fillTimes(&run, started, finished); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(runs, pagination), nil
}

func (s *SQLiteStore) fillTimes(run *Run, started string, finished sql.NullString) error {
	t, err := parseTime(started)
	if err != nil {
		return err
	}
	run.StartedAt = t
	if finished.Valid {
		f, err := parseTime(finished.String)
		if err != nil {
			return err
		}
		run.FinishedAt = &f
	}
	return nil
}
