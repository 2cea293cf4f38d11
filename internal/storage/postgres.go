package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// uniqueViolation is the Postgres SQLSTATE for a duplicate key
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		contract TEXT NOT NULL,
		salt TEXT NOT NULL,
		predicted_address TEXT NOT NULL,
		signer TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		address_consistent BOOLEAN NOT NULL DEFAULT TRUE,
		report JSONB
	);

	CREATE TABLE IF NOT EXISTS chain_results (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		chain_id BIGINT NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		address TEXT,
		tx_hash TEXT,
		explorer TEXT,
		reason TEXT,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		detail JSONB,
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
func (s *PostgresStore) CreateRun(ctx context.Context, run *Run) error {
	if err := prepareRun(run); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, contract, salt, predicted_address, signer, started_at, success, address_consistent, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, run.ID, run.Contract, run.Salt, run.PredictedAddress, run.Signer, run.StartedAt.UTC(),
		run.Success, run.AddressConsistent, jsonOrNull(run.Report))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrRunExists, run.ID)
	}
	return err
}

// SaveChainResult inserts or replaces the state of one chain
func (s *PostgresStore) SaveChainResult(ctx context.Context, result *ChainResult) error {
	if result.UpdatedAt.IsZero() {
		result.UpdatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chain_results (run_id, chain_id, name, state, address, tx_hash, explorer, reason, updated_at, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, chain_id) DO UPDATE SET
			name = EXCLUDED.name,
			state = EXCLUDED.state,
			address = EXCLUDED.address,
			tx_hash = EXCLUDED.tx_hash,
			explorer = EXCLUDED.explorer,
			reason = EXCLUDED.reason,
			updated_at = EXCLUDED.updated_at,
			detail = EXCLUDED.detail
	`, result.RunID, int64(result.ChainID), result.Name, result.State, result.Address, result.TxHash,
		result.Explorer, result.Reason, result.UpdatedAt.UTC(), jsonOrNull(result.Detail))
	return err
}

// FinishRun stores the final report of a run
func (s *PostgresStore) FinishRun(ctx context.Context, run *Run) error {
	finished := time.Now()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET finished_at = $1, success = $2, address_consistent = $3, report = $4
		WHERE id = $5
	`, finished.UTC(), run.Success, run.AddressConsistent, jsonOrNull(run.Report), run.ID)
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
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var (
		run      Run
		finished sql.NullTime
		report   []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, contract, salt, predicted_address, signer, started_at, finished_at, success, address_consistent, report
		FROM runs WHERE id = $1
	`, id).Scan(&run.ID, &run.Contract, &run.Salt, &run.PredictedAddress, &run.Signer,
		&run.StartedAt, &finished, &run.Success, &run.AddressConsistent, &report)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if finished.Valid {
		run.FinishedAt = &finished.Time
	}
	run.Report = report

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, chain_id, name, state, address, tx_hash, explorer, reason, updated_at, detail
		FROM chain_results WHERE run_id = $1 ORDER BY chain_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			c                                 ChainResult
			chainID                           int64
			address, txHash, explorer, reason sql.NullString
			detail                            []byte
		)
		if err := rows.Scan(&c.RunID, &chainID, &c.Name, &c.State, &address, &txHash, &explorer, &reason, &c.UpdatedAt, &detail); err != nil {
			return nil, err
		}
		c.ChainID = uint64(chainID)
		c.Address, c.TxHash, c.Explorer, c.Reason = address.String, txHash.String, explorer.String, reason.String
		c.Detail = detail
		run.Chains = append(run.Chains, c)
	}
	return &run, rows.Err()
}

// ListRuns lists runs, most recent first
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter, pagination PaginationParams) (*PaginatedResult[Run], error) {
	query, args := buildListRuns(func(n int) string { return "$" + strconv.Itoa(n) }, filter, pagination)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			finished sql.NullTime
		)
		if err := rows.Scan(&run.ID, &run.Contract, &run.Salt, &run.PredictedAddress, &run.Signer,
			&run.StartedAt, &finished, &run.Success, &run.AddressConsistent); err != nil {
			return nil, err
		}
		if finished.Valid {
			run.FinishedAt = &finished.Time
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return paginate(runs, pagination), nil
}
