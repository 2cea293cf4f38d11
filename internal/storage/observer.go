package storage

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/xdeploy/internal/orchestrator"
)

const defaultWriteTimeout = 5 * time.Second

// RunRecorder persists run progress as an orchestrator.Observer. Write
// failures are logged and never affect the run.
type RunRecorder struct {
	store   RunStore
	logger  *slog.Logger
	timeout time.Duration
}

var _ orchestrator.Observer = (*RunRecorder)(nil)

// NewRunRecorder creates a recorder writing to store
func NewRunRecorder(store RunStore, logger *slog.Logger) *RunRecorder {
	return &RunRecorder{store: store, logger: logger, timeout: defaultWriteTimeout}
}

func (r *RunRecorder) RunStarted(rep orchestrator.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	run := RunFromReport(rep)
	run.FinishedAt = nil
	run.Report = nil
	if err := r.store.CreateRun(ctx, &run); err != nil {
		r.logger.Error("failed to record run", "run_id", run.ID, "error", err)
		return
	}
	for _, c := range rep.Chains {
		r.saveChain(ctx, run.ID, c, rep.StartedAt)
	}
}

func (r *RunRecorder) ChainTransition(t orchestrator.Transition) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	r.saveChain(ctx, t.RunID.String(), t.Chain, t.At)
}

func (r *RunRecorder) RunFinished(rep orchestrator.Report) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	// Chains that never left not_started produce no transitions
	for _, c := range rep.Chains {
		r.saveChain(ctx, rep.RunID.String(), c, rep.FinishedAt)
	}
	run := RunFromReport(rep)
	if err := r.store.FinishRun(ctx, &run); err != nil {
		r.logger.Error("failed to record run result", "run_id", run.ID, "error", err)
	}
}

func (r *RunRecorder) saveChain(ctx context.Context, runID string, c orchestrator.ChainReport, at time.Time) {
	res := ChainResultFromReport(runID, c, at)
	if err := r.store.SaveChainResult(ctx, &res); err != nil {
		r.logger.Error("failed to record chain state",
			"run_id", runID,
			"chain_id", c.ChainID,
			"state", c.State,
			"error", err)
	}
}

// RunFromReport converts a run report into its stored form
func RunFromReport(rep orchestrator.Report) Run {
	run := Run{
		ID:                rep.RunID.String(),
		Contract:          rep.Contract,
		Salt:              rep.Salt.Hex(),
		PredictedAddress:  rep.PredictedAddress.Hex(),
		Signer:            rep.Signer.Hex(),
		StartedAt:         rep.StartedAt,
		Success:           rep.Success(),
		AddressConsistent: rep.AddressConsistent,
	}
	if !rep.FinishedAt.IsZero() {
		finished := rep.FinishedAt
		run.FinishedAt = &finished
	}
	if raw, err := json.Marshal(rep); err == nil {
		run.Report = raw
	}
	return run
}

// ChainResultFromReport converts a chain report into its stored form
func ChainResultFromReport(runID string, c orchestrator.ChainReport, at time.Time) ChainResult {
	res := ChainResult{
		RunID:     runID,
		ChainID:   c.ChainID,
		Name:      c.Name,
		State:     string(c.State),
		Explorer:  c.Explorer,
		Reason:    c.Reason,
		UpdatedAt: at,
	}
	if d := c.Deployment; d != nil {
		if d.Address != (common.Address{}) {
			res.Address = d.Address.Hex()
		}
		if d.TxHash != (common.Hash{}) {
			res.TxHash = d.TxHash.Hex()
		}
	}
	if raw, err := json.Marshal(c); err == nil {
		res.Detail = raw
	}
	return res
}
