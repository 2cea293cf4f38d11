package orchestrator

import (
	"log/slog"

	"github.com/pendergraft/xdeploy/internal/observability/metrics"
)

// Observer is notified as a run progresses. Calls come from pipeline
// goroutines concurrently and must not block for long.
type Observer interface {
	RunStarted(r Report)
	ChainTransition(t Transition)
	RunFinished(r Report)
}

// MetricsObserver records runs into Prometheus
type MetricsObserver struct{}

func (MetricsObserver) RunStarted(Report) {}

func (MetricsObserver) ChainTransition(t Transition) {
	c := t.Chain
	switch t.To {
	case StateDeployed, StateDeployFailed:
		if c.Deployment != nil {
			metrics.Deployment(c.Name, string(c.Deployment.Status), c.Deployment.Attempts)
		}
	case StateVerified, StateVerifyFailed:
		metrics.Verification(c.Name, c.Explorer, string(t.To))
	}
	if t.To.Terminal() {
		metrics.PipelineFinished(c.Name, string(t.To), c.Duration)
	}
}

func (MetricsObserver) RunFinished(r Report) {
	for _, c := range r.Chains {
		if c.State == StateDeployed {
			metrics.PipelineFinished(c.Name, string(c.State), c.Duration)
		}
	}
	switch {
	case r.Success():
		metrics.RunFinished("success")
	case r.Counts()[StateCancelled] > 0:
		metrics.RunFinished("cancelled")
	default:
		metrics.RunFinished("partial")
	}
}

// LogObserver logs every transition, which is the CLI's progress output
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) RunStarted(r Report) {
	o.Logger.Info("run started",
		"run_id", r.RunID,
		"contract", r.Contract,
		"predicted_address", r.PredictedAddress.Hex(),
		"chains", len(r.Chains))
}

func (o LogObserver) ChainTransition(t Transition) {
	attrs := []any{"chain", t.Chain.Name, "chain_id", t.Chain.ChainID, "from", t.From, "to", t.To}
	if t.Chain.Reason != "" {
		attrs = append(attrs, "reason", t.Chain.Reason)
	}
	switch t.To {
	case StateDeployFailed, StateVerifyFailed, StateCancelled:
		o.Logger.Warn("chain state changed", attrs...)
	default:
		o.Logger.Info("chain state changed", attrs...)
	}
}

func (o LogObserver) RunFinished(r Report) {
	o.Logger.Info("run finished",
		"run_id", r.RunID,
		"success", r.Success(),
		"address_consistent", r.AddressConsistent,
		"duration", r.FinishedAt.Sub(r.StartedAt).String())
}
