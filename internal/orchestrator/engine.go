// Package orchestrator runs one pipeline per target chain (deploy, then
// verify) and aggregates the outcomes into a Report.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/deployer"
	"github.com/pendergraft/xdeploy/internal/retry"
	"github.com/pendergraft/xdeploy/internal/signer"
	"github.com/pendergraft/xdeploy/internal/verification"
)

// Deployer deploys a spec on one chain
type Deployer interface {
	Predict(chain chains.Descriptor, spec deployer.Spec) (common.Address, error)
	Deploy(ctx context.Context, chain chains.Descriptor, spec deployer.Spec, sess signer.Session) deployer.Result
}

// Verifier verifies a deployed contract on one chain
type Verifier interface {
	Verify(ctx context.Context, chain chains.Descriptor, address common.Address, creationTx common.Hash, bundle *verification.SourceBundle) verification.Task
}

// Engine drives runs. It holds no per-run state and may run several runs
// concurrently.
type Engine struct {
	registry    *chains.Registry
	deployer    Deployer
	verifier    Verifier
	sessions    signer.Factory
	concurrency int
	verify      bool
	openPolicy  retry.Policy
	observers   []Observer
	logger      *slog.Logger
	locks       *keyedMutex
}

// ErrNoSessions is returned by Run when the engine has no signer factory
var ErrNoSessions = errors.New("orchestrator: no signer sessions")

// Option configures an Engine
type Option func(*Engine)

// WithConcurrency bounds the number of chain pipelines running at once; 0 means unbounded
func WithConcurrency(n int) Option {
	return func(e *Engine) { e.concurrency = n }
}

// WithVerification turns the verification step on or off
func WithVerification(enabled bool) Option {
	return func(e *Engine) { e.verify = enabled }
}

// WithSessionRetry sets the retry policy for opening signer sessions
func WithSessionRetry(p retry.Policy) Option {
	return func(e *Engine) { e.openPolicy = p }
}

// WithObserver adds a run observer
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, o) }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an engine
func New(registry *chains.Registry, d Deployer, v Verifier, sessions signer.Factory, opts ...Option) *Engine {
	e := &Engine{
		registry:   registry,
		deployer:   d,
		verifier:   v,
		sessions:   sessions,
		verify:     true,
		openPolicy: retry.NewPolicy(3, time.Second, 10*time.Second),
		logger:     slog.Default(),
		locks:      newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run deploys spec to every chain in targetIDs and verifies it with source.
// Setup problems are returned before any chain starts; per-chain failures
// are recorded in the report. Verification is skipped only when the engine
// was built with WithVerification(false); a nil source with verification on
// is a *chains.ConfigError.
func (e *Engine) Run(ctx context.Context, targetIDs []uint64, spec deployer.Spec, source *verification.SourceBundle) (Report, error) {
	if e.sessions == nil {
		return Report{}, ErrNoSessions
	}
	targets, err := e.registry.Select(targetIDs)
	if err != nil {
		return Report{}, err
	}
	if e.verify && source == nil {
		return Report{}, &chains.ConfigError{
			Problems: []string{"verification is enabled but no source bundle was given"},
			Err:      verification.ErrMalformedBundle,
		}
	}

	predicted, err := e.deployer.Predict(chains.Descriptor{}, spec)
	if err != nil {
		return Report{}, fmt.Errorf("predicting address: %w", err)
	}

	rep := Report{
		RunID:               uuid.New(),
		Contract:            spec.ContractName,
		Salt:                common.Hash(spec.Salt),
		InitCodeHash:        spec.InitCodeHash(),
		PredictedAddress:    predicted,
		Signer:              e.sessions.Address(),
		VerificationSkipped: !e.verify,
	}

	return e.execute(ctx, rep, targets, func(ctx context.Context, rec *recorder, chain chains.Descriptor) {
		e.pipeline(ctx, rec, chain, spec, source, !rep.VerificationSkipped)
	}), nil
}

// VerifyExisting verifies a contract already deployed at address on every
// target chain. No transaction is sent; chains start in deployed.
func (e *Engine) VerifyExisting(ctx context.Context, targetIDs []uint64, contract string, address common.Address, source *verification.SourceBundle) (Report, error) {
	targets, err := e.registry.Select(targetIDs)
	if err != nil {
		return Report{}, err
	}
	if source == nil {
		return Report{}, fmt.Errorf("%w: no source bundle", verification.ErrMalformedBundle)
	}

	rep := Report{
		RunID:            uuid.New(),
		Contract:         contract,
		PredictedAddress: address,
	}
	return e.execute(ctx, rep, targets, func(ctx context.Context, rec *recorder, chain chains.Descriptor) {
		if ctx.Err() != nil {
			e.cancel(rec, chain, ctx.Err())
			return
		}
		rec.mustTransition(chain.ChainID, StateDeployed, func(cr *ChainReport) {
			cr.Deployment = &DeploymentSummary{
				Address:   address,
				Status:    deployer.StatusConfirmed,
				SubStatus: deployer.SubStatusAlreadyDeployed,
			}
		})
		e.verifyStep(ctx, rec, chain, address, common.Hash{}, source)
	}), nil
}

type pipelineFunc func(ctx context.Context, rec *recorder, chain chains.Descriptor)

func (e *Engine) execute(ctx context.Context, rep Report, targets []chains.Descriptor, run pipelineFunc) Report {
	rep.StartedAt = time.Now().UTC()
	rec := newRecorder(rep.RunID, targets, e.observers, e.logger)
	rep.Chains = rec.snapshot()
	for _, obs := range e.observers {
		obs.RunStarted(rep)
	}

	// Pipelines never return an error, so one chain never cancels another
	var g errgroup.Group
	if e.concurrency > 0 {
		g.SetLimit(e.concurrency)
	}
	for _, chain := range targets {
		chain := chain
		g.Go(func() error {
			run(ctx, rec, chain)
			return nil
		})
	}
	_ = g.Wait()

	rep.FinishedAt = time.Now().UTC()
	rep.Chains = rec.snapshot()
	rep.AddressConsistent = addressConsistent(rep.Chains)
	if !rep.AddressConsistent {
		e.logger.Error("DETERMINISTIC ADDRESS BROKEN: confirmed deployments landed on different addresses", "run_id", rep.RunID)
	}
	for _, obs := range e.observers {
		obs.RunFinished(rep)
	}
	return rep
}

func (e *Engine) pipeline(ctx context.Context, rec *recorder, chain chains.Descriptor, spec deployer.Spec, source *verification.SourceBundle, verify bool) {
	if ctx.Err() != nil {
		e.cancel(rec, chain, ctx.Err())
		return
	}
	rec.mustTransition(chain.ChainID, StateDeploying, nil)

	res := e.deploy(ctx, chain, spec)
	summary := summarizeDeployment(res)
	if !res.Confirmed() {
		if ctx.Err() != nil || res.ErrorKind == deployer.KindCancelled {
			rec.mustTransition(chain.ChainID, StateCancelled, func(cr *ChainReport) {
				cr.Deployment = summary
				cr.Reason = "cancelled during deployment"
			})
			return
		}
		rec.mustTransition(chain.ChainID, StateDeployFailed, func(cr *ChainReport) {
			cr.Deployment = summary
			cr.Reason = res.Reason()
		})
		return
	}
	rec.mustTransition(chain.ChainID, StateDeployed, func(cr *ChainReport) {
		cr.Deployment = summary
	})

	if !verify {
		return
	}
	e.verifyStep(ctx, rec, chain, res.ContractAddress, res.TxHash, source)
}

func (e *Engine) verifyStep(ctx context.Context, rec *recorder, chain chains.Descriptor, address common.Address, creationTx common.Hash, source *verification.SourceBundle) {
	if ctx.Err() != nil {
		e.cancel(rec, chain, ctx.Err())
		return
	}
	rec.mustTransition(chain.ChainID, StateVerifying, nil)

	task := e.verifier.Verify(ctx, chain, address, creationTx, source)
	summary := summarizeVerification(task)
	switch {
	case task.State == verification.StateVerified:
		rec.mustTransition(chain.ChainID, StateVerified, func(cr *ChainReport) {
			cr.Verification = summary
		})
	case ctx.Err() != nil:
		rec.mustTransition(chain.ChainID, StateCancelled, func(cr *ChainReport) {
			cr.Verification = summary
			cr.Reason = "cancelled during verification"
		})
	default:
		rec.mustTransition(chain.ChainID, StateVerifyFailed, func(cr *ChainReport) {
			cr.Verification = summary
			cr.Reason = task.Reason
		})
	}
}

func (e *Engine) cancel(rec *recorder, chain chains.Descriptor, cause error) {
	rec.mustTransition(chain.ChainID, StateCancelled, func(cr *ChainReport) {
		cr.Reason = cause.Error()
	})
}

// deploy opens a session and deploys. Chains sharing a signer and a nonce
// group are deployed one at a time.
func (e *Engine) deploy(ctx context.Context, chain chains.Descriptor, spec deployer.Spec) deployer.Result {
	failed := func(err error) deployer.Result {
		kind := deployer.Classify(err)
		if kind == deployer.KindRPCUnavailable && !errors.Is(err, deployer.ErrRPCUnavailable) {
			err = fmt.Errorf("%w: %w", deployer.ErrRPCUnavailable, err)
		}
		return deployer.Result{ChainID: chain.ChainID, Status: deployer.StatusFailed, ErrorKind: kind, Err: err}
	}

	if chain.NonceGroup != "" && e.sessions != nil {
		key := e.sessions.Address().Hex() + "|" + chain.NonceGroup
		unlock, err := e.locks.Lock(ctx, key)
		if err != nil {
			return failed(err)
		}
		defer unlock()
	}

	var sess signer.Session
	_, err := retry.Do(ctx, e.openPolicy, retry.IsTransient, e.logger.With("chain", chain.Name), func(ctx context.Context, _ int) error {
		s, err := e.sessions.Open(ctx, chain)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		return failed(fmt.Errorf("opening signer session: %w", err))
	}
	defer sess.Close()

	return e.deployer.Deploy(ctx, chain, spec, sess)
}
