package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/retry"
)

// Resolver picks the explorer client for a chain
type Resolver interface {
	ForChain(chain chains.Descriptor) (Explorer, error)
}

// AttemptHook observes every submission attempt; outcome is "accepted",
// "already_verified", "not_found", "transient" or "rejected"
type AttemptHook func(kind chains.ExplorerKind, outcome string)

// Dispatcher runs verification tasks: settle delay, submission with bounded
// retries, then polling until a terminal state.
type Dispatcher struct {
	explorers    Resolver
	settleDelay  time.Duration
	policy       retry.Policy
	pollInterval time.Duration
	pollTimeout  time.Duration
	onAttempt    AttemptHook
	logger       *slog.Logger
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithSettleDelay sets the wait between deployment confirmation and first submission
func WithSettleDelay(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.settleDelay = d }
}

// WithRetryPolicy sets the submission attempt bound and backoff
func WithRetryPolicy(p retry.Policy) Option {
	return func(disp *Dispatcher) { disp.policy = p }
}

// WithPolling sets the poll interval and the overall poll timeout per submission
func WithPolling(interval, timeout time.Duration) Option {
	return func(disp *Dispatcher) {
		disp.pollInterval = interval
		disp.pollTimeout = timeout
	}
}

// WithAttemptHook registers an observer of submission attempts
func WithAttemptHook(h AttemptHook) Option {
	return func(disp *Dispatcher) { disp.onAttempt = h }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(disp *Dispatcher) { disp.logger = logger }
}

// NewDispatcher creates a dispatcher with a 30s settle delay and 5 submission attempts
func NewDispatcher(explorers Resolver, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		explorers:    explorers,
		settleDelay:  30 * time.Second,
		policy:       retry.NewPolicy(5, 5*time.Second, 2*time.Minute),
		pollInterval: 5 * time.Second,
		pollTimeout:  5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.policy.MaxAttempts < 1 {
		d.policy.MaxAttempts = 1
	}
	return d
}

// NewTask creates a queued task for a confirmed deployment
func NewTask(chain chains.Descriptor, address common.Address, creationTx common.Hash, bundle *SourceBundle) *Task {
	return &Task{
		ChainID:    chain.ChainID,
		ChainName:  chain.Name,
		Explorer:   chain.ExplorerKind,
		Address:    address,
		CreationTx: creationTx,
		Bundle:     bundle,
		State:      StateQueued,
		URL:        chain.AddressURL(address.Hex()),
	}
}

// Verify runs a task to a terminal state and returns it. A cancelled ctx
// ends the task as failed with the context error as reason.
func (d *Dispatcher) Verify(ctx context.Context, chain chains.Descriptor, address common.Address, creationTx common.Hash, bundle *SourceBundle) Task {
	task := NewTask(chain, address, creationTx, bundle)
	logger := d.logger.With("chain", chain.Name, "chain_id", chain.ChainID, "address", address.Hex(), "explorer", chain.ExplorerKind)

	if bundle == nil {
		return d.finish(logger, task, StateFailed, fmt.Errorf("%w: no source bundle", ErrMalformedBundle))
	}
	if err := bundle.Validate(); err != nil {
		return d.finish(logger, task, StateFailed, err)
	}

	explorer, err := d.explorers.ForChain(chain)
	if err != nil {
		return d.finish(logger, task, StateFailed, err)
	}

	if d.settleDelay > 0 {
		logger.Info("waiting for explorer to index deployment", "settle_delay", d.settleDelay.String())
		if err := retry.Sleep(ctx, d.settleDelay); err != nil {
			return d.finish(logger, task, StateFailed, err)
		}
	}

	for {
		sub, err := d.Submit(ctx, explorer, task)
		if err != nil {
			if ctx.Err() != nil {
				return d.finish(logger, task, StateFailed, ctx.Err())
			}
			if !submitRetryable(err) {
				return d.finish(logger, task, StateFailed, err)
			}
			if task.Attempt >= d.policy.MaxAttempts {
				return d.finish(logger, task, StateFailed, fmt.Errorf("%w after %d attempts: %w", retry.ErrExhausted, task.Attempt, err))
			}
			if err := d.backoff(ctx, logger, task, err); err != nil {
				return d.finish(logger, task, StateFailed, err)
			}
			continue
		}
		if sub.AlreadyVerified {
			task.AlreadyKnown = true
			return d.finish(logger, task, StateVerified, nil)
		}

		res, err := d.pollUntilTerminal(ctx, explorer, task)
		if err != nil {
			if ctx.Err() != nil {
				return d.finish(logger, task, StateFailed, ctx.Err())
			}
			return d.finish(logger, task, StateFailed, err)
		}

		switch res.Status {
		case PollVerified:
			return d.finish(logger, task, StateVerified, nil)
		case PollNotFound:
			notFound := fmt.Errorf("%w: %s", ErrNotFound, res.Message)
			if task.Attempt >= d.policy.MaxAttempts {
				return d.finish(logger, task, StateFailed, fmt.Errorf("%w after %d attempts: %w", retry.ErrExhausted, task.Attempt, notFound))
			}
			if err := d.backoff(ctx, logger, task, notFound); err != nil {
				return d.finish(logger, task, StateFailed, err)
			}
		default:
			return d.finish(logger, task, StateFailed, fmt.Errorf("%w: %s", ErrRejected, res.Message))
		}
	}
}

// Submit performs one submission attempt and moves the task to Submitted
func (d *Dispatcher) Submit(ctx context.Context, explorer Explorer, task *Task) (Submission, error) {
	task.Attempt++
	sub, err := explorer.Submit(ctx, task)
	d.hook(explorer.Kind(), attemptOutcome(sub, err))
	if err != nil {
		return sub, err
	}
	task.State = StateSubmitted
	task.GUID = sub.GUID
	task.SubmittedAt = time.Now()
	return sub, nil
}

// Poll performs one poll and moves the task to Polling
func (d *Dispatcher) Poll(ctx context.Context, explorer Explorer, task *Task) (PollResult, error) {
	task.State = StatePolling
	return explorer.Poll(ctx, task)
}

func (d *Dispatcher) pollUntilTerminal(ctx context.Context, explorer Explorer, task *Task) (PollResult, error) {
	pollCtx, cancel := context.WithTimeout(ctx, d.pollTimeout)
	defer cancel()

	for {
		res, err := d.Poll(pollCtx, explorer, task)
		switch {
		case err == nil && res.Terminal():
			return res, nil
		case err != nil && errors.Is(err, ErrNotFound):
			return PollResult{Status: PollNotFound, Message: err.Error()}, nil
		case err != nil && !submitRetryable(err):
			return PollResult{}, err
		}

		if err := retry.Sleep(pollCtx, d.pollInterval); err != nil {
			if ctx.Err() != nil {
				return PollResult{}, ctx.Err()
			}
			return PollResult{}, fmt.Errorf("%w after %s", ErrPollTimeout, d.pollTimeout)
		}
	}
}

func (d *Dispatcher) backoff(ctx context.Context, logger *slog.Logger, task *Task, cause error) error {
	delay := d.policy.Delay(task.Attempt)
	logger.Warn("verification submission not accepted, retrying",
		"attempt", task.Attempt,
		"max_attempts", d.policy.MaxAttempts,
		"retry_in", delay.String(),
		"error", cause)
	task.State = StateQueued
	return retry.Sleep(ctx, delay)
}

func (d *Dispatcher) finish(logger *slog.Logger, task *Task, state State, err error) Task {
	task.State = state
	task.FinishedAt = time.Now()
	if err != nil {
		task.Reason = err.Error()
	}
	if state == StateVerified {
		logger.Info("contract verified", "attempts", task.Attempt, "already_verified", task.AlreadyKnown, "url", task.URL)
	} else {
		logger.Error("verification failed", "attempts", task.Attempt, "error", err)
	}
	return *task
}

func (d *Dispatcher) hook(kind chains.ExplorerKind, outcome string) {
	if d.onAttempt != nil {
		d.onAttempt(kind, outcome)
	}
}

// submitRetryable: "not indexed yet" and transport faults are retried; every
// other rejection is final
func submitRetryable(err error) bool {
	if errors.Is(err, ErrRejected) || errors.Is(err, ErrMalformedBundle) {
		return false
	}
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnavailable) ||
		retry.IsTransient(err)
}

func attemptOutcome(sub Submission, err error) string {
	switch {
	case err == nil && sub.AlreadyVerified:
		return "already_verified"
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case submitRetryable(err):
		return "transient"
	default:
		return "rejected"
	}
}
