package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pendergraft/xdeploy/internal/chains"
)

// ErrInvalidTransition is returned when a pipeline tries a state change the
// state machine does not allow
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

// State is the pipeline state of one chain
type State string

const (
	StateNotStarted   State = "not_started"
	StateDeploying    State = "deploying"
	StateDeployed     State = "deployed"
	StateDeployFailed State = "deploy_failed"
	StateVerifying    State = "verifying"
	StateVerified     State = "verified"
	StateVerifyFailed State = "verify_failed"
	StateCancelled    State = "cancelled"
)

// transitions lists the allowed next states. not_started -> deployed is
// used when verifying an existing deployment.
var transitions = map[State][]State{
	StateNotStarted: {StateDeploying, StateDeployed, StateCancelled},
	StateDeploying:  {StateDeployed, StateDeployFailed, StateCancelled},
	StateDeployed:   {StateVerifying, StateCancelled},
	StateVerifying:  {StateVerified, StateVerifyFailed, StateCancelled},
}

// CanTransition reports whether from -> to is allowed
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Terminal reports whether no transition leaves s. deployed is not terminal
// even though a run without verification ends there.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// Transition is one recorded state change
type Transition struct {
	RunID uuid.UUID
	From  State
	To    State
	At    time.Time
	// Chain is a snapshot of the chain's report after the change
	Chain ChainReport
}

// recorder owns the per-chain reports of one run. Pipelines only touch
// their own chain, but observers and the final report read all of them.
type recorder struct {
	mu        sync.Mutex
	runID     uuid.UUID
	chains    map[uint64]*ChainReport
	observers []Observer
	logger    *slog.Logger
}

func newRecorder(runID uuid.UUID, targets []chains.Descriptor, observers []Observer, logger *slog.Logger) *recorder {
	r := &recorder{
		runID:     runID,
		chains:    make(map[uint64]*ChainReport, len(targets)),
		observers: observers,
		logger:    logger,
	}
	for _, c := range targets {
		r.chains[c.ChainID] = &ChainReport{
			ChainID:  c.ChainID,
			Name:     c.Name,
			Explorer: string(c.ExplorerKind),
			State:    StateNotStarted,
		}
	}
	return r
}

// transition moves a chain to state to, applying update under the lock,
// then notifies observers
func (r *recorder) transition(chainID uint64, to State, update func(*ChainReport)) error {
	r.mu.Lock()
	cr, ok := r.chains[chainID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("chain %d is not part of run %s", chainID, r.runID)
	}
	from := cr.State
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("%w: chain %d %s -> %s", ErrInvalidTransition, chainID, from, to)
	}

	now := time.Now().UTC()
	if cr.StartedAt.IsZero() {
		cr.StartedAt = now
	}
	cr.State = to
	cr.FinishedAt = now
	cr.Duration = now.Sub(cr.StartedAt)
	if update != nil {
		update(cr)
	}
	snapshot := cr.clone()
	r.mu.Unlock()

	t := Transition{RunID: r.runID, From: from, To: to, At: now, Chain: snapshot}
	for _, obs := range r.observers {
		obs.ChainTransition(t)
	}
	return nil
}

// mustTransition logs instead of failing; an invalid transition is a bug in
// the pipeline, not a chain failure
func (r *recorder) mustTransition(chainID uint64, to State, update func(*ChainReport)) {
	if err := r.transition(chainID, to, update); err != nil {
		r.logger.Error("state transition rejected", "error", err)
	}
}

func (r *recorder) state(chainID uint64) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.chains[chainID].State
}

// snapshot copies all chain reports sorted by chain id
func (r *recorder) snapshot() []ChainReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChainReport, 0, len(r.chains))
	for _, cr := range r.chains {
		out = append(out, cr.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
