// Package verification submits source verification requests to block
// explorers and polls them until a terminal state.
package verification

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/validation"
)

// Sentinel errors
var (
	// ErrNotFound means the explorer has not indexed the contract yet. Retryable.
	ErrNotFound = errors.New("contract not found by explorer")
	// ErrRejected means the explorer refused the submission. Not retryable.
	ErrRejected = errors.New("verification rejected")
	// ErrRateLimited means the explorer throttled the request. Retryable.
	ErrRateLimited = errors.New("explorer rate limit reached")
	// ErrUnavailable means the explorer answered with a server error. Retryable.
	ErrUnavailable = errors.New("explorer unavailable")
	// ErrMalformedBundle means the source bundle cannot be submitted. Not retryable.
	ErrMalformedBundle = errors.New("malformed source bundle")
	// ErrPollTimeout means the explorer never reached a terminal state
	ErrPollTimeout = errors.New("verification polling timed out")
	// ErrUnsupportedExplorer means no adapter is registered for the chain's explorer kind
	ErrUnsupportedExplorer = errors.New("unsupported explorer kind")
)

// SourceBundle is everything an explorer needs to verify one contract. It is
// shared read-only across all chain pipelines.
type SourceBundle struct {
	StandardJSON       json.RawMessage `json:"standardJsonInput"`
	CompilerVersion    string          `json:"compilerVersion"`    // v0.8.24+commit.e11b9ed9
	ContractIdentifier string          `json:"contractIdentifier"` // contracts/Greeter.sol:Greeter
	ConstructorArgs    []byte          `json:"-"`
	License            string          `json:"license,omitempty"` // SPDX identifier
}

// ContractName is the part of ContractIdentifier after the colon
func (b *SourceBundle) ContractName() string {
	if i := strings.LastIndex(b.ContractIdentifier, ":"); i >= 0 {
		return b.ContractIdentifier[i+1:]
	}
	return b.ContractIdentifier
}

// SourcePath is the part of ContractIdentifier before the colon
func (b *SourceBundle) SourcePath() string {
	if i := strings.LastIndex(b.ContractIdentifier, ":"); i >= 0 {
		return b.ContractIdentifier[:i]
	}
	return ""
}

// ConstructorArgsHex is the ABI-encoded constructor arguments as bare hex
func (b *SourceBundle) ConstructorArgsHex() string {
	return hex.EncodeToString(b.ConstructorArgs)
}

// LongCompilerVersion returns the version with a leading "v", as Etherscan expects
func (b *SourceBundle) LongCompilerVersion() string {
	if strings.HasPrefix(b.CompilerVersion, "v") {
		return b.CompilerVersion
	}
	return "v" + b.CompilerVersion
}

// Validate rejects bundles no explorer could accept
func (b *SourceBundle) Validate() error {
	var problems []string
	if len(b.StandardJSON) == 0 || !json.Valid(b.StandardJSON) {
		problems = append(problems, "standard JSON input is missing or invalid")
	}
	if err := validation.ValidateCompilerVersion(b.CompilerVersion); err != nil {
		problems = append(problems, err.Error())
	}
	if b.SourcePath() == "" || b.ContractName() == "" {
		problems = append(problems, "contract identifier must be path:Name")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrMalformedBundle, strings.Join(problems, "; "))
	}
	return nil
}

// State is the lifecycle of a verification task
type State string

const (
	StateQueued    State = "queued"
	StateSubmitted State = "submitted"
	StatePolling   State = "polling"
	StateVerified  State = "verified"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition can happen
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// Task is the verification job of one chain
type Task struct {
	ChainID      uint64              `json:"chainId"`
	ChainName    string              `json:"chainName"`
	Explorer     chains.ExplorerKind `json:"explorer"`
	Address      common.Address      `json:"address"`
	CreationTx   common.Hash         `json:"creationTx"`
	Bundle       *SourceBundle       `json:"-"`
	Attempt      int                 `json:"attempt"`
	State        State               `json:"state"`
	GUID         string              `json:"guid,omitempty"`
	Reason       string              `json:"reason,omitempty"`
	URL          string              `json:"url,omitempty"`
	SubmittedAt  time.Time           `json:"submittedAt,omitempty"`
	FinishedAt   time.Time           `json:"finishedAt,omitempty"`
	AlreadyKnown bool                `json:"alreadyVerified,omitempty"`
}

// Submission is an explorer's acknowledgement of a submit call
type Submission struct {
	GUID            string
	AlreadyVerified bool
	Message         string
}

// PollStatus is the explorer-side state of a submitted job
type PollStatus string

const (
	PollPending  PollStatus = "pending"
	PollVerified PollStatus = "verified"
	PollFailed   PollStatus = "failed"
	// PollNotFound means the explorer lost the job or has not indexed the code; resubmit
	PollNotFound PollStatus = "not_found"
)

// PollResult is the outcome of one poll
type PollResult struct {
	Status  PollStatus
	Message string
}

// Terminal reports whether polling can stop
func (p PollResult) Terminal() bool {
	return p.Status != PollPending
}
