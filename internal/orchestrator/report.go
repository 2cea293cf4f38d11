package orchestrator

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pendergraft/xdeploy/internal/deployer"
	"github.com/pendergraft/xdeploy/internal/verification"
)

// Exit codes of a run
const (
	ExitSuccess = 0
	ExitPartial = 1
)

// DeploymentSummary is the deployment outcome of one chain
type DeploymentSummary struct {
	Factory     string             `json:"factory,omitempty"`
	Address     common.Address     `json:"address"`
	TxHash      common.Hash        `json:"txHash"`
	Status      deployer.Status    `json:"status"`
	SubStatus   deployer.SubStatus `json:"subStatus,omitempty"`
	Attempts    int                `json:"attempts"`
	BlockNumber uint64             `json:"blockNumber,omitempty"`
	GasUsed     uint64             `json:"gasUsed,omitempty"`
	CodeMatch   string             `json:"codeMatch,omitempty"`
	ErrorKind   deployer.ErrorKind `json:"errorKind,omitempty"`
	Reason      string             `json:"reason,omitempty"`
}

func summarizeDeployment(res deployer.Result) *DeploymentSummary {
	return &DeploymentSummary{
		Factory:     res.Factory,
		Address:     res.ContractAddress,
		TxHash:      res.TxHash,
		Status:      res.Status,
		SubStatus:   res.SubStatus,
		Attempts:    res.Attempts,
		BlockNumber: res.BlockNumber,
		GasUsed:     res.GasUsed,
		CodeMatch:   res.CodeMatch,
		ErrorKind:   res.ErrorKind,
		Reason:      res.Reason(),
	}
}

// VerificationSummary is the verification outcome of one chain
type VerificationSummary struct {
	State           verification.State `json:"state"`
	Attempts        int                `json:"attempts"`
	GUID            string             `json:"guid,omitempty"`
	URL             string             `json:"url,omitempty"`
	AlreadyVerified bool               `json:"alreadyVerified,omitempty"`
	Reason          string             `json:"reason,omitempty"`
}

func summarizeVerification(t verification.Task) *VerificationSummary {
	return &VerificationSummary{
		State:           t.State,
		Attempts:        t.Attempt,
		GUID:            t.GUID,
		URL:             t.URL,
		AlreadyVerified: t.AlreadyKnown,
		Reason:          t.Reason,
	}
}

// ChainReport is the outcome of one chain pipeline
type ChainReport struct {
	ChainID      uint64               `json:"chainId"`
	Name         string               `json:"name"`
	Explorer     string               `json:"explorer"`
	State        State                `json:"state"`
	Deployment   *DeploymentSummary   `json:"deployment,omitempty"`
	Verification *VerificationSummary `json:"verification,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	StartedAt    time.Time            `json:"startedAt,omitempty"`
	FinishedAt   time.Time            `json:"finishedAt,omitempty"`
	Duration     time.Duration        `json:"durationNs"`
}

func (c ChainReport) clone() ChainReport {
	if c.Deployment != nil {
		d := *c.Deployment
		c.Deployment = &d
	}
	if c.Verification != nil {
		v := *c.Verification
		c.Verification = &v
	}
	return c
}

// Report is the outcome of a run, with exactly one entry per requested chain
// sorted by chain id
type Report struct {
	RunID               uuid.UUID      `json:"runId"`
	Contract            string         `json:"contract"`
	Salt                common.Hash    `json:"salt"`
	InitCodeHash        common.Hash    `json:"initCodeHash"`
	PredictedAddress    common.Address `json:"predictedAddress"`
	Signer              common.Address `json:"signer"`
	StartedAt           time.Time      `json:"startedAt"`
	FinishedAt          time.Time      `json:"finishedAt"`
	Chains              []ChainReport  `json:"chains"`
	AddressConsistent   bool           `json:"addressConsistent"`
	VerificationSkipped bool           `json:"verificationSkipped,omitempty"`
}

// Success reports whether every chain reached the final state of the run:
// verified, or deployed when verification was skipped
func (r Report) Success() bool {
	if len(r.Chains) == 0 {
		return false
	}
	want := StateVerified
	if r.VerificationSkipped {
		want = StateDeployed
	}
	for _, c := range r.Chains {
		if c.State != want {
			return false
		}
	}
	return true
}

// ExitCode is 0 only when Success
func (r Report) ExitCode() int {
	if r.Success() {
		return ExitSuccess
	}
	return ExitPartial
}

// Complete reports whether every chain reached its final state: a terminal
// state, or deployed when verification was skipped.
func (r Report) Complete() bool {
	for _, c := range r.Chains {
		if c.State.Terminal() {
			continue
		}
		if r.VerificationSkipped && c.State == StateDeployed {
			continue
		}
		return false
	}
	return true
}

// Counts tallies chains per state
func (r Report) Counts() map[State]int {
	out := make(map[State]int)
	for _, c := range r.Chains {
		out[c.State]++
	}
	return out
}

// Chain returns the report of chainID
func (r Report) Chain(chainID uint64) (ChainReport, bool) {
	for _, c := range r.Chains {
		if c.ChainID == chainID {
			return c, true
		}
	}
	return ChainReport{}, false
}

// addressConsistent is true when every confirmed deployment landed on the
// same address. Chains flagged address_mismatch (a factory override) are
// expected elsewhere and left out.
func addressConsistent(chains []ChainReport) bool {
	var first *common.Address
	for _, c := range chains {
		d := c.Deployment
		if d == nil || d.Status != deployer.StatusConfirmed || d.SubStatus == deployer.SubStatusAddressMismatch {
			continue
		}
		if first == nil {
			addr := d.Address
			first = &addr
			continue
		}
		if d.Address != *first {
			return false
		}
	}
	return true
}
