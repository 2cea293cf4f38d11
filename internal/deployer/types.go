package deployer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Spec is what to deploy. It is shared read-only by every chain pipeline.
type Spec struct {
	ContractName    string
	InitCode        []byte // creation bytecode without constructor arguments
	ConstructorArgs []byte // ABI encoded
	Salt            [32]byte
	Value           *big.Int // forwarded to the factory call, usually nil
	// DeployedCode is the expected runtime bytecode, when known, used to
	// check what is found at the predicted address
	DeployedCode []byte
}

// FullInitCode is the init code with constructor arguments appended
func (s Spec) FullInitCode() []byte {
	out := make([]byte, 0, len(s.InitCode)+len(s.ConstructorArgs))
	out = append(out, s.InitCode...)
	return append(out, s.ConstructorArgs...)
}

// InitCodeHash is keccak256 of FullInitCode
func (s Spec) InitCodeHash() common.Hash {
	return crypto.Keccak256Hash(s.InitCode, s.ConstructorArgs)
}

// Status is the lifecycle of a deployment on one chain
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// SubStatus qualifies a Status
type SubStatus string

const (
	SubStatusNone            SubStatus = ""
	SubStatusAlreadyDeployed SubStatus = "already_deployed"
	SubStatusAddressMismatch SubStatus = "address_mismatch"
)

// Result is the outcome of Deploy on one chain
type Result struct {
	ChainID         uint64         `json:"chainId"`
	Factory         string         `json:"factory"`
	TxHash          common.Hash    `json:"txHash"`
	ContractAddress common.Address `json:"contractAddress"`
	Status          Status         `json:"status"`
	SubStatus       SubStatus      `json:"subStatus,omitempty"`
	Attempts        int            `json:"attempts"`
	BlockNumber     uint64         `json:"blockNumber,omitempty"`
	GasUsed         uint64         `json:"gasUsed,omitempty"`
	CodeMatch       string         `json:"codeMatch,omitempty"` // "full", "partial", "none" or "" when unchecked
	ErrorKind       ErrorKind      `json:"errorKind,omitempty"`
	Err             error          `json:"-"`
}

// Confirmed reports whether the contract is live at ContractAddress
func (r Result) Confirmed() bool {
	return r.Status == StatusConfirmed
}

// Reason is a human readable failure description, empty on success
func (r Result) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
