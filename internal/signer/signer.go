// Package signer provides per-chain signing sessions. A session is owned by
// exactly one chain pipeline for its lifetime and is never shared.
package signer

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/xdeploy/internal/chains"
)

var (
	// ErrChainIDMismatch is returned when an RPC endpoint serves a different chain than configured
	ErrChainIDMismatch = errors.New("rpc endpoint chain id mismatch")
	// ErrReceiptTimeout is returned when a transaction is not mined within the receipt timeout
	ErrReceiptTimeout = errors.New("timed out waiting for receipt")
)

// TxRequest is an unsigned call to send
type TxRequest struct {
	To       common.Address
	Data     []byte
	Value    *big.Int
	GasLimit uint64 // 0 = estimate
}

// Session signs and sends transactions on one chain
type Session interface {
	Address() common.Address
	SignAndSend(ctx context.Context, req TxRequest) (common.Hash, error)
	WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error)
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	Close()
}

// Factory opens a fresh session per chain pipeline
type Factory interface {
	// Address is the account that will sign, known before any session is opened
	Address() common.Address
	Open(ctx context.Context, chain chains.Descriptor) (Session, error)
}
