package deployer

import (
	"context"
	"errors"
	"strings"

	"github.com/pendergraft/xdeploy/internal/retry"
)

var (
	// ErrRPCUnavailable marks connection failures and timeouts; retried
	ErrRPCUnavailable = errors.New("rpc unavailable")
	// ErrInsufficientFunds is fatal for the chain
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrReverted means the deployment transaction or its constructor reverted; fatal
	ErrReverted = errors.New("deployment reverted")
	// ErrAddressMismatch means the factory did not create the contract at the
	// predicted address, i.e. the factory differs from the one on other chains; fatal
	ErrAddressMismatch = errors.New("deployed address does not match predicted address")
	// ErrFactoryMissing means no code lives at the factory address on this chain; fatal
	ErrFactoryMissing = errors.New("create2 factory is not deployed on this chain")
)

// ErrorKind is the failure taxonomy recorded in results and reports
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindRPCUnavailable    ErrorKind = "rpc_unavailable"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindReverted          ErrorKind = "reverted"
	KindAddressMismatch   ErrorKind = "address_mismatch"
	KindFactoryMissing    ErrorKind = "factory_missing"
	KindCancelled         ErrorKind = "cancelled"
	KindUnknown           ErrorKind = "error"
)

// Classify maps an error from a session or the deployer into the taxonomy
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrAddressMismatch):
		return KindAddressMismatch
	case errors.Is(err, ErrFactoryMissing):
		return KindFactoryMissing
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrReverted):
		return KindReverted
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "insufficient funds"):
		return KindInsufficientFunds
	case strings.Contains(msg, "execution reverted"), strings.Contains(msg, "reverted"):
		return KindReverted
	case errors.Is(err, ErrRPCUnavailable), retry.IsTransient(err):
		return KindRPCUnavailable
	}
	return KindUnknown
}

// retryable reports whether a deploy attempt should be repeated
func retryable(err error) bool {
	return Classify(err) == KindRPCUnavailable
}
