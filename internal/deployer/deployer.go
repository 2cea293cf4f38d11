package deployer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/pendergraft/xdeploy/internal/chains"
	"github.com/pendergraft/xdeploy/internal/chains/evm"
	"github.com/pendergraft/xdeploy/internal/retry"
	"github.com/pendergraft/xdeploy/internal/signer"
)

// Deployer submits CREATE2 deployments through a factory
type Deployer struct {
	factory  Factory
	gasLimit uint64
	policy   retry.Policy
	logger   *slog.Logger
}

// Option configures a Deployer
type Option func(*Deployer)

// WithGasLimit sets the default gas limit; 0 estimates per chain
func WithGasLimit(limit uint64) Option {
	return func(d *Deployer) { d.gasLimit = limit }
}

// WithRetryPolicy sets the backoff for RpcUnavailable failures
func WithRetryPolicy(p retry.Policy) Option {
	return func(d *Deployer) { d.policy = p }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(d *Deployer) { d.logger = logger }
}

// New creates a deployer using factory unless a chain overrides it
func New(factory Factory, opts ...Option) *Deployer {
	d := &Deployer{
		factory: factory,
		policy:  retry.NewPolicy(5, 0, 0),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FactoryFor returns the factory used on chain
func (d *Deployer) FactoryFor(chain chains.Descriptor) (Factory, error) {
	if chain.Factory == "" || chain.Factory == d.factory.Name() {
		return d.factory, nil
	}
	return FactoryByName(chain.Factory)
}

// Predict computes the deterministic address on chain without touching the network
func (d *Deployer) Predict(chain chains.Descriptor, spec Spec) (common.Address, error) {
	f, err := d.FactoryFor(chain)
	if err != nil {
		return common.Address{}, err
	}
	return ComputeAddress(f.Address(), spec.Salt, spec.InitCodeHash()), nil
}

// Deploy deploys spec on chain through sess. The target address is computed
// before anything is sent. Existing code at that address is reported as
// confirmed without sending a transaction. RpcUnavailable failures are
// retried; every other failure ends the chain's deployment.
func (d *Deployer) Deploy(ctx context.Context, chain chains.Descriptor, spec Spec, sess signer.Session) Result {
	logger := d.logger.With("chain", chain.Name, "chain_id", chain.ChainID)

	res := Result{ChainID: chain.ChainID, Status: StatusPending}

	factory, err := d.FactoryFor(chain)
	if err != nil {
		return d.fail(logger, res, err)
	}
	res.Factory = factory.Name()
	res.ContractAddress = ComputeAddress(factory.Address(), spec.Salt, spec.InitCodeHash())
	logger = logger.With("address", res.ContractAddress.Hex(), "factory", factory.Name())

	calldata, err := factory.Calldata(spec.Salt, spec.FullInitCode())
	if err != nil {
		return d.fail(logger, res, err)
	}

	gasLimit := d.gasLimit
	if chain.GasLimit != 0 {
		gasLimit = chain.GasLimit
	}

	var (
		sent    bool // a send was attempted, so the tx may have landed
		runtime []byte
	)
	attempts, err := retry.Do(ctx, d.policy, retryable, logger, func(ctx context.Context, attempt int) error {
		res.Attempts = attempt

		if res.TxHash == (common.Hash{}) {
			code, err := sess.CodeAt(ctx, res.ContractAddress)
			if err != nil {
				return err
			}
			if len(code) > 0 {
				if !sent {
					res.SubStatus = SubStatusAlreadyDeployed
				}
				runtime = code
				return nil
			}

			factoryCode, err := sess.CodeAt(ctx, factory.Address())
			if err != nil {
				return err
			}
			if len(factoryCode) == 0 {
				return fmt.Errorf("%w: %s at %s", ErrFactoryMissing, factory.Name(), factory.Address().Hex())
			}

			sent = true
			hash, err := sess.SignAndSend(ctx, signer.TxRequest{
				To:       factory.Address(),
				Data:     calldata,
				Value:    spec.Value,
				GasLimit: gasLimit,
			})
			if err != nil {
				return err
			}
			res.TxHash = hash
			logger.Info("deployment transaction sent", "tx_hash", hash.Hex())
		}

		receipt, err := sess.WaitForReceipt(ctx, res.TxHash, chain.Confirmations)
		if err != nil {
			return err
		}
		res.BlockNumber = receipt.BlockNumber.Uint64()
		res.GasUsed = receipt.GasUsed
		if receipt.Status != types.ReceiptStatusSuccessful {
			return fmt.Errorf("%w: tx %s", ErrReverted, res.TxHash.Hex())
		}

		code, err := sess.CodeAt(ctx, res.ContractAddress)
		if err != nil {
			return err
		}
		if len(code) == 0 {
			return fmt.Errorf("%w: no code at %s after tx %s", ErrAddressMismatch, res.ContractAddress.Hex(), res.TxHash.Hex())
		}
		runtime = code
		return nil
	})
	res.Attempts = attempts
	if err != nil {
		return d.fail(logger, res, err)
	}

	if len(spec.DeployedCode) > 0 {
		match := evm.CompareBytecode(runtime, spec.DeployedCode)
		res.CodeMatch = match.MatchType
		if !match.Match {
			logger.Warn("runtime bytecode differs from artifact", "detail", match.Message)
		}
	}

	if factory.Name() != d.factory.Name() {
		res.SubStatus = SubStatusAddressMismatch
		logger.Warn("chain overrides the factory, its address differs from the run's",
			"default_factory", d.factory.Name())
	}

	res.Status = StatusConfirmed
	logger.Info("deployment confirmed",
		"tx_hash", res.TxHash.Hex(),
		"attempts", res.Attempts,
		"sub_status", res.SubStatus)
	return res
}

func (d *Deployer) fail(logger *slog.Logger, res Result, err error) Result {
	res.Status = StatusFailed
	res.ErrorKind = Classify(err)
	if res.ErrorKind == KindRPCUnavailable && !errors.Is(err, ErrRPCUnavailable) {
		err = fmt.Errorf("%w: %w", ErrRPCUnavailable, err)
	}
	res.Err = err

	switch res.ErrorKind {
	case KindAddressMismatch, KindFactoryMissing:
		res.SubStatus = SubStatusAddressMismatch
		logger.Error("DETERMINISTIC ADDRESS BROKEN on this chain", "error", err, "kind", res.ErrorKind)
	case KindCancelled:
		logger.Warn("deployment cancelled", "error", err)
	default:
		logger.Error("deployment failed", "error", err, "kind", res.ErrorKind, "attempts", res.Attempts)
	}
	return res
}
