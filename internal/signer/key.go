package signer

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pendergraft/xdeploy/internal/chains"
)

// Client is the subset of ethclient.Client a session needs
type Client interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	Close()
}

// DialFunc connects to an RPC endpoint
type DialFunc func(ctx context.Context, rpcURL string) (Client, error)

func dialEthclient(ctx context.Context, rpcURL string) (Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// KeySigner opens sessions backed by a hot private key
type KeySigner struct {
	key            *ecdsa.PrivateKey
	address        common.Address
	dial           DialFunc
	callTimeout    time.Duration
	pollInterval   time.Duration
	receiptTimeout time.Duration
	logger         *slog.Logger
}

// Option configures a KeySigner
type Option func(*KeySigner)

// WithDialer replaces the RPC dialer
func WithDialer(dial DialFunc) Option {
	return func(s *KeySigner) { s.dial = dial }
}

// WithCallTimeout bounds every individual RPC call
func WithCallTimeout(d time.Duration) Option {
	return func(s *KeySigner) { s.callTimeout = d }
}

// WithPollInterval sets how often receipts and block numbers are polled
func WithPollInterval(d time.Duration) Option {
	return func(s *KeySigner) { s.pollInterval = d }
}

// WithReceiptTimeout bounds how long WaitForReceipt waits in total
func WithReceiptTimeout(d time.Duration) Option {
	return func(s *KeySigner) { s.receiptTimeout = d }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *KeySigner) { s.logger = logger }
}

// NewKeySigner parses a hex private key, with or without 0x prefix
func NewKeySigner(hexKey string, opts ...Option) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	s := &KeySigner{
		key:            key,
		address:        crypto.PubkeyToAddress(key.PublicKey),
		dial:           dialEthclient,
		callTimeout:    30 * time.Second,
		pollInterval:   2 * time.Second,
		receiptTimeout: 5 * time.Minute,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Address returns the signing account
func (s *KeySigner) Address() common.Address {
	return s.address
}

// Open dials the chain's RPC endpoint and checks that it serves the configured chain id
func (s *KeySigner) Open(ctx context.Context, chain chains.Descriptor) (Session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()

	client, err := s.dial(dialCtx, chain.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", chain.Name, err)
	}

	chainID, err := client.ChainID(dialCtx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id on %s: %w", chain.Name, err)
	}
	if chainID.Uint64() != chain.ChainID {
		client.Close()
		return nil, fmt.Errorf("%w: %s reports %s, configured %d", ErrChainIDMismatch, chain.Name, chainID, chain.ChainID)
	}

	return &keySession{
		signer:  s,
		client:  client,
		chainID: chainID,
		logger:  s.logger.With("chain", chain.Name, "chain_id", chain.ChainID),
	}, nil
}

// keySession is single-owner: it is only used by one pipeline goroutine
type keySession struct {
	signer  *KeySigner
	client  Client
	chainID *big.Int
	logger  *slog.Logger

	// nonce is the next nonce to use once the first one has been fetched
	nonce    *uint64
	pending  *types.Transaction
	lastSent TxRequest
}

func (s *keySession) Address() common.Address {
	return s.signer.address
}

func (s *keySession) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.signer.callTimeout)
}

// SignAndSend signs req and broadcasts it. If the previous broadcast of the
// same request failed, the already-signed transaction is rebroadcast so a
// retry never consumes a second nonce.
func (s *keySession) SignAndSend(ctx context.Context, req TxRequest) (common.Hash, error) {
	tx := s.pending
	if tx == nil || !sameRequest(s.lastSent, req) {
		signed, err := s.sign(ctx, req)
		if err != nil {
			return common.Hash{}, err
		}
		tx = signed
		s.pending = tx
		s.lastSent = req
	}

	callCtx, cancel := s.call(ctx)
	defer cancel()
	if err := s.client.SendTransaction(callCtx, tx); err != nil && !alreadySubmitted(err) {
		return common.Hash{}, fmt.Errorf("send transaction: %w", err)
	}

	s.pending = nil
	next := tx.Nonce() + 1
	s.nonce = &next
	s.logger.Info("transaction sent", "tx_hash", tx.Hash().Hex(), "nonce", tx.Nonce())
	return tx.Hash(), nil
}

func (s *keySession) sign(ctx context.Context, req TxRequest) (*types.Transaction, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()

	var nonce uint64
	if s.nonce != nil {
		nonce = *s.nonce
	} else {
		n, err := s.client.PendingNonceAt(callCtx, s.signer.address)
		if err != nil {
			return nil, fmt.Errorf("get nonce: %w", err)
		}
		nonce = n
	}

	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		to := req.To
		estimate, err := s.client.EstimateGas(callCtx, ethereum.CallMsg{
			From:  s.signer.address,
			To:    &to,
			Value: value,
			Data:  req.Data,
		})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
		gasLimit = estimate + estimate/5
	}

	head, err := s.client.HeaderByNumber(callCtx, nil)
	if err != nil {
		return nil, fmt.Errorf("get latest header: %w", err)
	}

	var txData types.TxData
	if head.BaseFee != nil {
		tip, err := s.client.SuggestGasTipCap(callCtx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas tip cap: %w", err)
		}
		feeCap := new(big.Int).Add(new(big.Int).Mul(head.BaseFee, big.NewInt(2)), tip)
		txData = &types.DynamicFeeTx{
			ChainID:   s.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gasLimit,
			To:        &req.To,
			Value:     value,
			Data:      req.Data,
		}
	} else {
		gasPrice, err := s.client.SuggestGasPrice(callCtx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		txData = &types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gasLimit,
			To:       &req.To,
			Value:    value,
			Data:     req.Data,
		}
	}

	signed, err := types.SignTx(types.NewTx(txData), types.LatestSignerForChainID(s.chainID), s.signer.key)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// WaitForReceipt polls until the transaction is mined and buried under
// confirmations blocks (the inclusion block counts as the first).
func (s *keySession) WaitForReceipt(ctx context.Context, hash common.Hash, confirmations uint64) (*types.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.signer.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(s.signer.pollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for {
		if receipt == nil {
			r, err := s.receipt(waitCtx, hash)
			if err != nil {
				return nil, s.waitErr(ctx, waitCtx, err)
			}
			receipt = r
		}
		if receipt != nil {
			head, err := s.blockNumber(waitCtx)
			if err != nil {
				return nil, s.waitErr(ctx, waitCtx, err)
			}
			if head+1 >= receipt.BlockNumber.Uint64()+confirmations {
				return receipt, nil
			}
		}

		select {
		case <-waitCtx.Done():
			return nil, s.waitErr(ctx, waitCtx, waitCtx.Err())
		case <-ticker.C:
		}
	}
}

func (s *keySession) receipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()
	r, err := s.client.TransactionReceipt(callCtx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

func (s *keySession) blockNumber(ctx context.Context) (uint64, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()
	n, err := s.client.BlockNumber(callCtx)
	if err != nil {
		return 0, fmt.Errorf("get block number: %w", err)
	}
	return n, nil
}

// waitErr keeps parent cancellation distinct from the receipt timeout
func (s *keySession) waitErr(parent, wait context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if wait.Err() != nil {
		return fmt.Errorf("%w: %w", ErrReceiptTimeout, context.DeadlineExceeded)
	}
	return err
}

func (s *keySession) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	callCtx, cancel := s.call(ctx)
	defer cancel()
	code, err := s.client.CodeAt(callCtx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("get code at %s: %w", addr.Hex(), err)
	}
	return code, nil
}

func (s *keySession) Close() {
	s.client.Close()
}

func sameRequest(a, b TxRequest) bool {
	if a.To != b.To || a.GasLimit != b.GasLimit || !bytes.Equal(a.Data, b.Data) {
		return false
	}
	av, bv := a.Value, b.Value
	if av == nil {
		av = new(big.Int)
	}
	if bv == nil {
		bv = new(big.Int)
	}
	return av.Cmp(bv) == 0
}

// alreadySubmitted matches node responses to a rebroadcast of a transaction
// the node already has
func alreadySubmitted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") ||
		strings.Contains(msg, "known transaction") ||
		strings.Contains(msg, "already imported")
}
