package signer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/xdeploy/internal/chains"
)

// Well-known development key (anvil/hardhat account #0)
const testKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

type fakeClient struct {
	mu       sync.Mutex
	chainID  int64
	nonce    uint64
	baseFee  *big.Int
	sent     []*types.Transaction
	sendErrs []error
	receipts map[common.Hash]*types.Receipt
	head     uint64
	code     map[common.Address][]byte
	closed   bool
}

func newFakeClient(chainID int64) *fakeClient {
	return &fakeClient{
		chainID:  chainID,
		nonce:    7,
		baseFee:  big.NewInt(1_000_000_000),
		receipts: make(map[common.Hash]*types.Receipt),
		code:     make(map[common.Address][]byte),
	}
}

func (f *fakeClient) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(f.chainID), nil
}

func (f *fakeClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return big.NewInt(100), nil
}

func (f *fakeClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(5_000_000_000), nil
}

func (f *fakeClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(int64(f.head)), BaseFee: f.baseFee}, nil
}

func (f *fakeClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return 100_000, nil
}

func (f *fakeClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	if len(f.sendErrs) > 0 {
		err := f.sendErrs[0]
		f.sendErrs = f.sendErrs[1:]
		return err
	}
	return nil
}

func (f *fakeClient) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeClient) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head++
	return f.head, nil
}

func (f *fakeClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return f.code[account], nil
}

func (f *fakeClient) Close() {
	f.closed = true
}

func openTestSession(t *testing.T, client *fakeClient, opts ...Option) Session {
	t.Helper()
	opts = append([]Option{
		WithDialer(func(ctx context.Context, url string) (Client, error) { return client, nil }),
		WithPollInterval(time.Millisecond),
	}, opts...)

	s, err := NewKeySigner(testKey, opts...)
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())

	sess, err := s.Open(context.Background(), chains.Descriptor{Name: "anvil", ChainID: 31337, RPCEndpoint: "http://127.0.0.1:8545"})
	require.NoError(t, err)
	return sess
}

func TestNewKeySigner_Address(t *testing.T) {
	s, err := NewKeySigner(testKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())

	// accepted without the 0x prefix too
	s, err = NewKeySigner(testKey[2:])
	require.NoError(t, err)
	assert.Equal(t, testAddress, s.Address())
}

func TestNewKeySigner_InvalidKey(t *testing.T) {
	_, err := NewKeySigner("0xnot-a-key")
	assert.Error(t, err)
}

func TestKeySigner_OpenChainIDMismatch(t *testing.T) {
	client := newFakeClient(1)
	s, err := NewKeySigner(testKey, WithDialer(func(ctx context.Context, url string) (Client, error) { return client, nil }))
	require.NoError(t, err)

	_, err = s.Open(context.Background(), chains.Descriptor{Name: "anvil", ChainID: 31337})
	assert.ErrorIs(t, err, ErrChainIDMismatch)
	assert.True(t, client.closed)
}

func TestKeySession_SignAndSend(t *testing.T) {
	client := newFakeClient(31337)
	sess := openTestSession(t, client)
	defer sess.Close()

	to := common.HexToAddress("0x4e59b44847b379578588920cA78FbF26c0B4956C")
	hash, err := sess.SignAndSend(context.Background(), TxRequest{To: to, Data: []byte{0x01}})
	require.NoError(t, err)

	require.Len(t, client.sent, 1)
	tx := client.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint8(types.DynamicFeeTxType), tx.Type())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(120_000), tx.Gas())
	assert.Equal(t, to, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, testAddress, from)

	// The next transaction uses the locally tracked nonce
	_, err = sess.SignAndSend(context.Background(), TxRequest{To: to, Data: []byte{0x02}, GasLimit: 1_200_000})
	require.NoError(t, err)
	require.Len(t, client.sent, 2)
	assert.Equal(t, uint64(8), client.sent[1].Nonce())
	assert.Equal(t, uint64(1_200_000), client.sent[1].Gas())
}

func TestKeySession_RebroadcastsAfterFailedSend(t *testing.T) {
	client := newFakeClient(31337)
	client.sendErrs = []error{errors.New("i/o timeout"), errors.New("already known")}
	sess := openTestSession(t, client)

	req := TxRequest{To: common.HexToAddress("0x01"), Data: []byte{0xaa}}
	_, err := sess.SignAndSend(context.Background(), req)
	require.Error(t, err)

	hash, err := sess.SignAndSend(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, client.sent, 2)
	assert.Equal(t, client.sent[0].Hash(), client.sent[1].Hash())
	assert.Equal(t, client.sent[0].Hash(), hash)
}

func TestKeySession_LegacyWithoutBaseFee(t *testing.T) {
	client := newFakeClient(31337)
	client.baseFee = nil
	sess := openTestSession(t, client)

	_, err := sess.SignAndSend(context.Background(), TxRequest{To: common.HexToAddress("0x01")})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, uint8(types.LegacyTxType), client.sent[0].Type())
	assert.Equal(t, big.NewInt(5_000_000_000), client.sent[0].GasPrice())
}

func TestKeySession_WaitForReceipt(t *testing.T) {
	client := newFakeClient(31337)
	hash := common.HexToHash("0xabc")
	client.receipts[hash] = &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(3), TxHash: hash}
	sess := openTestSession(t, client)

	receipt, err := sess.WaitForReceipt(context.Background(), hash, 4)
	require.NoError(t, err)
	assert.Equal(t, hash, receipt.TxHash)
	// block 3 + 4 confirmations - 1 = head 6
	assert.GreaterOrEqual(t, client.head, uint64(6))
}

func TestKeySession_WaitForReceiptTimeout(t *testing.T) {
	client := newFakeClient(31337)
	sess := openTestSession(t, client, WithReceiptTimeout(20*time.Millisecond))

	_, err := sess.WaitForReceipt(context.Background(), common.HexToHash("0xdead"), 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReceiptTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestKeySession_WaitForReceiptCancelled(t *testing.T) {
	client := newFakeClient(31337)
	sess := openTestSession(t, client)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := sess.WaitForReceipt(ctx, common.HexToHash("0xdead"), 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrReceiptTimeout)
}

func TestKeySession_CodeAt(t *testing.T) {
	client := newFakeClient(31337)
	addr := common.HexToAddress("0x1234")
	client.code[addr] = []byte{0x60, 0x80}
	sess := openTestSession(t, client)

	code, err := sess.CodeAt(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x60, 0x80}, code)
}
