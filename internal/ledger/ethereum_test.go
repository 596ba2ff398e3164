package ledger

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testContract = "0x8617E340B3D01FA5F11F306F4090FD50E238070D"

type fakeChain struct {
	mu          sync.Mutex
	chainID     *big.Int
	nonce       uint64
	sent        []*types.Transaction
	receipts    map[common.Hash]*types.Receipt
	autoMine    bool
	mineStatus  uint64
	estimateErr error
	sendErr     error
	balance     *big.Int
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		chainID:    big.NewInt(11155111),
		receipts:   make(map[common.Hash]*types.Receipt),
		autoMine:   true,
		mineStatus: types.ReceiptStatusSuccessful,
	}
}

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return f.chainID, nil }

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonce, nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{Number: big.NewInt(100), BaseFee: big.NewInt(2_000_000_000)}, nil
}

func (f *fakeChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return 30_000, nil
}

func (f *fakeChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, tx)
	f.nonce++
	if f.autoMine {
		f.receipts[tx.Hash()] = &types.Receipt{Status: f.mineStatus, TxHash: tx.Hash(), BlockNumber: big.NewInt(101)}
	}
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeChain) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return f.balance, nil
}

func (f *fakeChain) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestGateway(t *testing.T, chain ChainClient) *EthereumGateway {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	gw, err := NewEthereumGateway(chain, EthereumConfig{
		PrivateKey:      "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
		ContractAddress: testContract,
		ConfirmTimeout:  100 * time.Millisecond,
		PollInterval:    5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return gw
}

func submit(t *testing.T, gw *EthereumGateway, op Operation) (TxHandle, error) {
	t.Helper()
	ctx := context.Background()
	signer, err := gw.ConnectSigner(ctx)
	require.NoError(t, err)
	contract, err := gw.Contract(ctx)
	require.NoError(t, err)
	return gw.Submit(ctx, signer, contract, op)
}

func TestEthereumGatewaySubmitAndConfirm(t *testing.T) {
	chain := newFakeChain()
	gw := newTestGateway(t, chain)

	handle, err := submit(t, gw, OpIncreaseBalance)
	require.NoError(t, err)

	hash, err := gw.AwaitConfirmation(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, handle.Hash.Hex(), hash)

	require.Equal(t, 1, chain.sentCount())
	tx := chain.sent[0]
	assert.Equal(t, common.HexToAddress(testContract), *tx.To())
	assert.Equal(t, gw.abi.Methods["increaseBalance"].ID, tx.Data())
	assert.Equal(t, uint64(36_000), tx.Gas())
	assert.Zero(t, chain.chainID.Cmp(tx.ChainId()))

	sender, err := types.Sender(types.LatestSignerForChainID(chain.chainID), tx)
	require.NoError(t, err)
	signer, err := gw.ConnectSigner(context.Background())
	require.NoError(t, err)
	assert.Equal(t, signer.Address, sender)
}

func TestEthereumGatewayEncodesDecrease(t *testing.T) {
	chain := newFakeChain()
	gw := newTestGateway(t, chain)

	_, err := submit(t, gw, OpDecreaseBalance)
	require.NoError(t, err)
	assert.Equal(t, gw.abi.Methods["balanceDecrease"].ID, chain.sent[0].Data())
}

func TestEthereumGatewayRevertedReceipt(t *testing.T) {
	chain := newFakeChain()
	chain.mineStatus = types.ReceiptStatusFailed
	gw := newTestGateway(t, chain)

	handle, err := submit(t, gw, OpDecreaseBalance)
	require.NoError(t, err)
	_, err = gw.AwaitConfirmation(context.Background(), handle)
	assert.ErrorIs(t, err, ErrReverted)
}

func TestEthereumGatewayEstimateFailureIsRevert(t *testing.T) {
	chain := newFakeChain()
	chain.estimateErr = errors.New("execution reverted")
	gw := newTestGateway(t, chain)

	_, err := submit(t, gw, OpDecreaseBalance)
	assert.ErrorIs(t, err, ErrReverted)
	assert.Zero(t, chain.sentCount())
}

func TestEthereumGatewayConfirmationTimeout(t *testing.T) {
	chain := newFakeChain()
	chain.autoMine = false
	gw := newTestGateway(t, chain)

	handle, err := submit(t, gw, OpIncreaseBalance)
	require.NoError(t, err)

	start := time.Now()
	_, err = gw.AwaitConfirmation(context.Background(), handle)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEthereumGatewayMisconfigured(t *testing.T) {
	gw, err := NewEthereumGateway(nil, EthereumConfig{}, zap.NewNop())
	require.NoError(t, err)
	_, err = gw.ConnectSigner(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)

	gw, err = NewEthereumGateway(newFakeChain(), EthereumConfig{PrivateKey: "not-hex"}, zap.NewNop())
	require.NoError(t, err)
	_, err = gw.ConnectSigner(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = gw.Contract(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEthereumGatewayBreakerOpensOnRPCFailures(t *testing.T) {
	chain := newFakeChain()
	chain.sendErr = errors.New("connection refused")
	gw := newTestGateway(t, chain)

	for i := 0; i < breakerFailures; i++ {
		_, err := submit(t, gw, OpIncreaseBalance)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}

	chain.mu.Lock()
	chain.sendErr = nil
	chain.mu.Unlock()

	_, err := submit(t, gw, OpIncreaseBalance)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Zero(t, chain.sentCount())
}

func TestEthereumGatewayBalanceOf(t *testing.T) {
	chain := newFakeChain()
	chain.balance, _ = new(big.Int).SetString("1500000000000000000", 10)
	gw := newTestGateway(t, chain)

	got, err := gw.BalanceOf(context.Background(), testContract)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.String())
}
