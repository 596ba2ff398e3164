package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const balanceABI = `[
	{"inputs":[],"name":"increaseBalance","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"balanceDecrease","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

const (
	weiDecimals      = 18
	gasHeadroomPct   = 20
	breakerFailures  = 5
	breakerOpenDelay = 30 * time.Second
)

// ChainClient is the subset of ethclient.Client used by the gateway.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// EthereumConfig holds the signer key, contract address and confirmation
// bounds. Empty values surface as ErrUnavailable on first use rather than at
// startup.
type EthereumConfig struct {
	PrivateKey      string
	ContractAddress string
	ConfirmTimeout  time.Duration
	PollInterval    time.Duration
}

// EthereumGateway submits EIP-1559 transactions to the balance contract.
type EthereumGateway struct {
	client  ChainClient
	cfg     EthereumConfig
	abi     abi.ABI
	breaker *gobreaker.CircuitBreaker[TxHandle]
	logger  *zap.Logger

	chainMu sync.Mutex
	chainID *big.Int

	// nonceMu serialises nonce selection and broadcast for the shared signer.
	nonceMu sync.Mutex
}

// NewEthereumGateway builds a gateway. client may be nil when no RPC
// endpoint is configured.
func NewEthereumGateway(client ChainClient, cfg EthereumConfig, logger *zap.Logger) (*EthereumGateway, error) {
	parsed, err := abi.JSON(strings.NewReader(balanceABI))
	if err != nil {
		return nil, fmt.Errorf("parse contract abi: %w", err)
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	g := &EthereumGateway{client: client, cfg: cfg, abi: parsed, logger: logger}
	g.breaker = gobreaker.NewCircuitBreaker[TxHandle](gobreaker.Settings{
		Name:    "ledger-submit",
		Timeout: breakerOpenDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailures
		},
		IsSuccessful: func(err error) bool {
			// Reverts and caller cancellations say nothing about RPC health.
			return err == nil || errors.Is(err, ErrReverted) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return g, nil
}

func (g *EthereumGateway) ConnectSigner(_ context.Context) (Signer, error) {
	if g.client == nil {
		return Signer{}, fmt.Errorf("%w: rpc endpoint not configured", ErrUnavailable)
	}
	raw := strings.TrimPrefix(strings.TrimSpace(g.cfg.PrivateKey), "0x")
	if raw == "" {
		return Signer{}, fmt.Errorf("%w: signer key not configured", ErrUnavailable)
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return Signer{}, fmt.Errorf("%w: signer key invalid", ErrUnavailable)
	}
	return Signer{Address: crypto.PubkeyToAddress(key.PublicKey), key: key}, nil
}

func (g *EthereumGateway) Contract(_ context.Context) (Contract, error) {
	addr := strings.TrimSpace(g.cfg.ContractAddress)
	if !common.IsHexAddress(addr) {
		return Contract{}, fmt.Errorf("%w: contract address not configured", ErrUnavailable)
	}
	return Contract{Address: common.HexToAddress(addr)}, nil
}

// Submit signs and broadcasts a call to op. RPC failures count against a
// circuit breaker; while it is open Submit fails fast with ErrUnavailable.
func (g *EthereumGateway) Submit(ctx context.Context, signer Signer, contract Contract, op Operation) (TxHandle, error) {
	if !op.valid() {
		return TxHandle{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}
	if g.client == nil || signer.key == nil {
		return TxHandle{}, fmt.Errorf("%w: signer not connected", ErrUnavailable)
	}
	data, err := g.abi.Pack(string(op))
	if err != nil {
		return TxHandle{}, fmt.Errorf("pack %s: %w", op, err)
	}

	handle, err := g.breaker.Execute(func() (TxHandle, error) {
		return g.send(ctx, signer, contract, op, data)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return TxHandle{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return handle, err
}

func (g *EthereumGateway) send(ctx context.Context, signer Signer, contract Contract, op Operation, data []byte) (TxHandle, error) {
	chainID, err := g.chain(ctx)
	if err != nil {
		return TxHandle{}, err
	}

	to := contract.Address
	gas, err := g.client.EstimateGas(ctx, ethereum.CallMsg{From: signer.Address, To: &to, Data: data})
	if err != nil {
		if ctx.Err() != nil {
			return TxHandle{}, ctx.Err()
		}
		return TxHandle{}, fmt.Errorf("%w: estimate gas: %v", ErrReverted, err)
	}
	gas += gas * gasHeadroomPct / 100

	tip, err := g.client.SuggestGasTipCap(ctx)
	if err != nil {
		return TxHandle{}, fmt.Errorf("suggest gas tip: %w", err)
	}
	head, err := g.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return TxHandle{}, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	g.nonceMu.Lock()
	defer g.nonceMu.Unlock()

	nonce, err := g.client.PendingNonceAt(ctx, signer.Address)
	if err != nil {
		return TxHandle{}, fmt.Errorf("pending nonce: %w", err)
	}
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Data:      data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), signer.key)
	if err != nil {
		return TxHandle{}, fmt.Errorf("sign transaction: %w", err)
	}
	if err := g.client.SendTransaction(ctx, signed); err != nil {
		return TxHandle{}, fmt.Errorf("send transaction: %w", err)
	}

	g.logger.Info("ledger transaction submitted",
		zap.String("op", string(op)),
		zap.String("tx_hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)
	return TxHandle{Hash: signed.Hash(), Operation: op, SubmittedAt: time.Now().UTC()}, nil
}

func (g *EthereumGateway) chain(ctx context.Context) (*big.Int, error) {
	g.chainMu.Lock()
	defer g.chainMu.Unlock()
	if g.chainID != nil {
		return g.chainID, nil
	}
	id, err := g.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	g.chainID = id
	return id, nil
}

// AwaitConfirmation polls for the receipt until it is available or the
// confirmation bound elapses.
func (g *EthereumGateway) AwaitConfirmation(ctx context.Context, handle TxHandle) (string, error) {
	if g.client == nil {
		return "", fmt.Errorf("%w: rpc endpoint not configured", ErrUnavailable)
	}
	ctx, cancel := context.WithTimeout(ctx, g.cfg.ConfirmTimeout)
	defer cancel()

	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.client.TransactionReceipt(ctx, handle.Hash)
		switch {
		case err == nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				return "", fmt.Errorf("%w: %s in block %s", ErrReverted, handle.Hash.Hex(), receipt.BlockNumber)
			}
			return handle.Hash.Hex(), nil
		case errors.Is(err, ethereum.NotFound):
		case ctx.Err() == nil:
			g.logger.Debug("receipt lookup failed", zap.String("tx_hash", handle.Hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %s: %v", ErrTimeout, handle.Hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// BalanceOf returns the native balance of address in ETH.
func (g *EthereumGateway) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	if g.client == nil {
		return decimal.Zero, fmt.Errorf("%w: rpc endpoint not configured", ErrUnavailable)
	}
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	wei, err := g.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", address, err)
	}
	return decimal.NewFromBigInt(wei, -weiDecimals), nil
}
