package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	inMemorySigner   = common.HexToAddress("0x00000000000000000000000000000000000A11CE")
	inMemoryContract = common.HexToAddress("0x000000000000000000000000000000000000C0DE")
)

type memTx struct {
	op       Operation
	reverted bool
}

// InMemory is a Gateway that mimics the balance contract in process. A
// decrease below zero reverts, as the deployed contract does. It backs local
// development and tests.
type InMemory struct {
	mu             sync.Mutex
	counters       map[common.Address]int64
	txs            map[common.Hash]memTx
	native         map[common.Address]decimal.Decimal
	seq            uint64
	submissions    int
	unavailable    bool
	hold           bool
	revertNext     bool
	confirmTimeout time.Duration
}

// NewInMemory creates a concurrency-safe in-memory gateway.
func NewInMemory() *InMemory {
	return &InMemory{
		counters:       make(map[common.Address]int64),
		txs:            make(map[common.Hash]memTx),
		native:         make(map[common.Address]decimal.Decimal),
		confirmTimeout: 2 * time.Minute,
	}
}

func (l *InMemory) ConnectSigner(_ context.Context) (Signer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return Signer{}, fmt.Errorf("%w: signer not configured", ErrUnavailable)
	}
	return Signer{Address: inMemorySigner}, nil
}

func (l *InMemory) Contract(_ context.Context) (Contract, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return Contract{}, fmt.Errorf("%w: contract not configured", ErrUnavailable)
	}
	return Contract{Address: inMemoryContract}, nil
}

func (l *InMemory) Submit(_ context.Context, signer Signer, _ Contract, op Operation) (TxHandle, error) {
	if !op.valid() {
		return TxHandle{}, fmt.Errorf("%w: %q", ErrUnknownOperation, op)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return TxHandle{}, fmt.Errorf("%w: rpc endpoint not configured", ErrUnavailable)
	}

	l.seq++
	l.submissions++
	hash := common.BigToHash(new(big.Int).SetUint64(l.seq))

	tx := memTx{op: op}
	switch {
	case l.revertNext:
		tx.reverted = true
		l.revertNext = false
	case op == OpIncreaseBalance:
		l.counters[signer.Address]++
	case l.counters[signer.Address] == 0:
		tx.reverted = true
	default:
		l.counters[signer.Address]--
	}
	l.txs[hash] = tx

	return TxHandle{Hash: hash, Operation: op, SubmittedAt: time.Now().UTC()}, nil
}

func (l *InMemory) AwaitConfirmation(ctx context.Context, handle TxHandle) (string, error) {
	l.mu.Lock()
	tx, ok := l.txs[handle.Hash]
	hold := l.hold
	timeout := l.confirmTimeout
	l.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("unknown transaction %s", handle.Hash.Hex())
	}
	if hold {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		<-ctx.Done()
		return "", fmt.Errorf("%w: %s: %v", ErrTimeout, handle.Hash.Hex(), ctx.Err())
	}
	if tx.reverted {
		return "", fmt.Errorf("%w: %s", ErrReverted, handle.Hash.Hex())
	}
	return handle.Hash.Hex(), nil
}

// BalanceOf returns the seeded native balance for address, zero if unseeded.
func (l *InMemory) BalanceOf(_ context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address %q", address)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unavailable {
		return decimal.Zero, fmt.Errorf("%w: rpc endpoint not configured", ErrUnavailable)
	}
	return l.native[common.HexToAddress(address)], nil
}
