// Package ledger submits balance operations to the on-chain contract and
// waits for their confirmation.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUnavailable means the signer, contract or RPC endpoint cannot be
	// used. It signals a configuration problem rather than a failed
	// transaction.
	ErrUnavailable = errors.New("ledger unavailable")

	// ErrReverted means the transaction was rejected by the contract, either
	// during gas estimation or after mining.
	ErrReverted = errors.New("ledger transaction reverted")

	// ErrTimeout means no receipt arrived within the confirmation bound. The
	// transaction may still be mined later.
	ErrTimeout = errors.New("ledger confirmation timed out")

	ErrUnknownOperation = errors.New("unknown ledger operation")
)

// Operation names a no-argument contract method.
type Operation string

const (
	OpIncreaseBalance Operation = "increaseBalance"
	OpDecreaseBalance Operation = "balanceDecrease"
)

// Signer is the account that signs ledger transactions.
type Signer struct {
	Address common.Address
	key     *ecdsa.PrivateKey
}

// Contract is the deployed balance contract.
type Contract struct {
	Address common.Address
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash        common.Hash
	Operation   Operation
	SubmittedAt time.Time
}

// Gateway is the boundary to the ledger. Implementations must be safe for
// concurrent use.
type Gateway interface {
	ConnectSigner(ctx context.Context) (Signer, error)
	Contract(ctx context.Context) (Contract, error)
	Submit(ctx context.Context, signer Signer, contract Contract, op Operation) (TxHandle, error)
	// AwaitConfirmation blocks until the transaction is mined, reverted, the
	// confirmation bound elapses or ctx is done. It returns the
	// transaction hash on success.
	AwaitConfirmation(ctx context.Context, handle TxHandle) (string, error)
}

func (op Operation) valid() bool {
	return op == OpIncreaseBalance || op == OpDecreaseBalance
}
