package funding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/ledger"
	"github.com/metlabs/metlabs_back/internal/metrics"
	"github.com/metlabs/metlabs_back/internal/wallet"
)

const (
	DepositMessage  = "Deposit of ETH successful"
	WithdrawMessage = "ETH was withdrawn successfully"
)

// Result is the outcome of a confirmed ledger operation.
type Result struct {
	Message         string
	TransactionHash string
	WalletAddress   string
}

// Service orchestrates deposits and withdrawals against the ledger on
// behalf of users with a bound wallet.
type Service struct {
	gateway ledger.Gateway
	wallets *wallet.Service
	logger  *zap.Logger
	now     func() time.Time
}

// NewService builds a funding service.
func NewService(gateway ledger.Gateway, wallets *wallet.Service, logger *zap.Logger) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("ledger gateway is required")
	}
	if wallets == nil {
		return nil, fmt.Errorf("wallet service is required")
	}
	return &Service{gateway: gateway, wallets: wallets, logger: logger, now: time.Now}, nil
}

// Deposit increments the user's on-chain balance.
func (s *Service) Deposit(ctx context.Context, userID string) (Result, error) {
	return s.execute(ctx, userID, ledger.OpIncreaseBalance, DepositMessage)
}

// Withdraw decrements the user's on-chain balance.
func (s *Service) Withdraw(ctx context.Context, userID string) (Result, error) {
	return s.execute(ctx, userID, ledger.OpDecreaseBalance, WithdrawMessage)
}

func (s *Service) execute(ctx context.Context, userID string, op ledger.Operation, message string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, apperr.Validation("userId is required")
	}
	// Unknown users and users without a wallet never reach the ledger.
	binding, err := s.wallets.Resolve(ctx, userID)
	if err != nil {
		return Result{}, err
	}

	signer, err := s.gateway.ConnectSigner(ctx)
	if err != nil {
		return Result{}, s.fail(op, "unavailable", userID, apperr.Configuration(fmt.Errorf("connect signer: %w", err)))
	}
	contract, err := s.gateway.Contract(ctx)
	if err != nil {
		return Result{}, s.fail(op, "unavailable", userID, apperr.Configuration(fmt.Errorf("resolve contract: %w", err)))
	}

	start := s.now()
	handle, err := s.gateway.Submit(ctx, signer, contract, op)
	if err != nil {
		outcome, classified := classify(err, "")
		return Result{}, s.fail(op, outcome, userID, classified)
	}

	hash, err := s.gateway.AwaitConfirmation(ctx, handle)
	if err != nil {
		outcome, classified := classify(err, handle.Hash.Hex())
		return Result{}, s.fail(op, outcome, userID, classified)
	}

	metrics.ObserveLedger(string(op), "confirmed", s.now().Sub(start))
	s.logger.Info("ledger transaction confirmed",
		zap.String("op", string(op)),
		zap.String("user_id", userID),
		zap.String("address", binding.Wallet.Address),
		zap.String("tx_hash", hash),
	)
	return Result{Message: message, TransactionHash: hash, WalletAddress: binding.Wallet.Address}, nil
}

func (s *Service) fail(op ledger.Operation, outcome, userID string, err error) error {
	metrics.ObserveLedger(string(op), outcome, 0)
	s.logger.Warn("ledger transaction failed",
		zap.String("op", string(op)),
		zap.String("user_id", userID),
		zap.String("outcome", outcome),
		zap.Error(err),
	)
	return err
}

// classify maps gateway errors onto API error kinds. A timed-out
// transaction may still be mined, so its hash is surfaced for follow-up.
func classify(err error, txHash string) (string, error) {
	switch {
	case errors.Is(err, ledger.ErrUnavailable):
		return "unavailable", apperr.Configuration(err)
	case errors.Is(err, ledger.ErrTimeout),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		msg := "transaction confirmation timed out"
		if txHash != "" {
			msg = fmt.Sprintf("transaction %s was not confirmed in time; check its status before retrying", txHash)
		}
		return "timeout", apperr.Timeout(msg, err)
	case errors.Is(err, ledger.ErrReverted):
		return "reverted", apperr.TransactionFailed("transaction was reverted", err)
	default:
		return "failed", apperr.TransactionFailed("transaction failed", err)
	}
}
