package wallet

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/identity"
	"github.com/metlabs/metlabs_back/internal/metrics"
	"github.com/metlabs/metlabs_back/internal/store"
)

const (
	userLockPrefix    = "lock:wallet:user:"
	addressLockPrefix = "lock:wallet:address:"
)

// Service binds wallet addresses to users.
type Service struct {
	repo   Repository
	users  identity.Repository
	locker Locker
	logger *zap.Logger
	now    func() time.Time
}

// NewService builds a wallet service instance.
func NewService(repo Repository, users identity.Repository, locker Locker, logger *zap.Logger) *Service {
	return &Service{repo: repo, users: users, locker: locker, logger: logger, now: time.Now}
}

// NormalizeAddress validates a 0x-prefixed hex address and returns its
// EIP-55 checksummed form.
func NormalizeAddress(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "0x") && !strings.HasPrefix(raw, "0X") {
		return "", apperr.Validation("address must be a 0x-prefixed hex address")
	}
	if !common.IsHexAddress(raw) {
		return "", apperr.Validation("address must be a 0x-prefixed hex address")
	}
	return common.HexToAddress(raw).Hex(), nil
}

// Bind associates address with the user. Binding the address the user
// already holds is a no-op; every other rebind is a conflict. The user and
// the address are locked in that order for the duration of the bind.
func (s *Service) Bind(ctx context.Context, userID, rawAddress string) (Binding, error) {
	if strings.TrimSpace(userID) == "" {
		return Binding{}, apperr.Validation("userId is required")
	}
	address, err := NormalizeAddress(rawAddress)
	if err != nil {
		return Binding{}, err
	}
	if _, err := s.findUser(ctx, userID); err != nil {
		return Binding{}, err
	}

	releaseUser, err := s.locker.Acquire(ctx, userLockPrefix+userID)
	if err != nil {
		metrics.ObserveBind("busy")
		return Binding{}, apperr.RetryableConflict("wallet binding already in progress", err)
	}
	defer releaseUser()
	releaseAddress, err := s.locker.Acquire(ctx, addressLockPrefix+address)
	if err != nil {
		metrics.ObserveBind("busy")
		return Binding{}, apperr.RetryableConflict("wallet binding already in progress", err)
	}
	defer releaseAddress()

	binding, err := s.bindLocked(ctx, userID, address)
	if err != nil {
		metrics.ObserveBind(string(apperr.KindOf(err)))
		return Binding{}, err
	}
	metrics.ObserveBind("success")
	return binding, nil
}

func (s *Service) bindLocked(ctx context.Context, userID, address string) (Binding, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return Binding{}, err
	}
	if user.WalletAddress != "" && user.WalletAddress != address {
		return Binding{}, apperr.Conflict("user already has a bound wallet", nil)
	}

	// A wallet row may own the user even when the user row was never
	// updated, e.g. after a failure between the two writes below.
	owned, err := s.repo.FindByOwner(ctx, user.ID)
	switch {
	case err == nil && owned.Address != address:
		return Binding{}, apperr.Conflict("user already has a bound wallet", nil)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return Binding{}, apperr.Internal(err)
	}

	wallet, err := s.repo.FindByAddress(ctx, address)
	switch {
	case err == nil:
		if wallet.OwnerID != "" && wallet.OwnerID != user.ID {
			return Binding{}, apperr.Conflict("wallet address is bound to another user", nil)
		}
		if wallet.OwnerID == "" {
			if err := s.repo.Claim(ctx, address, user.ID); err != nil {
				return Binding{}, translateWrite(err)
			}
			wallet.OwnerID = user.ID
		}
	case errors.Is(err, store.ErrNotFound):
		wallet = Wallet{
			ID:        uuid.NewString(),
			Address:   address,
			OwnerID:   user.ID,
			CreatedAt: s.now().UTC(),
		}
		if err := s.repo.Create(ctx, wallet); err != nil {
			return Binding{}, translateWrite(err)
		}
	default:
		return Binding{}, apperr.Internal(err)
	}

	if user.WalletAddress != address {
		if err := s.users.Update(ctx, user.ID, identity.Update{WalletAddress: &address}); err != nil {
			return Binding{}, translateWrite(err)
		}
		user.WalletAddress = address
		s.logger.Info("wallet bound", zap.String("user_id", user.ID), zap.String("address", address))
	}
	return Binding{Wallet: wallet, Owner: user}, nil
}

// Resolve returns the wallet bound to the user.
func (s *Service) Resolve(ctx context.Context, userID string) (Binding, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return Binding{}, err
	}
	wallet, err := s.repo.FindByOwner(ctx, user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Binding{}, apperr.NotFound("wallet not found")
		}
		return Binding{}, apperr.Internal(err)
	}
	return Binding{Wallet: wallet, Owner: user}, nil
}

func (s *Service) findUser(ctx context.Context, userID string) (identity.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return identity.User{}, apperr.NotFound("user not found")
		}
		return identity.User{}, apperr.Internal(err)
	}
	return user, nil
}

// translateWrite maps a lost uniqueness race onto a retryable conflict.
func translateWrite(err error) error {
	if errors.Is(err, store.ErrUniqueViolation) {
		return apperr.RetryableConflict("wallet address was bound concurrently", err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("wallet not found")
	}
	return apperr.Internal(err)
}
