package wallet

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/metlabs/metlabs_back/internal/store"
)

type memoryRepository struct {
	mu        sync.RWMutex
	byAddress map[string]Wallet
	byOwner   map[string]string
}

// NewMemoryRepository constructs an in-memory repository for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byAddress: make(map[string]Wallet),
		byOwner:   make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, wallet Wallet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byAddress[wallet.Address]; exists {
		return store.ErrUniqueViolation
	}
	if wallet.OwnerID != "" {
		if _, owned := r.byOwner[wallet.OwnerID]; owned {
			return store.ErrUniqueViolation
		}
		r.byOwner[wallet.OwnerID] = wallet.Address
	}
	r.byAddress[wallet.Address] = wallet
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallet, ok := r.byAddress[address]
	if !ok {
		return Wallet{}, store.ErrNotFound
	}
	return wallet, nil
}

func (r *memoryRepository) FindByOwner(_ context.Context, ownerID string) (Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	address, ok := r.byOwner[ownerID]
	if !ok {
		return Wallet{}, store.ErrNotFound
	}
	return r.byAddress[address], nil
}

func (r *memoryRepository) Claim(_ context.Context, address, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.byAddress[address]
	if !ok {
		return store.ErrNotFound
	}
	if wallet.OwnerID == ownerID {
		return nil
	}
	if wallet.OwnerID != "" {
		return store.ErrUniqueViolation
	}
	if _, owned := r.byOwner[ownerID]; owned {
		return store.ErrUniqueViolation
	}
	wallet.OwnerID = ownerID
	r.byAddress[address] = wallet
	r.byOwner[ownerID] = address
	return nil
}

func (r *memoryRepository) ListOwned(_ context.Context, limit int) ([]Wallet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wallets := make([]Wallet, 0, len(r.byOwner))
	for _, address := range r.byOwner {
		wallets = append(wallets, r.byAddress[address])
	}
	sort.Slice(wallets, func(i, j int) bool {
		return wallets[i].Balance.CheckedAt.Before(wallets[j].Balance.CheckedAt)
	})
	if limit > 0 && len(wallets) > limit {
		wallets = wallets[:limit]
	}
	return wallets, nil
}

func (r *memoryRepository) UpdateBalance(_ context.Context, address string, amount decimal.Decimal, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	wallet, ok := r.byAddress[address]
	if !ok {
		return store.ErrNotFound
	}
	wallet.Balance = Balance{Amount: amount, Valid: true, CheckedAt: at.UTC()}
	r.byAddress[address] = wallet
	return nil
}
