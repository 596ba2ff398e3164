package identity

import (
	"context"
	"sync"
	"time"

	"github.com/metlabs/metlabs_back/internal/store"
)

type memoryRepository struct {
	mu      sync.RWMutex
	users   map[string]User
	byEmail map[string]string
	byAddr  map[string]string
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		users:   make(map[string]User),
		byEmail: make(map[string]string),
		byAddr:  make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byEmail[user.Email]; exists {
		return store.ErrUniqueViolation
	}
	if _, exists := r.users[user.ID]; exists {
		return store.ErrUniqueViolation
	}
	user.UpdatedAt = user.CreatedAt
	r.users[user.ID] = clone(user)
	r.byEmail[user.Email] = user.ID
	return nil
}

func (r *memoryRepository) FindByEmail(_ context.Context, email string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return User{}, store.ErrNotFound
	}
	return clone(r.users[id]), nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return User{}, store.ErrNotFound
	}
	return clone(user), nil
}

func (r *memoryRepository) Update(_ context.Context, id string, upd Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return store.ErrNotFound
	}
	if upd.WalletAddress != nil && *upd.WalletAddress != user.WalletAddress {
		if owner, taken := r.byAddr[*upd.WalletAddress]; taken && owner != id {
			return store.ErrUniqueViolation
		}
		delete(r.byAddr, user.WalletAddress)
		if *upd.WalletAddress != "" {
			r.byAddr[*upd.WalletAddress] = id
		}
		user.WalletAddress = *upd.WalletAddress
	}
	if upd.SessionToken != nil {
		user.SessionToken = *upd.SessionToken
	}
	if upd.PasswordHash != nil {
		user.PasswordHash = append([]byte(nil), upd.PasswordHash...)
	}
	user.UpdatedAt = time.Now().UTC()
	r.users[id] = user
	return nil
}

func clone(user User) User {
	user.PasswordHash = append([]byte(nil), user.PasswordHash...)
	return user
}

type memoryResetRepository struct {
	mu     sync.Mutex
	resets map[string]PasswordReset
}

// NewMemoryResetRepository builds an in-memory reset token store.
func NewMemoryResetRepository() ResetRepository {
	return &memoryResetRepository{resets: make(map[string]PasswordReset)}
}

func (r *memoryResetRepository) Create(_ context.Context, reset PasswordReset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.resets[reset.Token]; exists {
		return store.ErrUniqueViolation
	}
	r.resets[reset.Token] = reset
	return nil
}

func (r *memoryResetRepository) FindByToken(_ context.Context, token string) (PasswordReset, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[token]
	if !ok {
		return PasswordReset{}, store.ErrNotFound
	}
	return reset, nil
}

func (r *memoryResetRepository) MarkUsed(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reset, ok := r.resets[token]
	if !ok || reset.UsedAt != nil {
		return store.ErrNotFound
	}
	reset.UsedAt = &at
	r.resets[token] = reset
	return nil
}
