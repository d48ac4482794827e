package wallet

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]User
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[user.ID]; exists {
		return errors.New("user exists")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.UpdatedAt = user.CreatedAt
	r.storage[user.ID] = user
	return nil
}

func (r *memoryRepository) GetUser(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.storage[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (r *memoryRepository) CreditWallet(_ context.Context, userID string, amount int64, ledgerRef string) (int64, error) {
	if amount <= 0 {
		return 0, errors.New("credit amount must be positive")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.storage[userID]
	if !ok {
		return 0, ErrUserNotFound
	}
	user.WalletBalance += amount
	user.LastLedgerRef = ledgerRef
	user.UpdatedAt = time.Now().UTC()
	r.storage[userID] = user
	return user.WalletBalance, nil
}
