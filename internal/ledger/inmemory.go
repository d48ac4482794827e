package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts AccountStore
	entries  []Entry
	byIntent map[string]int
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests. Balance changes are delegated to accounts while the ledger lock is
// held, so a credit and its entry are applied together.
func NewInMemory(accounts AccountStore) Ledger {
	return &inMemoryLedger{
		accounts: accounts,
		byIntent: make(map[string]int),
	}
}

func (l *inMemoryLedger) Credit(ctx context.Context, userID, intentID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, exists := l.byIntent[intentID]; exists && intentID != "" {
		return l.entries[idx], ErrDuplicateTransaction
	}

	entryID := uuid.NewString()
	balance, err := l.accounts.CreditWallet(ctx, userID, amount, entryID)
	if err != nil {
		return Entry{}, err
	}

	entry := Entry{
		ID:           entryID,
		UserID:       userID,
		IntentID:     intentID,
		Delta:        amount,
		BalanceAfter: balance,
		CreatedAt:    time.Now().UTC(),
	}
	l.entries = append(l.entries, entry)
	if intentID != "" {
		l.byIntent[intentID] = len(l.entries) - 1
	}
	return entry, nil
}

func (l *inMemoryLedger) EntryForIntent(_ context.Context, intentID string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	idx, ok := l.byIntent[intentID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return l.entries[idx], nil
}

func (l *inMemoryLedger) ListByUser(_ context.Context, userID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].UserID != userID {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
