package ledger

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicateTransaction indicates the intent already has a positive entry.
	// The existing entry is returned alongside the error so callers can treat
	// the operation as idempotent.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrInvalidAmount is returned for non-positive credits.
	ErrInvalidAmount = errors.New("credit amount must be positive")

	// ErrEntryNotFound means no positive entry references the intent.
	ErrEntryNotFound = errors.New("ledger entry not found")
)

// Entry is one append-only change to a user's wallet balance.
type Entry struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	IntentID     string    `json:"intent_id,omitempty"`
	Delta        int64     `json:"delta"`
	BalanceAfter int64     `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// Ledger defines the contract implemented by ledger backends (e.g. Postgres).
type Ledger interface {
	// Credit applies amount to the user's wallet and records the entry in a
	// single atomic unit.
	Credit(ctx context.Context, userID, intentID string, amount int64) (Entry, error)
	EntryForIntent(ctx context.Context, intentID string) (Entry, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error)
}

// AccountStore is the wallet balance primitive the in-memory ledger drives.
type AccountStore interface {
	CreditWallet(ctx context.Context, userID string, amount int64, ledgerRef string) (int64, error)
}
