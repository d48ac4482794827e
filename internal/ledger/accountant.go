package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Accountant is the sole writer of wallet ledger entries.
type Accountant struct {
	ledger Ledger
	logger *slog.Logger
}

// NewAccountant wraps a ledger backend.
func NewAccountant(l Ledger, logger *slog.Logger) *Accountant {
	return &Accountant{ledger: l, logger: logger}
}

// Credit adds amount to the user's wallet for the confirmed intent. A second
// call for the same intent returns the original entry with
// ErrDuplicateTransaction and changes nothing.
func (a *Accountant) Credit(ctx context.Context, userID string, amount int64, intentID string) (Entry, error) {
	if intentID == "" {
		return Entry{}, fmt.Errorf("credit requires an intent id")
	}

	entry, err := a.ledger.Credit(ctx, userID, intentID, amount)
	switch {
	case errors.Is(err, ErrDuplicateTransaction):
		a.logger.Warn("wallet already credited for intent", "intent_id", intentID, "entry_id", entry.ID)
		return entry, err
	case err != nil:
		return Entry{}, fmt.Errorf("credit wallet: %w", err)
	}

	a.logger.Info("wallet credited",
		"intent_id", intentID,
		"user_id", userID,
		"amount", amount,
		"balance_after", entry.BalanceAfter,
	)
	return entry, nil
}

// EntryForIntent exposes the credit recorded for an intent, if any.
func (a *Accountant) EntryForIntent(ctx context.Context, intentID string) (Entry, error) {
	return a.ledger.EntryForIntent(ctx, intentID)
}

// History lists a user's most recent entries.
func (a *Accountant) History(ctx context.Context, userID string, limit int) ([]Entry, error) {
	return a.ledger.ListByUser(ctx, userID, limit)
}
