package wallet

import (
	"context"
	"time"

	"github.com/tourwallet/topup/internal/ledger"
)

// History lists ledger entries for a user.
type History interface {
	History(ctx context.Context, userID string, limit int) ([]ledger.Entry, error)
}

// Service exposes read-side wallet operations.
type Service struct {
	repo    AccountStore
	history History
}

// NewService builds a wallet service instance.
func NewService(repo AccountStore, history History) *Service {
	return &Service{repo: repo, history: history}
}

// Balance returns the current wallet balance for the user.
func (s *Service) Balance(ctx context.Context, userID string) (Balance, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{UserID: user.ID, Amount: user.WalletBalance, Currency: user.Currency, AsOf: time.Now().UTC()}, nil
}

// Entries returns the user's most recent ledger entries.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]ledger.Entry, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.history.History(ctx, userID, limit)
}
