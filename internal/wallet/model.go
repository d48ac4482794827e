package wallet

import "time"

// User is a wallet owner as seen by the account store.
type User struct {
	ID            string
	DisplayName   string
	Currency      string
	WalletBalance int64
	LastLedgerRef string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Balance encapsulates available funds for a user's wallet.
type Balance struct {
	UserID   string
	Amount   int64
	Currency string
	AsOf     time.Time
}
