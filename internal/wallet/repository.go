package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrUserNotFound is returned when the account store has no such user.
var ErrUserNotFound = errors.New("user not found")

// AccountStore is the user/account primitive the reconciliation engine needs.
type AccountStore interface {
	GetUser(ctx context.Context, id string) (User, error)
	CreditWallet(ctx context.Context, userID string, amount int64, ledgerRef string) (int64, error)
}

// Repository persists users and their wallet balances.
type Repository interface {
	AccountStore
	Create(ctx context.Context, user User) error
}

// PostgresRepository stores users in PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a user with its opening balance.
func (r *PostgresRepository) Create(ctx context.Context, user User) error {
	userID, err := uuid.Parse(user.ID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	_, err = r.db.Exec(ctx, `INSERT INTO users (id, display_name, currency, wallet_balance, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, userID, user.DisplayName, user.Currency, user.WalletBalance, user.CreatedAt.UTC(), now)
	return err
}

// GetUser fetches a user by identifier.
func (r *PostgresRepository) GetUser(ctx context.Context, id string) (User, error) {
	userID, err := uuid.Parse(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT id, display_name, currency, wallet_balance, COALESCE(last_ledger_ref, ''), created_at, updated_at
        FROM users WHERE id = $1`, userID)
	var (
		u     User
		idVal uuid.UUID
	)
	if err := row.Scan(&idVal, &u.DisplayName, &u.Currency, &u.WalletBalance, &u.LastLedgerRef, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	u.ID = idVal.String()
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

// CreditWallet applies a standalone credit in its own transaction.
func (r *PostgresRepository) CreditWallet(ctx context.Context, userID string, amount int64, ledgerRef string) (int64, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	balance, err := r.CreditWalletTx(ctx, tx, userID, amount, ledgerRef)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// CreditWalletTx increments the balance inside tx and returns the new balance.
func (r *PostgresRepository) CreditWalletTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, ledgerRef string) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("credit amount must be positive")
	}
	id, err := uuid.Parse(userID)
	if err != nil {
		return 0, ErrUserNotFound
	}
	var balance int64
	err = tx.QueryRow(ctx, `UPDATE users
        SET wallet_balance = wallet_balance + $2, last_ledger_ref = $3, updated_at = now()
        WHERE id = $1
        RETURNING wallet_balance`, id, amount, ledgerRef).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	return balance, err
}
