package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxAccountStore applies a wallet credit inside a caller-owned transaction.
type TxAccountStore interface {
	CreditWalletTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, ledgerRef string) (int64, error)
}

// PostgresLedger persists wallet entries in PostgreSQL. The balance update and
// the entry insert share one transaction.
type PostgresLedger struct {
	db       *pgxpool.Pool
	accounts TxAccountStore
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool, accounts TxAccountStore) *PostgresLedger {
	return &PostgresLedger{db: db, accounts: accounts}
}

// Credit locks the user row, rejects a second positive entry for the intent,
// then updates the balance and appends the entry.
func (l *PostgresLedger) Credit(ctx context.Context, userID, intentID string, amount int64) (Entry, error) {
	if amount <= 0 {
		return Entry{}, ErrInvalidAmount
	}
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse user id: %w", err)
	}
	intentUUID, err := uuid.Parse(intentID)
	if err != nil {
		return Entry{}, fmt.Errorf("parse intent id: %w", err)
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `SELECT 1 FROM users WHERE id = $1 FOR UPDATE`, userUUID); err != nil {
		return Entry{}, err
	}

	existing, err := scanEntry(tx.QueryRow(ctx, `SELECT id, user_id, intent_id, delta, balance_after, created_at
        FROM wallet_ledger_entries WHERE intent_id = $1 AND delta > 0`, intentUUID))
	if err == nil {
		return existing, ErrDuplicateTransaction
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, err
	}

	entryID := uuid.New()
	balance, err := l.accounts.CreditWalletTx(ctx, tx, userID, amount, entryID.String())
	if err != nil {
		return Entry{}, err
	}

	createdAt := time.Now().UTC()
	if _, err := tx.Exec(ctx, `INSERT INTO wallet_ledger_entries (id, user_id, intent_id, delta, balance_after, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`, entryID, userUUID, intentUUID, amount, balance, createdAt); err != nil {
		if isUniqueViolation(err) {
			return Entry{}, ErrDuplicateTransaction
		}
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}

	return Entry{
		ID:           entryID.String(),
		UserID:       userID,
		IntentID:     intentID,
		Delta:        amount,
		BalanceAfter: balance,
		CreatedAt:    createdAt,
	}, nil
}

// EntryForIntent returns the positive entry referencing the intent.
func (l *PostgresLedger) EntryForIntent(ctx context.Context, intentID string) (Entry, error) {
	intentUUID, err := uuid.Parse(intentID)
	if err != nil {
		return Entry{}, ErrEntryNotFound
	}
	entry, err := scanEntry(l.db.QueryRow(ctx, `SELECT id, user_id, intent_id, delta, balance_after, created_at
        FROM wallet_ledger_entries WHERE intent_id = $1 AND delta > 0`, intentUUID))
	if errors.Is(err, pgx.ErrNoRows) {
		return Entry{}, ErrEntryNotFound
	}
	return entry, err
}

// ListByUser returns the most recent entries first.
func (l *PostgresLedger) ListByUser(ctx context.Context, userID string, limit int) ([]Entry, error) {
	userUUID, err := uuid.Parse(userID)
	if err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, `SELECT id, user_id, intent_id, delta, balance_after, created_at
        FROM wallet_ledger_entries WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userUUID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (Entry, error) {
	var (
		id, userID uuid.UUID
		intentID   *uuid.UUID
		e          Entry
	)
	if err := row.Scan(&id, &userID, &intentID, &e.Delta, &e.BalanceAfter, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.ID = id.String()
	e.UserID = userID.String()
	if intentID != nil {
		e.IntentID = intentID.String()
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
