package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourwallet/topup/internal/provider"
)

// Repository persists payment intents. CompareAndSwap must be atomic for a
// single row: when it reports swapped=false the returned intent is the
// current stored state.
type Repository interface {
	Create(ctx context.Context, in Intent) error
	Get(ctx context.Context, id string) (Intent, error)
	GetByOrderCode(ctx context.Context, kind provider.Kind, orderCode string) (Intent, error)
	CompareAndSwap(ctx context.Context, id string, t Transition) (Intent, bool, error)
	List(ctx context.Context, f ListFilter) ([]Intent, error)
}

// PostgresRepository stores intents in the payment_intents table.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const intentColumns = `id, user_id, provider, order_code, amount, currency, status, COALESCE(status_reason, ''),
    payment_target, COALESCE(provider_tx_ref, ''), created_at, updated_at, confirmed_at`

// Create inserts a new intent.
func (r *PostgresRepository) Create(ctx context.Context, in Intent) error {
	id, err := uuid.Parse(in.ID)
	if err != nil {
		return err
	}
	userID, err := uuid.Parse(in.UserID)
	if err != nil {
		return err
	}
	target, err := marshalTarget(in.Target)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `INSERT INTO payment_intents
        (id, user_id, provider, order_code, amount, currency, status, payment_target, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		id, userID, string(in.Provider), in.OrderCode, in.Amount, in.Currency, string(in.Status), target,
		in.CreatedAt.UTC(), in.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return ErrDuplicateOrder
	}
	return err
}

// Get fetches an intent by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Intent, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Intent{}, ErrNotFound
	}
	return r.one(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE id = $1`, uid)
}

// GetByOrderCode resolves a provider order code to its intent.
func (r *PostgresRepository) GetByOrderCode(ctx context.Context, kind provider.Kind, orderCode string) (Intent, error) {
	return r.one(ctx, `SELECT `+intentColumns+` FROM payment_intents WHERE provider = $1 AND order_code = $2`,
		string(kind), orderCode)
}

// CompareAndSwap updates the row only while its status is one of t.From.
func (r *PostgresRepository) CompareAndSwap(ctx context.Context, id string, t Transition) (Intent, bool, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Intent{}, false, ErrNotFound
	}
	from := make([]string, 0, len(t.From))
	for _, s := range t.From {
		if CanTransition(s, t.To) {
			from = append(from, string(s))
		}
	}
	if len(from) == 0 {
		return Intent{}, false, fmt.Errorf("%w: to %s", ErrInvalidTransition, t.To)
	}
	target, err := marshalTarget(t.Target)
	if err != nil {
		return Intent{}, false, err
	}
	at := t.At.UTC()
	var confirmedAt *time.Time
	if t.To == StatusConfirmed {
		confirmedAt = &at
	}

	updated, err := r.one(ctx, `UPDATE payment_intents SET
            status = $3,
            status_reason = COALESCE(NULLIF($4, ''), status_reason),
            provider_tx_ref = COALESCE(NULLIF($5, ''), provider_tx_ref),
            payment_target = COALESCE($6, payment_target),
            confirmed_at = COALESCE($7, confirmed_at),
            updated_at = $8
        WHERE id = $1 AND status = ANY($2)
        RETURNING `+intentColumns,
		uid, from, string(t.To), t.Reason, t.ProviderTxRef, target, confirmedAt, at)
	if err == nil {
		return updated, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Intent{}, false, err
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return Intent{}, false, err
	}
	return current, false, nil
}

// List returns intents matching f, oldest first.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]Intent, error) {
	query := `SELECT ` + intentColumns + ` FROM payment_intents WHERE 1=1`
	var args []any
	add := func(clause string, v any) {
		args = append(args, v)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Provider != "" {
		add("provider = $%d", string(f.Provider))
	}
	if !f.CreatedBefore.IsZero() {
		add("created_at < $%d", f.CreatedBefore.UTC())
	}
	if !f.ConfirmedBefore.IsZero() {
		add("confirmed_at < $%d", f.ConfirmedBefore.UTC())
	}
	if !f.ConfirmedAfter.IsZero() {
		add("confirmed_at >= $%d", f.ConfirmedAfter.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Intent
	for rows.Next() {
		in, err := scanIntent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (Intent, error) {
	in, err := scanIntent(r.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return Intent{}, ErrNotFound
	}
	return in, err
}

func scanIntent(row pgx.Row) (Intent, error) {
	var (
		in             Intent
		id, userID     uuid.UUID
		kind, status   string
		target         []byte
		confirmedAtRaw *time.Time
	)
	if err := row.Scan(&id, &userID, &kind, &in.OrderCode, &in.Amount, &in.Currency, &status, &in.StatusReason,
		&target, &in.ProviderTxRef, &in.CreatedAt, &in.UpdatedAt, &confirmedAtRaw); err != nil {
		return Intent{}, err
	}
	in.ID = id.String()
	in.UserID = userID.String()
	in.Provider = provider.Kind(kind)
	in.Status = Status(status)
	in.CreatedAt = in.CreatedAt.UTC()
	in.UpdatedAt = in.UpdatedAt.UTC()
	if confirmedAtRaw != nil {
		at := confirmedAtRaw.UTC()
		in.ConfirmedAt = &at
	}
	if len(target) > 0 {
		var t provider.PaymentTarget
		if err := json.Unmarshal(target, &t); err != nil {
			return Intent{}, fmt.Errorf("decode payment target: %w", err)
		}
		in.Target = &t
	}
	return in, nil
}

func marshalTarget(t *provider.PaymentTarget) ([]byte, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
