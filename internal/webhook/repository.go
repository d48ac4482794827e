package webhook

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourwallet/topup/internal/provider"
)

// Repository is the append-only event store. Events are never updated or
// deleted.
type Repository interface {
	Append(ctx context.Context, e Event) error
	ListByIntent(ctx context.Context, intentID string) ([]Event, error)
	List(ctx context.Context, f ListFilter) ([]Event, error)
}

// ListFilter narrows event listings for operators.
type ListFilter struct {
	Provider provider.Kind
	Outcome  Outcome
	Limit    int
}

func (f ListFilter) matches(e Event) bool {
	if f.Provider != "" && e.Provider != f.Provider {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}

func (f ListFilter) limit() int {
	if f.Limit <= 0 || f.Limit > 500 {
		return 100
	}
	return f.Limit
}

// PostgresRepository writes provider_webhook_events.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds an event store backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const eventColumns = `id, provider, source, raw_payload, signature_header, received_at,
    verified, COALESCE(matched_intent_id::text, ''), outcome, detail`

// Append inserts an event. Rejected callbacks carry no intent, so an empty
// MatchedIntentID is stored as NULL.
func (r *PostgresRepository) Append(ctx context.Context, e Event) error {
	raw := e.RawPayload
	if raw == nil {
		raw = []byte{}
	}
	_, err := r.db.Exec(ctx, `INSERT INTO provider_webhook_events
        (id, provider, source, raw_payload, signature_header, received_at, verified, matched_intent_id, outcome, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9, $10)`,
		e.ID, string(e.Provider), string(e.Source), raw, e.SignatureHeader, e.ReceivedAt.UTC(),
		e.Verified, e.MatchedIntentID, string(e.Outcome), e.Detail)
	if err != nil {
		return fmt.Errorf("append webhook event: %w", err)
	}
	return nil
}

// ListByIntent returns the trail of one intent, oldest first.
func (r *PostgresRepository) ListByIntent(ctx context.Context, intentID string) ([]Event, error) {
	id, err := uuid.Parse(intentID)
	if err != nil {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM provider_webhook_events
        WHERE matched_intent_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// List returns the newest events matching f.
func (r *PostgresRepository) List(ctx context.Context, f ListFilter) ([]Event, error) {
	rows, err := r.db.Query(ctx, `SELECT `+eventColumns+` FROM provider_webhook_events
        WHERE ($1 = '' OR provider = $1) AND ($2 = '' OR outcome = $2)
        ORDER BY id DESC LIMIT $3`, string(f.Provider), string(f.Outcome), f.limit())
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var (
			e               Event
			kind, src, outc string
		)
		if err := rows.Scan(&e.ID, &kind, &src, &e.RawPayload, &e.SignatureHeader, &e.ReceivedAt,
			&e.Verified, &e.MatchedIntentID, &outc, &e.Detail); err != nil {
			return nil, err
		}
		e.Provider = provider.Kind(kind)
		e.Source = Source(src)
		e.Outcome = Outcome(outc)
		e.ReceivedAt = e.ReceivedAt.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

type memoryRepository struct {
	mu     sync.RWMutex
	events []Event
}

// NewMemoryRepository constructs an in-memory event store for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{}
}

func (r *memoryRepository) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.RawPayload = append([]byte{}, e.RawPayload...)
	r.events = append(r.events, e)
	return nil
}

func (r *memoryRepository) ListByIntent(_ context.Context, intentID string) ([]Event, error) {
	if intentID == "" {
		return nil, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if e.MatchedIntentID == intentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memoryRepository) List(_ context.Context, f ListFilter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Event
	for _, e := range r.events {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > f.limit() {
		out = out[:f.limit()]
	}
	return out, nil
}
