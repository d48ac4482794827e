// Package pgtest connects tests to a migrated PostgreSQL database named by
// DATABASE_URL. Tests using it are skipped when the variable is unset.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tourwallet/topup/internal/infra"
	"github.com/tourwallet/topup/internal/logging"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// Pool returns a pool against a freshly migrated schema. Rows are not cleaned
// up between tests; callers use fresh ids so packages can share one database.
func Pool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}

	migrateOnce.Do(func() {
		m, err := infra.NewMigrator(url, logging.Discard())
		if err != nil {
			migrateErr = err
			return
		}
		migrateErr = m.Up()
		if cerr := m.Close(); migrateErr == nil {
			migrateErr = cerr
		}
	})
	if migrateErr != nil {
		t.Fatalf("migrate: %v", migrateErr)
	}

	pool, err := infra.NewPostgresPool(context.Background(), url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}

// SeedUser inserts a wallet holder with a zero balance and returns its id.
func SeedUser(t *testing.T, db *pgxpool.Pool) string {
	t.Helper()
	id := uuid.New()
	if _, err := db.Exec(context.Background(),
		`INSERT INTO users (id, display_name, currency) VALUES ($1, 'pgtest', 'VND')`, id); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return id.String()
}

// SeedIntent inserts a PENDING intent for userID and returns its id.
func SeedIntent(t *testing.T, db *pgxpool.Pool, userID, provider string, amount int64) string {
	t.Helper()
	id := uuid.New()
	now := time.Now().UTC()
	orderCode := fmt.Sprintf("PGT%d", now.UnixNano())
	if _, err := db.Exec(context.Background(), `INSERT INTO payment_intents
        (id, user_id, provider, order_code, amount, currency, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, 'VND', 'PENDING', $6, $6)`,
		id, uuid.MustParse(userID), provider, orderCode+id.String()[:8], amount, now); err != nil {
		t.Fatalf("seed intent: %v", err)
	}
	return id.String()
}
