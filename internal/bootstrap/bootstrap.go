// Package bootstrap assembles the reconciliation service from configuration
// and infrastructure handles. The HTTP server and the operator CLI share it.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"

	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/notification"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/provider/casso"
	"github.com/tourwallet/topup/internal/provider/momo"
	"github.com/tourwallet/topup/internal/provider/payos"
	"github.com/tourwallet/topup/internal/reconcile"
	"github.com/tourwallet/topup/internal/wallet"
	"github.com/tourwallet/topup/internal/webhook"
)

// Infra carries the external connections. Cache and JetStream are optional.
type Infra struct {
	DB        *pgxpool.Pool
	Cache     *redis.Client
	JetStream jetstream.JetStream
}

// Components is the wired service graph.
type Components struct {
	Adapters provider.Set
	Users    wallet.Repository
	Intents  *intent.Registry
	Events   webhook.Repository
	Books    *ledger.Accountant
	Wallet   *wallet.Service
	Notifier notification.Notifier
	Engine   *reconcile.Engine
	Poller   *reconcile.Poller
	Sweeper  *reconcile.Sweeper
}

// Adapters builds one adapter per enabled provider.
func Adapters(cfg config.Config, logger *slog.Logger) (provider.Set, error) {
	kinds, err := cfg.EnabledProviders()
	if err != nil {
		return nil, err
	}
	adapters := make([]provider.Adapter, 0, len(kinds))
	for _, kind := range kinds {
		switch kind {
		case provider.KindMobileWallet:
			adapters = append(adapters, momo.NewAdapter(cfg.Momo, logger))
		case provider.KindBankQR:
			adapters = append(adapters, payos.NewAdapter(cfg.PayOS, logger))
		case provider.KindBankAggregator:
			adapters = append(adapters, casso.NewAdapter(cfg.Casso, logger))
		default:
			return nil, fmt.Errorf("%w: %s", provider.ErrUnknownProvider, kind)
		}
	}
	return provider.NewSet(adapters...), nil
}

// Stores are the persistence backends the service graph runs on.
type Stores struct {
	Users   wallet.Repository
	Intents intent.Repository
	Events  webhook.Repository
	Ledger  ledger.Ledger
}

// PostgresStores returns the production stores backed by db.
func PostgresStores(db *pgxpool.Pool) Stores {
	users := wallet.NewPostgresRepository(db)
	return Stores{
		Users:   users,
		Intents: intent.NewPostgresRepository(db),
		Events:  webhook.NewPostgresRepository(db),
		Ledger:  ledger.NewPostgresLedger(db, users),
	}
}

// Build wires the Postgres-backed service graph for the enabled providers.
func Build(cfg config.Config, in Infra, logger *slog.Logger) (*Components, error) {
	if in.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	adapters, err := Adapters(cfg, logger)
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, adapters, PostgresStores(in.DB), in, logger)
}

// Assemble wires repositories, the engine and the background workers.
func Assemble(cfg config.Config, adapters provider.Set, stores Stores, in Infra, logger *slog.Logger) (*Components, error) {
	codes, err := intent.NewOrderCodes(cfg.NodeID)
	if err != nil {
		return nil, fmt.Errorf("order codes: %w", err)
	}

	books := ledger.NewAccountant(stores.Ledger, logger)
	registry := intent.NewRegistry(stores.Intents, adapters, stores.Users, codes, intent.RegistryConfig{
		Currency: cfg.Currency,
		Retry:    cfg.Retry(),
	}, logger)

	notifiers := notification.Multi{notification.NewLoggerNotifier(logger)}
	if in.JetStream != nil {
		notifiers = append(notifiers, notification.NewNATSNotifier(in.JetStream, logger))
	}

	var locker reconcile.Locker
	if in.Cache != nil {
		locker = reconcile.NewRedisLocker(in.Cache)
	}

	engine := reconcile.NewEngine(reconcile.Deps{
		Adapters:   adapters,
		Verifier:   webhook.NewVerifier(adapters, stores.Events, logger),
		Events:     stores.Events,
		Intents:    registry,
		Claims:     reconcile.NewIdempotencyLedger(stores.Intents),
		Accountant: books,
		Notifier:   notifiers,
		Logger:     logger,
	}, reconcile.Config{
		Matcher:       cfg.Matcher,
		IntentTimeout: cfg.IntentTimeout,
		Retry:         cfg.Retry(),
	})

	return &Components{
		Adapters: adapters,
		Users:    stores.Users,
		Intents:  registry,
		Events:   stores.Events,
		Books:    books,
		Wallet:   wallet.NewService(stores.Users, books),
		Notifier: notifiers,
		Engine:   engine,
		Poller:   reconcile.NewPoller(engine, registry, locker, cfg.Poller, logger),
		Sweeper:  reconcile.NewSweeper(registry, books, notifiers, locker, cfg.Sweeper, logger),
	}, nil
}
