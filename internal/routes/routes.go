package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/tourwallet/topup/internal/bootstrap"
	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/intent"
	"github.com/tourwallet/topup/internal/middleware"
	"github.com/tourwallet/topup/internal/reconcile"
	"github.com/tourwallet/topup/internal/wallet"
	"github.com/tourwallet/topup/internal/webhook"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg        config.Config
	DB         *pgxpool.Pool
	Cache      *redis.Client
	NATS       *nats.Conn
	Components *bootstrap.Components
	Logger     *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Components == nil {
		return fmt.Errorf("components are required")
	}
	// Webhook dedup and rate limits need Redis outside of dev.
	if !d.Cfg.IsDev() && d.Cache == nil {
		return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, "/healthz"))

	RegisterHealthRoutes(app, d)

	hooks := app.Group("/webhooks")
	if d.Cache != nil {
		hooks.Use(middleware.WebhookRateLimit(d.Cache, d.Cfg.WebhookRateLimit))
	}
	RegisterWebhookRoutes(hooks, webhook.NewHandler(d.Components.Engine))

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c.UserContext()),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	var idem fiber.Handler
	if d.Cache != nil {
		idem = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterIntentRoutes(api, intent.NewHandler(d.Components.Intents), idem)
	RegisterWalletRoutes(api, wallet.NewHandler(d.Components.Wallet))

	ops := api.Group("/operator", middleware.OperatorAuth(d.Cfg.OperatorTokenHash))
	RegisterOperatorRoutes(ops, reconcile.NewOperatorHandler(
		d.Components.Engine, d.Components.Intents, d.Components.Events, d.Components.Sweeper))

	return nil
}
