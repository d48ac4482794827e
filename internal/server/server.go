package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/tourwallet/topup/internal/api"
	"github.com/tourwallet/topup/internal/bootstrap"
	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/routes"
)

// Server wraps the Fiber application and shared dependencies.
type Server struct {
	app *fiber.App
	cfg config.Config
}

// Options carries the optional infrastructure handles used by health checks.
type Options struct {
	DB    *pgxpool.Pool
	Cache *redis.Client
	NATS  *nats.Conn
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(cfg config.Config, components *bootstrap.Components, opts Options, logger *slog.Logger) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    1 << 20,
		ErrorHandler: api.ErrorHandler,
	})

	if err := routes.Setup(app, routes.Deps{
		Cfg:        cfg,
		DB:         opts.DB,
		Cache:      opts.Cache,
		NATS:       opts.NATS,
		Components: components,
		Logger:     logger,
	}); err != nil {
		return nil, err
	}

	return &Server{app: app, cfg: cfg}, nil
}

// App exposes the underlying Fiber app for in-process tests.
func (s *Server) App() *fiber.App { return s.app }

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	return s.app.Listen(s.cfg.Address())
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
