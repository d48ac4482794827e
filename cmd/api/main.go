package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/tourwallet/topup/internal/bootstrap"
	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/infra"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/notification"
	"github.com/tourwallet/topup/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := run(cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited cleanly")
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.AutoMigrate {
		m, err := infra.NewMigrator(cfg.DatabaseURL, logger)
		if err != nil {
			return err
		}
		err = m.Up()
		if cerr := m.Close(); cerr != nil {
			logger.Warn("close migrator", "error", cerr)
		}
		if err != nil {
			return err
		}
	}

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	deps := bootstrap.Infra{DB: db}
	opts := server.Options{DB: db}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		deps.Cache = cache
		opts.Cache = cache
	}

	if cfg.NATS.Enabled() {
		nc, err := infra.NewNATS(ctx, cfg.NATS, []string{notification.SubjectPrefix + ">"}, logger)
		if err != nil {
			return err
		}
		defer nc.Close()
		deps.JetStream = nc.JS
		opts.NATS = nc.Conn
	}

	components, err := bootstrap.Build(cfg, deps, logger)
	if err != nil {
		return fmt.Errorf("build components: %w", err)
	}
	kinds, _ := cfg.EnabledProviders()
	logger.Info("providers enabled", "providers", kinds)

	srv, err := server.New(cfg, components, opts, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return components.Poller.Run(gctx) })
	g.Go(func() error { return components.Sweeper.Run(gctx) })
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Address())
		return srv.Listen()
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
