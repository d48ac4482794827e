package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tourwallet/topup/internal/bootstrap"
	"github.com/tourwallet/topup/internal/config"
	"github.com/tourwallet/topup/internal/infra"
	"github.com/tourwallet/topup/internal/logging"
	"github.com/tourwallet/topup/internal/webhook"
)

// withComponents connects to Postgres, builds the service graph and runs fn.
// NATS and Redis are skipped; alerts go to the log only.
func withComponents(ctx context.Context, fn func(*bootstrap.Components) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, "text")

	db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	components, err := bootstrap.Build(cfg, bootstrap.Infra{DB: db}, logger)
	if err != nil {
		return err
	}
	return fn(components)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func reconcileCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile [intent-id]",
		Short: "Query the provider for one PENDING intent and settle it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return withComponents(ctx, func(c *bootstrap.Components) error {
				res, err := c.Engine.Reconcile(ctx, args[0], webhook.SourceManual)
				if err != nil {
					return fmt.Errorf("reconcile %s: %w", args[0], err)
				}
				if res.Outcome == "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "intent %s still pending at provider\n", args[0])
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline")
	return cmd
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Alert on CONFIRMED intents missing their wallet credit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd.Context(), func(c *bootstrap.Components) error {
				report, err := c.Sweeper.Sweep(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}
