package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/logging"
	"github.com/tandemhq/aigate/pkg/orchestrator"
	"github.com/tandemhq/aigate/pkg/pricing"
	"github.com/tandemhq/aigate/pkg/provider"
	"github.com/tandemhq/aigate/pkg/ratelimit"
	"github.com/tandemhq/aigate/pkg/server"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger := logging.New(cfg.Logging.Level)

			registry := provider.NewRegistry(cfg.Providers)

			keys, err := keystore.New(cfg.DBPath, registry)
			if err != nil {
				return fmt.Errorf("init keystore: %w", err)
			}
			defer func() { _ = keys.Close() }()

			lg, err := ledger.New(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("init ledger: %w", err)
			}
			defer func() { _ = lg.Close() }()

			limiter := ratelimit.New(cfg.RateLimit, lg, keys)
			estimator := pricing.New(cfg.Pricing)
			orch := orchestrator.New(keys, lg, limiter, estimator, registry, cfg.Providers.Timeout, logger)

			srv := server.New(cfg.Listen, orch, keys, lg, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Retention.MaxRecords > 0 {
				if deleted, err := lg.Trim(ctx, cfg.Retention.MaxRecords); err != nil {
					logger.Warn("ledger trim failed", "error", err)
				} else if deleted > 0 {
					logger.Info("trimmed usage ledger", "deleted", deleted)
				}
			}

			logger.Info("starting aigate", "listen", cfg.Listen, "db", cfg.DBPath)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	return cmd
}
