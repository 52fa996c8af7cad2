package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/logging"
	"github.com/tandemhq/aigate/pkg/mcp"
	"github.com/tandemhq/aigate/pkg/orchestrator"
	"github.com/tandemhq/aigate/pkg/pricing"
	"github.com/tandemhq/aigate/pkg/provider"
	"github.com/tandemhq/aigate/pkg/ratelimit"
)

func newMCPCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose usage and budget tools over MCP on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// Logs go to stderr; stdout is reserved for the JSON-RPC stream.
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

			srv := mcp.New(lg, keys, orch, version, logger)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	return cmd
}
