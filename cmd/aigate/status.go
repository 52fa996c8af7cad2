package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/models"
	"github.com/tandemhq/aigate/pkg/ratelimit"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status <provider>",
		Short: "Show current rate-limit windows and monthly spend for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Provider(args[0])
			if !p.Known() {
				return fmt.Errorf("unknown provider %q (want openai or anthropic)", args[0])
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			keys, err := keystore.New(cfg.DBPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = keys.Close() }()

			lg, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = lg.Close() }()

			limiter := ratelimit.New(cfg.RateLimit, lg, keys)

			ctx := context.Background()
			status, err := limiter.Check(ctx, p)
			if err != nil {
				return err
			}

			if status.Allowed {
				fmt.Printf("%s: requests allowed\n", p)
			} else {
				fmt.Printf("%s: BLOCKED (%s)\n", p, status.Reason)
			}
			fmt.Printf("  hourly requests: %s\n", windowString(status.HourlyCount, status.HourlyLimit))
			fmt.Printf("  daily requests:  %s\n", windowString(status.DailyCount, status.DailyLimit))

			monthCost, err := lg.CurrentMonthCost(ctx, p)
			if err != nil {
				return err
			}
			if cred, err := keys.Active(ctx, p); err == nil && cred.MonthlyBudget > 0 {
				fmt.Printf("  monthly spend:   $%.4f / $%.2f\n", monthCost, cred.MonthlyBudget)
			} else {
				fmt.Printf("  monthly spend:   $%.4f (no budget set)\n", monthCost)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	return cmd
}

func windowString(count, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("%d (unlimited)", count)
	}
	return fmt.Sprintf("%d / %d", count, limit)
}
