package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/ledger"
	"github.com/tandemhq/aigate/pkg/models"
)

func newUsageCmd() *cobra.Command {
	var (
		configPath   string
		providerName string
		recent       int
		trim         bool
	)

	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Show usage history from the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Provider(providerName)
			if providerName != "" && !p.Known() {
				return fmt.Errorf("unknown provider %q (want openai or anthropic)", providerName)
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			lg, err := ledger.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = lg.Close() }()

			ctx := context.Background()

			if trim {
				deleted, err := lg.Trim(ctx, cfg.Retention.MaxRecords)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d old usage records (kept up to %d, current month untouched)\n",
					deleted, cfg.Retention.MaxRecords)
				return nil
			}

			if recent > 0 {
				records, err := lg.QueryRecent(ctx, recent)
				if err != nil {
					return err
				}
				if len(records) == 0 {
					fmt.Println("No usage data found.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tPROVIDER\tMODEL\tFEATURE\tTOKENS\tCOST\tSTATUS")
				for _, r := range records {
					status := "ok"
					if !r.Success {
						status = "failed: " + r.ErrorMessage
					}
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t$%.4f\t%s\n",
						r.CreatedAt.Format("2006-01-02 15:04:05"), r.Provider, r.Model, r.Feature,
						r.TotalTokens, r.Cost, status)
				}
				return w.Flush()
			}

			// Default: monthly report
			stats, err := lg.AggregateByMonth(ctx, p)
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Println("No usage data found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MONTH\tPROVIDER\tREQUESTS\tFAILED\tTOKENS\tCOST")
			for _, s := range stats {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t$%.4f\n",
					s.Month, s.Provider, s.TotalRequests, s.FailedRequests, s.TotalTokens, s.TotalCost)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	cmd.Flags().StringVar(&providerName, "provider", "", "filter monthly report by provider")
	cmd.Flags().IntVar(&recent, "recent", 0, "show the N most recent requests instead of the monthly report")
	cmd.Flags().BoolVar(&trim, "trim", false, "trim old records per the retention policy")
	return cmd
}
