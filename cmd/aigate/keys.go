package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/keystore"
	"github.com/tandemhq/aigate/pkg/models"
	"github.com/tandemhq/aigate/pkg/provider"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage provider API credentials",
	}

	cmd.AddCommand(
		newKeysAddCmd(),
		newKeysListCmd(),
		newKeysDeactivateCmd(),
	)
	return cmd
}

func newKeysAddCmd() *cobra.Command {
	var (
		configPath string
		name       string
		budget     float64
		skipCheck  bool
	)

	cmd := &cobra.Command{
		Use:   "add <provider> <secret>",
		Short: "Validate and store a new API key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := models.Provider(args[0])
			if !p.Known() {
				return fmt.Errorf("unknown provider %q (want openai or anthropic)", args[0])
			}

			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			var validator keystore.Validator
			if !skipCheck {
				validator = provider.NewRegistry(cfg.Providers)
			}

			keys, err := keystore.New(cfg.DBPath, validator)
			if err != nil {
				return fmt.Errorf("init keystore: %w", err)
			}
			defer func() { _ = keys.Close() }()

			cred, err := keys.Save(context.Background(), p, args[1], name, budget)
			if err != nil {
				return err
			}

			fmt.Printf("Stored credential %s for %s", cred.ID, cred.Provider)
			if cred.MonthlyBudget > 0 {
				fmt.Printf(" (budget $%.2f/month)", cred.MonthlyBudget)
			}
			fmt.Println()
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	cmd.Flags().StringVar(&name, "name", "", "display name for the credential")
	cmd.Flags().Float64Var(&budget, "budget", 0, "monthly budget in USD (0 = unlimited)")
	cmd.Flags().BoolVar(&skipCheck, "skip-validation", false, "store without calling the provider to verify the key")
	return cmd
}

func newKeysListCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			keys, err := keystore.New(cfg.DBPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = keys.Close() }()

			creds, err := keys.List(context.Background())
			if err != nil {
				return err
			}
			if len(creds) == 0 {
				fmt.Println("No active credentials.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPROVIDER\tNAME\tBUDGET\tCREATED\tLAST USED")
			for _, c := range creds {
				budget := "-"
				if c.MonthlyBudget > 0 {
					budget = fmt.Sprintf("$%.2f", c.MonthlyBudget)
				}
				lastUsed := "-"
				if !c.LastUsedAt.IsZero() {
					lastUsed = c.LastUsedAt.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					c.ID, c.Provider, c.Name, budget, c.CreatedAt.Format("2006-01-02"), lastUsed)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	return cmd
}

func newKeysDeactivateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "deactivate <id>",
		Short: "Deactivate a credential (usage history is kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			keys, err := keystore.New(cfg.DBPath, nil)
			if err != nil {
				return err
			}
			defer func() { _ = keys.Close() }()

			if err := keys.Deactivate(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Deactivated credential %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "aigate.yaml", "path to config file")
	return cmd
}
