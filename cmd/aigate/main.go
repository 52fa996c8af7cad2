package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tandemhq/aigate/pkg/config"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "aigate",
		Short:   "aigate — governed gateway for Tandem's AI provider calls",
		Version: version,
	}

	root.AddCommand(
		newServeCmd(),
		newMCPCmd(),
		newKeysCmd(),
		newUsageCmd(),
		newStatusCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the YAML config, falling back to defaults when the file
// does not exist so a fresh install works without one.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}
