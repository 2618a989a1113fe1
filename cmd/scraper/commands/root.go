package commands

import (
	"context"
	"fmt"
	"os"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/logger"
	"SupplyScraper/pkg/config"

	"github.com/spf13/cobra"
)

var (
	configPath string
	jsonLogs   bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "scraper collects product data from a supplier site and merges result files.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Initialize(jsonLogs, verbose)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yml", "Path to the YAML config file.")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Log as JSON instead of console text.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging.")
}

// ExecuteContext runs the CLI and exits non-zero on any fatal error.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		for _, hint := range errors.FlattenHints(err) {
			fmt.Fprintln(os.Stderr, "Hint:", hint)
		}
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "load config"), "Check the file passed with --config.")
	}
	return cfg, nil
}
