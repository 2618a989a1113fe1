package commands

import (
	"SupplyScraper/internal/app"
	"SupplyScraper/internal/merger"
	"SupplyScraper/pkg/config"

	"github.com/spf13/cobra"
)

var mergeFlags struct {
	output string
	policy string
	strict bool
}

func init() {
	f := mergeCmd.Flags()
	f.StringVarP(&mergeFlags.output, "output", "o", "", "Merged workbook to write.")
	f.StringVar(&mergeFlags.policy, "policy", "", "Conflict precedence: last or first (default from config).")
	f.BoolVar(&mergeFlags.strict, "strict", false, "Fail on the first conflicting field value.")
	_ = mergeCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(mergeCmd)
}

var mergeCmd = &cobra.Command{
	Use:   "merge <a.xlsx> <b.xlsx>... --output <merged.xlsx>",
	Short: "Merges result workbooks on product number.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Override(config.Config{Merge: config.MergeConfig{Policy: mergeFlags.policy}}); err != nil {
			return err
		}
		if cmd.Flags().Changed("strict") {
			cfg.Merge.Strict = mergeFlags.strict
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		application := app.New(cfg)
		summary, err := application.RunMerge(args, mergeFlags.output, merger.Options{
			Policy: cfg.Merge.Policy,
			Strict: cfg.Merge.Strict,
		})
		if err != nil {
			return err
		}
		application.PrintMergeSummary(summary)
		return nil
	},
}
