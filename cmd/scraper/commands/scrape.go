package commands

import (
	"SupplyScraper/internal/app"
	"SupplyScraper/pkg/config"

	"github.com/spf13/cobra"
)

var scrapeFlags struct {
	output   string
	exclude  string
	driver   string
	headless bool
	resume   bool
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVarP(&scrapeFlags.output, "output", "o", "", "Result workbook to write (default from config).")
	f.StringVar(&scrapeFlags.exclude, "exclude", "", "Workbook whose product numbers are skipped.")
	f.StringVar(&scrapeFlags.driver, "driver", "", "Session driver: browser or http (default from config).")
	f.BoolVar(&scrapeFlags.headless, "headless", false, "Run the browser without a window.")
	f.BoolVar(&scrapeFlags.resume, "resume", false, "Continue the last unfinished run for the same output file.")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape <input.xlsx>",
	Short: "Scrapes every product in an input workbook and writes a result workbook.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Override(config.Config{
			Scraper: config.ScraperConfig{Driver: scrapeFlags.driver},
			Output:  config.OutputConfig{Path: scrapeFlags.output},
		}); err != nil {
			return err
		}
		if cmd.Flags().Changed("headless") {
			cfg.Scraper.Headless = scrapeFlags.headless
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		application := app.New(cfg)
		summary, err := application.RunScrape(cmd.Context(), args[0], app.ScrapeOptions{
			Exclude: scrapeFlags.exclude,
			Resume:  scrapeFlags.resume,
		})
		if summary.RunID != "" {
			application.PrintScrapeSummary(summary)
		}
		return err
	},
}
