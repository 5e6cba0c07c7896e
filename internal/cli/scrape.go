package cli

import (
	"github.com/spf13/cobra"

	"coin-screener/internal/app"
)

var (
	scrapeOut   string
	scrapeLimit int
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "One-off export of the current top-N tickers as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ScrapeOptions{
			OutPath: scrapeOut,
			Limit:   scrapeLimit,
		}
		return getApp().Scrape(cmd.Context(), opts)
	},
}

func init() {
	scrapeCmd.Flags().StringVar(&scrapeOut, "out", "binance_data.json", "Path to write the JSON export")
	scrapeCmd.Flags().IntVar(&scrapeLimit, "limit", 0, "Number of tickers to export (defaults to config)")
}
