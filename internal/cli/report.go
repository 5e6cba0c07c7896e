package cli

import (
	"github.com/spf13/cobra"

	"coin-screener/internal/app"
)

var reportTopK int

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a top gainers/losers ranking report",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.ReportOptions{
			TopK: reportTopK,
		}
		return getApp().Report(cmd.Context(), opts)
	},
}

func init() {
	reportCmd.Flags().IntVar(&reportTopK, "top-k", 0, "Ranking depth (defaults to config)")
}
