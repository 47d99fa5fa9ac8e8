package cli

import (
	"github.com/spf13/cobra"

	"uah-rates-bot/internal/app"
)

var (
	exportCurrency  string
	exportSource    string
	exportHours     int
	exportPNGPath   string
	exportCSVPath   string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export rate history as CSV and/or PNG chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		currency, source, err := parseKey(exportCurrency, exportSource)
		if err != nil {
			return err
		}

		opts := app.ExportOptions{
			Currency:  currency,
			Source:    source,
			Hours:     exportHours,
			PNGPath:   exportPNGPath,
			CSVPath:   exportCSVPath,
			MaxPoints: exportMaxPoints,
		}
		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportCurrency, "currency", "USD", "Currency (USD or EUR)")
	exportCmd.Flags().StringVar(&exportSource, "source", "monobank", "Source (nbu, monobank, privatbank)")
	exportCmd.Flags().IntVar(&exportHours, "hours", 168, "Look-back window in hours (0 for everything kept)")
	exportCmd.Flags().StringVar(&exportPNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportCSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (defaults to config)")
}
