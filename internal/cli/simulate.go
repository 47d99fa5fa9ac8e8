package cli

import (
	"errors"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"uah-rates-bot/internal/app"
	"uah-rates-bot/internal/model"
)

var (
	simulateCurrency string
	simulatePrevious float64
	simulateCurrent  float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Evaluate stored alert rules against a synthetic rate move",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulatePrevious <= 0 || simulateCurrent <= 0 {
			return errors.New("--previous and --current must be greater than 0")
		}
		currency, err := model.ParseCurrency(simulateCurrency)
		if err != nil {
			return err
		}

		opts := app.SimulateOptions{
			Currency: currency,
			Previous: decimal.NewFromFloat(simulatePrevious),
			Current:  decimal.NewFromFloat(simulateCurrent),
		}
		return getApp().SimulateAlert(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateCurrency, "currency", "USD", "Currency (USD or EUR)")
	simulateCmd.Flags().Float64Var(&simulatePrevious, "previous", 0, "Baseline monobank sell rate")
	simulateCmd.Flags().Float64Var(&simulateCurrent, "current", 0, "Current monobank sell rate")
}
