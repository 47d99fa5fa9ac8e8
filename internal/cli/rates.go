package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"uah-rates-bot/internal/app"
	"uah-rates-bot/internal/model"
)

var (
	historyCurrency string
	historySource   string
	historyHours    int
	historyLimit    int
)

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Fetch and print current rates from every provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().CurrentRates(cmd.Context())
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Display stored rate history",
	RunE: func(cmd *cobra.Command, args []string) error {
		currency, source, err := parseKey(historyCurrency, historySource)
		if err != nil {
			return err
		}
		if historyLimit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}

		opts := app.HistoryOptions{
			Currency: currency,
			Source:   source,
			Hours:    historyHours,
			Limit:    historyLimit,
		}
		return getApp().History(cmd.Context(), opts)
	},
}

func parseKey(currencyArg, sourceArg string) (model.Currency, model.Source, error) {
	currency, err := model.ParseCurrency(currencyArg)
	if err != nil {
		return "", "", fmt.Errorf("invalid --currency value: %w", err)
	}
	source, err := model.ParseSource(sourceArg)
	if err != nil {
		return "", "", fmt.Errorf("invalid --source value: %w", err)
	}
	return currency, source, nil
}

func init() {
	historyCmd.Flags().StringVar(&historyCurrency, "currency", "USD", "Currency (USD or EUR)")
	historyCmd.Flags().StringVar(&historySource, "source", "monobank", "Source (nbu, monobank, privatbank)")
	historyCmd.Flags().IntVar(&historyHours, "hours", 24, "Look-back window in hours (0 for everything kept)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of newest entries to display (0 for all)")
}
