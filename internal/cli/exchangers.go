package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"uah-rates-bot/internal/model"
)

var (
	exchangerAddress  string
	exchangerDistrict string
	exchangerPhone    string
	exchangerLat      float64
	exchangerLon      float64
)

var exchangersCmd = &cobra.Command{
	Use:   "exchangers",
	Short: "Manage the exchange-office directory",
}

var exchangersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exchange offices and their rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListExchangers(cmd.Context())
	},
}

var exchangersAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register an exchange office",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ex := model.Exchanger{
			Name:     args[0],
			Address:  exchangerAddress,
			District: exchangerDistrict,
			Phone:    exchangerPhone,
			Lat:      exchangerLat,
			Lon:      exchangerLon,
		}
		return getApp().AddExchanger(cmd.Context(), ex)
	},
}

var exchangersSetRateCmd = &cobra.Command{
	Use:   "set-rate <id> <currency> <buy> <sell>",
	Short: "Record an office's buy/sell rate",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid exchanger id: %w", err)
		}
		currency, err := model.ParseCurrency(args[1])
		if err != nil {
			return err
		}
		buy, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid buy rate: %w", err)
		}
		sell, err := decimal.NewFromString(args[3])
		if err != nil {
			return fmt.Errorf("invalid sell rate: %w", err)
		}
		return getApp().SetExchangerRate(cmd.Context(), id, currency, buy, sell)
	},
}

func init() {
	exchangersAddCmd.Flags().StringVar(&exchangerAddress, "address", "", "Street address")
	exchangersAddCmd.Flags().StringVar(&exchangerDistrict, "district", "", "City district")
	exchangersAddCmd.Flags().StringVar(&exchangerPhone, "phone", "", "Contact phone")
	exchangersAddCmd.Flags().Float64Var(&exchangerLat, "lat", 0, "Latitude")
	exchangersAddCmd.Flags().Float64Var(&exchangerLon, "lon", 0, "Longitude")
	exchangersCmd.AddCommand(exchangersListCmd, exchangersAddCmd, exchangersSetRateCmd)
}
