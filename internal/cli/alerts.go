package cli

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"uah-rates-bot/internal/model"
)

var alertsUser int64

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Manage user alert rules",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert rules (all users unless --user is set)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().ListAlerts(cmd.Context(), alertsUser)
	},
}

var alertsAddCmd = &cobra.Command{
	Use:   "add <currency> <percent|price> <threshold>",
	Short: "Create an alert rule for --user",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsUser == 0 {
			return fmt.Errorf("--user is required")
		}
		currency, err := model.ParseCurrency(args[0])
		if err != nil {
			return err
		}
		kind, err := model.ParseAlertType(args[1])
		if err != nil {
			return err
		}
		threshold, err := decimal.NewFromString(args[2])
		if err != nil {
			return fmt.Errorf("invalid threshold: %w", err)
		}
		return getApp().AddAlert(cmd.Context(), alertsUser, currency, kind, threshold)
	},
}

var alertsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an alert rule of --user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsUser == 0 {
			return fmt.Errorf("--user is required")
		}
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid alert id: %w", err)
		}
		return getApp().DeleteAlert(cmd.Context(), alertsUser, id)
	},
}

func init() {
	alertsCmd.PersistentFlags().Int64Var(&alertsUser, "user", 0, "Telegram user id")
	alertsCmd.AddCommand(alertsListCmd, alertsAddCmd, alertsDeleteCmd)
}
