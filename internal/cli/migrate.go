package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate <up|up-one|down|status|version|reset>",
	Short:     "Apply or inspect database schema migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "up-one", "down", "status", "version", "reset"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context(), args[0])
	},
}
