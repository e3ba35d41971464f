package cli

import (
	"github.com/spf13/cobra"

	"odds-collector/internal/app"
)

var fetchLabel string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Write one live odds snapshot for the configured sports",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Fetch(cmd.Context(), app.FetchOptions{Label: fetchLabel})
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchLabel, "label", "", "Snapshot label for the file name (defaults to ODDS_SNAPSHOT_LABEL or \"snapshot\")")
}
