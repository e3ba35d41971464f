package cli

import (
	"github.com/spf13/cobra"
)

var simulateMessage string

var simulateCmd = &cobra.Command{
	Use:   "simulate-alert",
	Short: "Send a synthetic failure alert through the configured channels",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateAlert(cmd.Context(), simulateMessage)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateMessage, "message", "alert channel test", "Extra text appended to the alert")
}
