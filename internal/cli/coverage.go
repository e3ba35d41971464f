package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"odds-collector/internal/app"
	"odds-collector/internal/config"
)

var coverageLabel string

var coverageCmd = &cobra.Command{
	Use:   "coverage [start_date end_date]",
	Short: "Show which dates already have snapshots",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("provide both start_date and end_date, or neither")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.Out = cmd.OutOrStdout()

		startStr, endStr := a.Config.Historical.DefaultStart, a.Config.Historical.DefaultEnd
		if len(args) == 2 {
			startStr, endStr = args[0], args[1]
		}
		start, err := time.Parse(config.DateLayout, startStr)
		if err != nil {
			return fmt.Errorf("invalid start_date %q: expected YYYY-MM-DD", startStr)
		}
		end, err := time.Parse(config.DateLayout, endStr)
		if err != nil {
			return fmt.Errorf("invalid end_date %q: expected YYYY-MM-DD", endStr)
		}

		return a.Coverage(cmd.Context(), app.CoverageOptions{Start: start, End: end, Label: coverageLabel})
	},
}

func init() {
	coverageCmd.Flags().StringVar(&coverageLabel, "snapshot-label", "", "Report a labeled snapshot series")
}
