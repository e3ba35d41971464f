package cli

import (
	"github.com/spf13/cobra"

	"odds-collector/internal/repair"
)

var (
	repairPaths  []string
	repairHour   int
	repairDryRun bool
)

var repairCmd = &cobra.Command{
	Use:   "repair-timestamps",
	Short: "Add missing timestamp columns to existing snapshot files",
	Long: `Scans existing odds_*.csv files, adds any missing timestamp columns, and fills
snapshot_taken_at_utc when the file name still encodes when the snapshot was taken.
Values that cannot be reconstructed are left blank. No API requests are made.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		a.Out = cmd.OutOrStdout()
		return a.RepairTimestamps(repair.Options{
			Paths:             repairPaths,
			HistoricalHourUTC: repairHour,
			DryRun:            repairDryRun,
		})
	},
}

func init() {
	repairCmd.Flags().StringSliceVar(&repairPaths, "paths", repair.DefaultPaths, "Directories or files to process")
	repairCmd.Flags().IntVar(&repairHour, "historical-hour-utc", 17, "Hour used for historical odds_<date>.csv files")
	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "Report changes without writing files")
}
