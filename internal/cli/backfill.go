package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"odds-collector/internal/config"
	"odds-collector/internal/service"
)

var (
	backfillHour   int
	backfillMinute int
	backfillLabel  string
)

var backfillCmd = &cobra.Command{
	Use:   "backfill [start_date end_date]",
	Short: "Collect one historical snapshot per missing date",
	Long: `Walks the inclusive date range in ascending order and requests one historical snapshot
per date that has no file yet. Dates already collected are skipped without an API request,
so the command is safe to re-run over overlapping ranges.`,
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 0 && len(args) != 2 {
			return fmt.Errorf("provide both start_date and end_date, or neither")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		a := getApp()
		hist := a.Config.Historical

		startStr, endStr := hist.DefaultStart, hist.DefaultEnd
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

		opts := service.BackfillOptions{
			Start:     start,
			End:       end,
			HourUTC:   hist.HourUTC,
			MinuteUTC: hist.MinuteUTC,
			Label:     backfillLabel,
		}
		if cmd.Flags().Changed("snapshot-hour-utc") {
			opts.HourUTC = backfillHour
		}
		if cmd.Flags().Changed("snapshot-minute-utc") {
			opts.MinuteUTC = backfillMinute
		}

		return a.Backfill(cmd.Context(), opts)
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillHour, "snapshot-hour-utc", 17, "UTC hour to request for each date (defaults to historical.hour_utc)")
	backfillCmd.Flags().IntVar(&backfillMinute, "snapshot-minute-utc", 0, "UTC minute to request for each date (defaults to historical.minute_utc)")
	backfillCmd.Flags().StringVar(&backfillLabel, "snapshot-label", "", "Label appended to file names for an independent snapshot series")
}
