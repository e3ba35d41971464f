package app

import (
	"fmt"

	"odds-collector/internal/repair"
)

// RepairTimestamps normalises existing snapshot files in place, or only reports with DryRun.
func (a *App) RepairTimestamps(opts repair.Options) error {
	repairer, err := repair.New(opts, a.Logger)
	if err != nil {
		return err
	}
	summary, err := repairer.Run(a.Out)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("repair-timestamps: %d files failed: %w", summary.Failed, ErrIncomplete)
	}
	return nil
}
