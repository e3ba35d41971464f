package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"odds-collector/internal/alerting"
	"odds-collector/internal/logging"
	"odds-collector/internal/service"
)

// ErrLocked is returned when another backfill holds the advisory lock.
var ErrLocked = errors.New("another backfill is running (advisory lock held)")

// Backfill collects one historical snapshot per missing date in the range.
// Dates that fail are left for a later run and make the command exit non-zero.
func (a *App) Backfill(ctx context.Context, opts service.BackfillOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if a.Config.API.HistoricalKey == "" {
		return errors.New("HISTORICAL_ODDS_API_KEY is not set")
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, runID := logging.WithRun(a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	if store != nil && a.Config.Historical.AdvisoryLockKey != 0 {
		unlock, acquired, err := store.TryAdvisoryLock(ctx, a.Config.Historical.AdvisoryLockKey)
		if err != nil {
			return err
		}
		if !acquired {
			return ErrLocked
		}
		defer unlock()
	}

	hist := a.Config.Historical
	backfiller := service.NewBackfiller(
		a.newClient(a.Config.API.HistoricalKey, logger),
		a.newFileStore(),
		manifestOf(store),
		service.HistoricalSettings{
			Sport:      hist.Sport,
			Bookmakers: hist.Bookmakers,
			Aliases:    hist.BookmakerAliases,
		},
		runID,
		logger,
	)

	report, runErr := backfiller.Run(ctx, opts)
	if report == nil {
		report = &service.BackfillReport{}
	}

	note := alerting.Notification{
		RunID:       runID,
		Requests:    report.Requests,
		Written:     report.Written,
		Failed:      report.Failed,
		FailedUnits: report.FailedDates,
	}
	return a.finish(ctx, "backfill", note, runErr)
}
