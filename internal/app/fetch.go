package app

import (
	"context"

	"odds-collector/internal/alerting"
	"odds-collector/internal/logging"
	"odds-collector/internal/service"
)

// Fetch takes one live snapshot of every configured sport.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) error {
	logger, runID := logging.WithRun(a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	collector := service.NewLiveCollector(
		a.newClient(a.Config.API.Key, logger),
		a.newFileStore(),
		manifestOf(store),
		a.liveOptions(opts.Label),
		runID,
		logger,
	)

	report, runErr := collector.Collect(ctx, a.now())
	if report == nil {
		report = &service.LiveReport{}
	}

	note := alerting.Notification{
		RunID:       runID,
		Requests:    len(a.Config.Live.Sports),
		Failed:      len(report.FailedSports),
		FailedUnits: report.FailedSports,
	}
	if report.Path != "" {
		note.Written = 1
	}
	return a.finish(ctx, "fetch", note, runErr)
}
