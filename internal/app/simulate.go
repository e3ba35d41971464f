package app

import (
	"context"
	"errors"

	"odds-collector/internal/alerting"
	"odds-collector/internal/logging"
)

// SimulateAlert sends a synthetic failure summary through the configured notifier.
func (a *App) SimulateAlert(ctx context.Context, message string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	_, runID := logging.WithRun(a.Logger)
	note := alerting.Notification{
		Command:       "simulate-alert",
		RunID:         runID,
		FinishedAt:    a.now().UTC(),
		Failed:        1,
		FailedUnits:   []string{a.now().UTC().Format("2006-01-02")},
		AdditionalMsg: message,
	}
	return notifier.Notify(ctx, note)
}
