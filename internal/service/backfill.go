package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"odds-collector/internal/config"
	"odds-collector/internal/metrics"
	"odds-collector/internal/oddsapi"
	"odds-collector/internal/storage"
)

// CollectionTarget is one historical request: a date, the UTC time asked for, and the series label.
type CollectionTarget struct {
	Date        time.Time
	RequestedAt time.Time
	Label       string
}

// DateString is the target date as YYYY-MM-DD.
func (t CollectionTarget) DateString() string {
	return t.Date.Format(config.DateLayout)
}

// BackfillOptions describe a backfill range.
type BackfillOptions struct {
	Start     time.Time
	End       time.Time
	HourUTC   int
	MinuteUTC int
	Label     string
}

// Validate checks ranges and the requested time of day.
func (o BackfillOptions) Validate() error {
	if o.HourUTC < 0 || o.HourUTC > 23 {
		return fmt.Errorf("snapshot hour must be between 0 and 23")
	}
	if o.MinuteUTC < 0 || o.MinuteUTC > 59 {
		return fmt.Errorf("snapshot minute must be between 0 and 59")
	}
	if err := config.CheckLabel(strings.TrimSpace(o.Label)); err != nil {
		return err
	}
	if truncateDay(o.End).Before(truncateDay(o.Start)) {
		return fmt.Errorf("end date %s is before start date %s", o.End.Format(config.DateLayout), o.Start.Format(config.DateLayout))
	}
	return nil
}

// Targets enumerates one CollectionTarget per calendar date in [Start, End], ascending.
func (o BackfillOptions) Targets() ([]CollectionTarget, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	label := strings.TrimSpace(o.Label)
	end := truncateDay(o.End)
	var targets []CollectionTarget
	for day := truncateDay(o.Start); !day.After(end); day = day.AddDate(0, 0, 1) {
		targets = append(targets, CollectionTarget{
			Date:        day,
			RequestedAt: day.Add(time.Duration(o.HourUTC)*time.Hour + time.Duration(o.MinuteUTC)*time.Minute),
			Label:       label,
		})
	}
	return targets, nil
}

// BackfillReport summarises a backfill run.
type BackfillReport struct {
	Days        int
	Skipped     int
	Written     int
	NoGames     int
	Failed      int
	Requests    int
	Rows        int
	FailedDates []string
}

// HistoricalSettings select sport and bookmakers for historical snapshots.
type HistoricalSettings struct {
	Sport      string
	Bookmakers []string
	Aliases    map[string]string
}

// Backfiller walks a date range and collects one historical snapshot per missing date.
type Backfiller struct {
	source   oddsapi.HistoricalSource
	files    *storage.FileStore
	manifest storage.ManifestStore
	settings HistoricalSettings
	filter   BookmakerFilter
	runID    uuid.UUID
	logger   zerolog.Logger
}

// NewBackfiller constructs a Backfiller. manifest may be nil.
func NewBackfiller(source oddsapi.HistoricalSource, files *storage.FileStore, manifest storage.ManifestStore, settings HistoricalSettings, runID uuid.UUID, logger zerolog.Logger) *Backfiller {
	return &Backfiller{
		source:   source,
		files:    files,
		manifest: manifest,
		settings: settings,
		filter:   NewBookmakerFilter(settings.Bookmakers, settings.Aliases),
		runID:    runID,
		logger:   logger.With().Str("component", "backfiller").Logger(),
	}
}

// Run processes every date in the range in order. Transient failures are logged and the date is left
// for a later run; an authentication or quota error aborts the run and is returned.
func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (*BackfillReport, error) {
	targets, err := opts.Targets()
	if err != nil {
		return nil, err
	}

	report := &BackfillReport{Days: len(targets)}

	b.logger.Info().
		Str("start", opts.Start.Format(config.DateLayout)).
		Str("end", opts.End.Format(config.DateLayout)).
		Int("days", len(targets)).
		Str("sport", b.settings.Sport).
		Strs("bookmakers", b.settings.Bookmakers).
		Str("snapshot_time", fmt.Sprintf("%02d:%02d UTC", opts.HourUTC, opts.MinuteUTC)).
		Str("label", strings.TrimSpace(opts.Label)).
		Msg("starting historical backfill")

	for i, target := range targets {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		log := b.logger.With().
			Str("date", target.DateString()).
			Str("progress", fmt.Sprintf("%d/%d", i+1, len(targets))).
			Logger()

		if existing, collected := b.collected(ctx, target, log); collected {
			report.Skipped++
			metrics.DatesSkipped.Inc()
			log.Info().Str("existing", existing).Msg("already collected, skipping")
			continue
		}

		rows, err := b.collect(ctx, target, report, log)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if errors.Is(err, oddsapi.ErrUnauthorized) {
				log.Error().Err(err).Msg("odds api rejected credentials; aborting backfill")
				report.Failed++
				report.FailedDates = append(report.FailedDates, target.DateString())
				return report, err
			}
			report.Failed++
			report.FailedDates = append(report.FailedDates, target.DateString())
			metrics.UnitsFailed.WithLabelValues("historical").Inc()
			log.Error().Err(err).Msg("date failed; retry it with a later run")
			continue
		}
		report.Rows += rows
	}

	b.logger.Info().
		Int("rows", report.Rows).
		Int("written", report.Written).
		Int("skipped", report.Skipped).
		Int("no_games", report.NoGames).
		Int("failed", report.Failed).
		Int("requests", report.Requests).
		Strs("failed_dates", report.FailedDates).
		Msg("historical backfill finished")

	return report, nil
}

// collected reports whether the target is already on disk. A manifest row only counts
// while the file it points at still exists.
func (b *Backfiller) collected(ctx context.Context, target CollectionTarget, log zerolog.Logger) (string, bool) {
	path, found, err := b.files.FindHistorical(target.Date, target.Label)
	if err != nil {
		log.Warn().Err(err).Msg("existence check failed; treating date as missing")
	}
	if found {
		return path, true
	}

	if b.manifest == nil {
		return "", false
	}
	recorded, ok, err := b.manifest.SnapshotPath(ctx, storage.KindHistorical, target.Date, target.Label)
	if err != nil {
		log.Warn().Err(err).Msg("manifest lookup failed; relying on file check")
		return "", false
	}
	if !ok {
		return "", false
	}
	exists, err := b.files.Exists(recorded)
	if err != nil {
		log.Warn().Err(err).Str("path", recorded).Msg("manifest file check failed; treating date as missing")
		return "", false
	}
	if !exists {
		log.Info().Str("path", recorded).Msg("manifest entry points at a missing file; collecting again")
		return "", false
	}
	return recorded, true
}

func (b *Backfiller) collect(ctx context.Context, target CollectionTarget, report *BackfillReport, log zerolog.Logger) (int, error) {
	report.Requests++
	res, err := b.source.FetchHistoricalOdds(ctx, b.settings.Sport, target.RequestedAt)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues("historical", "error").Inc()
		return 0, err
	}
	metrics.RequestsTotal.WithLabelValues("historical", "ok").Inc()
	recordQuota("historical", res.Quota)

	prov := Provenance{
		Date:               target.DateString(),
		SnapshotTakenAt:    target.RequestedAt.Format(snapshotTimeLayout),
		APISnapshotAt:      res.Timestamp,
		ResponseReceivedAt: res.ResponseReceivedAt,
	}
	rows := FlattenGames(res.Games, b.settings.Sport, prov, b.filter, log)

	if len(rows) == 0 {
		report.NoGames++
		log.Info().Int("games", len(res.Games)).Str("requests_remaining", res.Quota.Remaining).Msg("no games found")
		return 0, nil
	}

	path := b.files.HistoricalPath(target.Date, target.Label)
	if err := b.files.WriteSnapshot(path, rows); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	report.Written++
	metrics.RowsWritten.WithLabelValues("historical").Add(float64(len(rows)))
	metrics.FilesWritten.WithLabelValues("historical").Inc()

	entry := storage.ManifestEntry{
		Kind:         storage.KindHistorical,
		SnapshotDate: target.Date,
		Label:        target.Label,
		Sport:        b.settings.Sport,
		FilePath:     path,
		RequestedAt:  target.RequestedAt,
		RowCount:     len(rows),
		RunID:        b.runID,
	}
	if resolved, err := time.Parse(time.RFC3339, res.Timestamp); err == nil {
		entry.APISnapshotAt = &resolved
	}
	if b.manifest != nil {
		if err := b.manifest.RecordSnapshot(ctx, entry); err != nil {
			log.Error().Err(err).Msg("failed to record manifest entry")
		}
	}

	log.Info().
		Int("rows", len(rows)).
		Int("games", len(res.Games)).
		Str("api_snapshot", res.Timestamp).
		Str("requests_remaining", res.Quota.Remaining).
		Str("path", path).
		Msg("snapshot written")
	return len(rows), nil
}
