package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"odds-collector/internal/config"
	"odds-collector/internal/metrics"
	"odds-collector/internal/oddsapi"
	"odds-collector/internal/storage"
)

const snapshotTimeLayout = "2006-01-02T15:04:05Z"

// LiveOptions configure a LiveCollector.
type LiveOptions struct {
	Sports     []string
	Bookmakers []string
	Aliases    map[string]string
	Label      string
}

// LiveReport summarises one live collection.
type LiveReport struct {
	Path         string
	Rows         int
	Games        int
	FailedSports []string
}

// LiveCollector writes one snapshot file per invocation from the current-odds endpoint.
type LiveCollector struct {
	source   oddsapi.LiveSource
	files    *storage.FileStore
	manifest storage.ManifestStore
	opts     LiveOptions
	runID    uuid.UUID
	logger   zerolog.Logger
}

// NewLiveCollector constructs a LiveCollector. manifest may be nil.
func NewLiveCollector(source oddsapi.LiveSource, files *storage.FileStore, manifest storage.ManifestStore, opts LiveOptions, runID uuid.UUID, logger zerolog.Logger) *LiveCollector {
	opts.Label = config.NormalizeLiveLabel(opts.Label)
	return &LiveCollector{
		source:   source,
		files:    files,
		manifest: manifest,
		opts:     opts,
		runID:    runID,
		logger:   logger.With().Str("component", "live_collector").Logger(),
	}
}

// Collect fetches every configured sport and writes the combined rows stamped with now.
// A failing sport is logged and skipped. An authentication or quota error stops further requests;
// rows already fetched are still written and the error is returned.
func (c *LiveCollector) Collect(ctx context.Context, now time.Time) (*LiveReport, error) {
	if err := config.CheckLabel(c.opts.Label); err != nil {
		return &LiveReport{}, err
	}
	now = now.UTC()
	dateStr := now.Format(config.DateLayout)
	takenAt := now.Format(snapshotTimeLayout)
	filter := NewBookmakerFilter(nil, c.opts.Aliases)

	report := &LiveReport{}
	var rows []storage.OddsSnapshotRow
	var fatal error

	c.logger.Info().Str("date", dateStr).Str("label", c.opts.Label).Strs("sports", c.opts.Sports).Msg("fetching live odds")

	for _, sport := range c.opts.Sports {
		res, err := c.source.FetchOdds(ctx, sport, c.opts.Bookmakers)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			metrics.RequestsTotal.WithLabelValues("live", "error").Inc()
			metrics.UnitsFailed.WithLabelValues("live").Inc()
			report.FailedSports = append(report.FailedSports, sport)
			if errors.Is(err, oddsapi.ErrUnauthorized) {
				c.logger.Error().Err(err).Str("sport", sport).Msg("odds api rejected credentials; stopping live fetch")
				fatal = err
				break
			}
			c.logger.Error().Err(err).Str("sport", sport).Msg("live fetch failed; continuing with remaining sports")
			continue
		}

		metrics.RequestsTotal.WithLabelValues("live", "ok").Inc()
		recordQuota("live", res.Quota)
		c.logger.Info().Str("sport", sport).Int("games", len(res.Games)).
			Str("requests_used", res.Quota.Used).
			Str("requests_remaining", res.Quota.Remaining).
			Msg("live odds received")

		prov := Provenance{
			Date:               dateStr,
			SnapshotTakenAt:    takenAt,
			ResponseReceivedAt: res.ResponseReceivedAt,
		}
		report.Games += len(res.Games)
		rows = append(rows, FlattenGames(res.Games, sport, prov, filter, c.logger)...)
	}

	if len(rows) == 0 {
		c.logger.Warn().Str("date", dateStr).Msg("no odds data found; nothing written")
		return report, fatal
	}

	path := c.files.LivePath(c.opts.Label, now)
	if err := c.files.WriteSnapshot(path, rows); err != nil {
		return report, fmt.Errorf("write live snapshot: %w", err)
	}
	report.Path = path
	report.Rows = len(rows)
	metrics.RowsWritten.WithLabelValues("live").Add(float64(len(rows)))
	metrics.FilesWritten.WithLabelValues("live").Inc()

	c.record(ctx, storage.ManifestEntry{
		Kind:         storage.KindLive,
		SnapshotDate: truncateDay(now),
		Label:        c.opts.Label,
		Sport:        strings.Join(c.opts.Sports, ","),
		FilePath:     path,
		RequestedAt:  now,
		RowCount:     len(rows),
		RunID:        c.runID,
	})

	c.logger.Info().Str("path", path).Int("rows", len(rows)).Msg("live snapshot written")
	return report, fatal
}

func (c *LiveCollector) record(ctx context.Context, entry storage.ManifestEntry) {
	if c.manifest == nil {
		return
	}
	if err := c.manifest.RecordSnapshot(ctx, entry); err != nil {
		c.logger.Error().Err(err).Str("path", entry.FilePath).Msg("failed to record manifest entry")
	}
}

func recordQuota(endpoint string, q oddsapi.Quota) {
	if q.Remaining == "" {
		return
	}
	if v, err := strconv.ParseFloat(q.Remaining, 64); err == nil {
		metrics.QuotaRemaining.WithLabelValues(endpoint).Set(v)
	}
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
