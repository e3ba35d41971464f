// Package metrics exposes Prometheus counters for collection runs.
// Runs are short-lived, so the counters are written to a node_exporter textfile instead of being scraped.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry holds the collector metrics only, without Go runtime noise.
	Registry = prometheus.NewRegistry()

	factory = promauto.With(Registry)

	// RequestsTotal counts odds API requests by endpoint (live, historical) and outcome.
	RequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odds_api_requests_total",
			Help: "Odds API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	// RowsWritten counts snapshot rows persisted.
	RowsWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odds_rows_written_total",
			Help: "Snapshot rows written to CSV",
		},
		[]string{"kind"},
	)

	// FilesWritten counts snapshot files created.
	FilesWritten = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odds_files_written_total",
			Help: "Snapshot files created",
		},
		[]string{"kind"},
	)

	// DatesSkipped counts backfill dates already covered by an existing snapshot.
	DatesSkipped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "odds_backfill_dates_skipped_total",
			Help: "Backfill dates skipped because a snapshot already exists",
		},
	)

	// UnitsFailed counts dates or sports that were given up on.
	UnitsFailed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "odds_units_failed_total",
			Help: "Dates (historical) or sports (live) skipped after an error",
		},
		[]string{"kind"},
	)

	// QuotaRemaining is the last x-requests-remaining value seen.
	QuotaRemaining = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "odds_api_quota_remaining",
			Help: "Remaining odds API requests reported by the last response",
		},
		[]string{"endpoint"},
	)

	// LastRunTimestamp is the unix time of the last completed command.
	LastRunTimestamp = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "odds_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		},
		[]string{"command"},
	)
)

// WriteTextfile dumps the registry in text exposition format to path.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
