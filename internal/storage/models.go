package storage

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Columns is the CSV header shared by every writer, in order.
var Columns = []string{
	"date",
	"sport",
	"game_id",
	"commence_time",
	"home_team",
	"away_team",
	"bookmaker",
	"snapshot_taken_at_utc",
	"api_snapshot_timestamp_utc",
	"response_received_at_utc",
	"bookmaker_last_update_utc",
	"ml_home",
	"ml_away",
	"spread_home",
	"spread_home_odds",
	"spread_away",
	"spread_away_odds",
	"total_line",
	"total_over_odds",
	"total_under_odds",
}

// TimestampColumns are the provenance columns added after the first data collections.
var TimestampColumns = []string{
	"snapshot_taken_at_utc",
	"api_snapshot_timestamp_utc",
	"response_received_at_utc",
	"bookmaker_last_update_utc",
}

// OddsSnapshotRow is one bookmaker's lines for one game at one point in time.
// Field order matches Columns.
type OddsSnapshotRow struct {
	Date         string `csv:"date"`
	Sport        string `csv:"sport"`
	GameID       string `csv:"game_id"`
	CommenceTime string `csv:"commence_time"`
	HomeTeam     string `csv:"home_team"`
	AwayTeam     string `csv:"away_team"`
	Bookmaker    string `csv:"bookmaker"`

	// SnapshotTakenAt is the requested snapshot time.
	SnapshotTakenAt string `csv:"snapshot_taken_at_utc"`
	// APISnapshotAt is the snapshot time the historical endpoint resolved to. Blank for live pulls.
	APISnapshotAt      string `csv:"api_snapshot_timestamp_utc"`
	ResponseReceivedAt string `csv:"response_received_at_utc"`
	BookmakerUpdatedAt string `csv:"bookmaker_last_update_utc"`

	MLHome         Number `csv:"ml_home"`
	MLAway         Number `csv:"ml_away"`
	SpreadHome     Number `csv:"spread_home"`
	SpreadHomeOdds Number `csv:"spread_home_odds"`
	SpreadAway     Number `csv:"spread_away"`
	SpreadAwayOdds Number `csv:"spread_away_odds"`
	TotalLine      Number `csv:"total_line"`
	TotalOverOdds  Number `csv:"total_over_odds"`
	TotalUnderOdds Number `csv:"total_under_odds"`
}

// Number is an optional numeric cell. Invalid values render as an empty cell.
type Number struct {
	decimal.NullDecimal
}

// NewNumber wraps a decimal.NullDecimal.
func NewNumber(v decimal.NullDecimal) Number {
	return Number{NullDecimal: v}
}

// MarshalCSV implements gocsv.TypeMarshaller. Values keep the precision they were parsed with,
// so a point of 6.0 is written as 6.0.
func (n Number) MarshalCSV() (string, error) {
	if !n.Valid {
		return "", nil
	}
	if exp := n.Decimal.Exponent(); exp < 0 {
		return n.Decimal.StringFixed(-exp), nil
	}
	return n.Decimal.String(), nil
}

// UnmarshalCSV implements gocsv.TypeUnmarshaller.
func (n *Number) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		n.NullDecimal = decimal.NullDecimal{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return err
	}
	n.NullDecimal = decimal.NewNullDecimal(d)
	return nil
}

// Float returns the value as float64 and whether it is set.
func (n Number) Float() (float64, bool) {
	if !n.Valid {
		return 0, false
	}
	return n.Decimal.InexactFloat64(), true
}

// SnapshotKind separates live pulls from historical backfills in the manifest.
type SnapshotKind string

const (
	KindLive       SnapshotKind = "live"
	KindHistorical SnapshotKind = "historical"
)

// ManifestEntry records one written snapshot file.
type ManifestEntry struct {
	Kind          SnapshotKind
	SnapshotDate  time.Time
	Label         string
	Sport         string
	FilePath      string
	RequestedAt   time.Time
	APISnapshotAt *time.Time
	RowCount      int
	RunID         uuid.UUID
	CreatedAt     time.Time
}
