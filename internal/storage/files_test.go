package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odds-collector/internal/config"
)

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	root := t.TempDir()
	return NewFileStore(config.StorageConfig{
		DataRoot:      filepath.Join(root, "odds-data"),
		LiveDir:       filepath.Join(root, "data"),
		HistoricalDir: filepath.Join(root, "odds-data", "historical"),
	}), root
}

func sampleRow() OddsSnapshotRow {
	return OddsSnapshotRow{
		Date:            "2025-01-13",
		Sport:           "NHL",
		GameID:          "g1",
		CommenceTime:    "2025-01-14T00:10:00Z",
		HomeTeam:        "Boston Bruins",
		AwayTeam:        "Toronto Maple Leafs",
		Bookmaker:       "betmgm",
		SnapshotTakenAt: "2025-01-13T17:00:00Z",
		APISnapshotAt:   "2025-01-13T16:55:00Z",
		MLHome:          NewNumber(decimal.NewNullDecimal(decimal.NewFromInt(-135))),
		MLAway:          NewNumber(decimal.NewNullDecimal(decimal.NewFromInt(115))),
		SpreadHome:      NewNumber(decimal.NewNullDecimal(decimal.RequireFromString("-1.5"))),
		TotalLine:       NewNumber(decimal.NewNullDecimal(decimal.RequireFromString("6.5"))),
	}
}

func TestFileNames(t *testing.T) {
	date := time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
	takenAt := time.Date(2025, 1, 13, 17, 4, 5, 0, time.UTC)

	assert.Equal(t, "odds_2025-01-13.csv", DateFileName(date, ""))
	assert.Equal(t, "odds_2025-01-13_open_9pm_pst.csv", DateFileName(date, "open_9pm_pst"))
	assert.Equal(t, "odds_2025-01-13_snapshot_20250113T170405Z.csv", LiveFileName("snapshot", takenAt))
}

func TestParseFileName(t *testing.T) {
	p, ok := ParseFileName("odds_2025-01-13_open_9pm_pst_20250114T050000Z.csv")
	require.True(t, ok)
	assert.Equal(t, NameTimestamped, p.Kind)
	assert.Equal(t, "open_9pm_pst", p.Label)
	assert.Equal(t, time.Date(2025, 1, 14, 5, 0, 0, 0, time.UTC), p.TakenAt)

	p, ok = ParseFileName("odds_2025-01-13.csv")
	require.True(t, ok)
	assert.Equal(t, NamePlain, p.Kind)
	assert.Equal(t, "2025-01-13", p.Date)

	p, ok = ParseFileName("odds_2025-01-13_close.csv")
	require.True(t, ok)
	assert.Equal(t, NameLabeled, p.Kind)
	assert.Equal(t, "close", p.Label)

	_, ok = ParseFileName("notes.csv")
	assert.False(t, ok)
}

func TestWriteSnapshotHeaderAndValues(t *testing.T) {
	store, _ := newTestStore(t)
	path := store.HistoricalPath(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), "")

	require.NoError(t, store.WriteSnapshot(path, []OddsSnapshotRow{sampleRow()}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Columns, ","), lines[0])
	assert.Equal(t, "2025-01-13,NHL,g1,2025-01-14T00:10:00Z,Boston Bruins,Toronto Maple Leafs,betmgm,2025-01-13T17:00:00Z,2025-01-13T16:55:00Z,,,-135,115,-1.5,,,,6.5,,", lines[1])

	rows, err := ReadSnapshot(path)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "g1", rows[0].GameID)
	v, ok := rows[0].MLHome.Float()
	assert.True(t, ok)
	assert.Equal(t, -135.0, v)
	assert.False(t, rows[0].SpreadAway.Valid)

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), ".odds-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestWriteSnapshotNeverOverwrites(t *testing.T) {
	store, _ := newTestStore(t)
	path := store.HistoricalPath(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), "")

	require.NoError(t, store.WriteSnapshot(path, []OddsSnapshotRow{sampleRow()}))
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	other := sampleRow()
	other.GameID = "g2"
	err = store.WriteSnapshot(path, []OddsSnapshotRow{other})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSnapshotExists))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestFindHistorical(t *testing.T) {
	store, root := newTestStore(t)
	date := time.Date(2024, 11, 2, 0, 0, 0, 0, time.UTC)

	_, found, err := store.FindHistorical(date, "")
	require.NoError(t, err)
	assert.False(t, found)

	// a plain daily pull in the data root covers the unlabeled series
	plain := filepath.Join(root, "odds-data", "odds_2024-11-02.csv")
	require.NoError(t, os.MkdirAll(filepath.Dir(plain), 0o755))
	require.NoError(t, os.WriteFile(plain, []byte("date\n"), 0o644))

	path, found, err := store.FindHistorical(date, "")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, plain, path)

	// but never a labeled series
	_, found, err = store.FindHistorical(date, "open")
	require.NoError(t, err)
	assert.False(t, found)

	labeled := store.HistoricalPath(date, "open")
	require.NoError(t, store.WriteSnapshot(labeled, []OddsSnapshotRow{sampleRow()}))
	path, found, err = store.FindHistorical(date, "open")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, labeled, path)
}

func TestListSnapshotFiles(t *testing.T) {
	store, root := newTestStore(t)
	takenAt := time.Date(2025, 1, 13, 17, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteSnapshot(store.LivePath("snapshot", takenAt), []OddsSnapshotRow{sampleRow()}))
	require.NoError(t, store.WriteSnapshot(store.HistoricalPath(takenAt, ""), []OddsSnapshotRow{sampleRow()}))
	require.NoError(t, os.WriteFile(filepath.Join(root, "odds-data", "README.md"), []byte("x"), 0o644))

	files, err := store.ListSnapshotFiles()
	require.NoError(t, err)
	assert.Len(t, files, 2, "historical files must not be listed twice")
}

func TestNumberKeepsSourcePrecision(t *testing.T) {
	var outcome struct {
		Price decimal.NullDecimal `json:"price"`
		Point decimal.NullDecimal `json:"point"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"price": -110, "point": 6.0}`), &outcome))

	point, err := NewNumber(outcome.Point).MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "6.0", point)

	price, err := NewNumber(outcome.Price).MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "-110", price)

	var n Number
	require.NoError(t, n.UnmarshalCSV("5.50"))
	cell, err := n.MarshalCSV()
	require.NoError(t, err)
	assert.Equal(t, "5.50", cell)

	cell, err = Number{}.MarshalCSV()
	require.NoError(t, err)
	assert.Empty(t, cell)
}

func TestStoreWithoutPool(t *testing.T) {
	var s *Store
	_, _, err := s.SnapshotPath(context.Background(), KindHistorical, time.Now(), "")
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, NewStore(nil).RecordSnapshot(context.Background(), ManifestEntry{}), ErrNotConfigured)
}
