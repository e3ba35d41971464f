package repair

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"odds-collector/internal/storage"
)

const legacyCSV = "date,sport,game_id,commence_time,home_team,away_team,bookmaker,ml_home,ml_away,spread_home,spread_home_odds,spread_away,spread_away_odds,total_line,total_over_odds,total_under_odds\n" +
	"2024-11-02,NHL,g1,2024-11-02T23:00:00Z,Boston Bruins,Chicago Blackhawks,betmgm,-200,165,-1.5,110,1.5,-130,6.5,-110,-110\n"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInferSnapshotTime(t *testing.T) {
	cases := map[string]string{
		"odds-data/odds_2025-01-13_open_9pm_pst_20250114T050000Z.csv": "2025-01-14T05:00:00Z",
		"data/odds_2025-01-13_snapshot_20250113T170405Z.csv":          "2025-01-13T17:04:05Z",
		"odds-data/historical/odds_2024-11-02.csv":                    "2024-11-02T18:00:00Z",
		"odds-data/odds_2024-11-02.csv":                               "2024-11-02T00:00:00Z",
		"odds-data/historical/odds_2024-11-02_close.csv":              "",
		"odds-data/odds_notes.csv":                                    "",
	}
	for path, want := range cases {
		assert.Equal(t, want, InferSnapshotTime(path, 18), path)
	}
}

func TestRepairFillsAndReorders(t *testing.T) {
	root := t.TempDir()
	historical := filepath.Join(root, "odds-data", "historical", "odds_2024-11-02.csv")
	writeFile(t, historical, legacyCSV)

	r, err := New(Options{Paths: []string{filepath.Join(root, "odds-data")}, HistoricalHourUTC: 17}, zerolog.Nop())
	require.NoError(t, err)

	var out bytes.Buffer
	summary, err := r.Run(&out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Contains(t, out.String(), "UPDATED "+historical+" (added 4 columns, filled snapshot_taken_at_utc in 1 rows)")
	assert.Contains(t, out.String(), "WRITE complete: 1 updated, 0 unchanged, 1 scanned")

	raw, err := os.ReadFile(historical)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(storage.Columns, ","), lines[0])
	assert.Equal(t, "2024-11-02,NHL,g1,2024-11-02T23:00:00Z,Boston Bruins,Chicago Blackhawks,betmgm,2024-11-02T17:00:00Z,,,,-200,165,-1.5,110,1.5,-130,6.5,-110,-110", lines[1])

	// repaired files read back through the regular snapshot decoder
	rows, err := storage.ReadSnapshot(historical)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-11-02T17:00:00Z", rows[0].SnapshotTakenAt)

	// a second pass has nothing to do
	out.Reset()
	summary, err = r.Run(&out)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Updated)
	assert.Equal(t, 1, summary.Unchanged)
}

func TestRepairDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "odds-data", "odds_2024-11-02.csv")
	writeFile(t, path, legacyCSV)

	r, err := New(Options{Paths: []string{filepath.Join(root, "odds-data")}, HistoricalHourUTC: 17, DryRun: true}, zerolog.Nop())
	require.NoError(t, err)

	var out bytes.Buffer
	summary, err := r.Run(&out)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Contains(t, out.String(), "DRY RUN complete: 1 updated, 0 unchanged, 1 scanned")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, legacyCSV, string(raw))
}

func TestRepairKeepsExistingValuesAndExtraColumns(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "data", "odds_2025-01-13_snapshot_20250113T170000Z.csv")
	writeFile(t, path, "date,game_id,notes,snapshot_taken_at_utc\n2025-01-13,g1,keep me,2025-01-13T16:59:58Z\n2025-01-13,g2,,\n")

	r, err := New(Options{Paths: []string{path}, HistoricalHourUTC: 17}, zerolog.Nop())
	require.NoError(t, err)

	res, err := r.File(path)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "date,game_id,snapshot_taken_at_utc,api_snapshot_timestamp_utc,response_received_at_utc,bookmaker_last_update_utc,notes", lines[0])
	assert.Equal(t, "2025-01-13,g1,2025-01-13T16:59:58Z,,,,keep me", lines[1])
	assert.Equal(t, "2025-01-13,g2,2025-01-13T17:00:00Z,,,,", lines[2])
}

func TestRepairEmptyAndHeaderOnly(t *testing.T) {
	root := t.TempDir()
	empty := filepath.Join(root, "odds_2024-11-01.csv")
	headerOnly := filepath.Join(root, "odds_2024-11-02.csv")
	writeFile(t, empty, "")
	writeFile(t, headerOnly, "date,sport\n")

	r, err := New(Options{Paths: []string{root}, HistoricalHourUTC: 17}, zerolog.Nop())
	require.NoError(t, err)

	res, err := r.File(empty)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Equal(t, "empty/no header", res.Reason)

	res, err = r.File(headerOnly)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "header-only update", res.Reason)

	raw, err := os.ReadFile(headerOnly)
	require.NoError(t, err)
	assert.Equal(t, "date,sport,snapshot_taken_at_utc,api_snapshot_timestamp_utc,response_received_at_utc,bookmaker_last_update_utc\n", string(raw))
}

func TestCollectFilesDeduplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "odds-data", "historical", "odds_2024-11-02.csv"), legacyCSV)
	writeFile(t, filepath.Join(root, "odds-data", "odds_2024-11-03.csv"), legacyCSV)
	writeFile(t, filepath.Join(root, "odds-data", "summary.csv"), "a\n")

	files, err := CollectFiles([]string{
		filepath.Join(root, "odds-data", "historical"),
		filepath.Join(root, "odds-data"),
		filepath.Join(root, "missing"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "odds-data", "historical", "odds_2024-11-02.csv"),
		filepath.Join(root, "odds-data", "odds_2024-11-03.csv"),
	}, files)
}

func TestOptionsValidate(t *testing.T) {
	_, err := New(Options{HistoricalHourUTC: 24}, zerolog.Nop())
	assert.Error(t, err)
	_, err = New(Options{HistoricalHourUTC: -1}, zerolog.Nop())
	assert.Error(t, err)
}
