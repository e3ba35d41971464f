package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://api.the-odds-api.com/v4", cfg.API.BaseURL)
	assert.Equal(t, []string{"h2h", "spreads", "totals"}, cfg.API.Markets)
	assert.Equal(t, 10*time.Second, cfg.API.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.API.MinInterval)
	assert.Equal(t, 17, cfg.Historical.HourUTC)
	assert.Equal(t, 0, cfg.Historical.MinuteUTC)
	assert.Equal(t, "2025-10-04", cfg.Historical.DefaultStart)
	assert.Equal(t, "2026-01-09", cfg.Historical.DefaultEnd)
	assert.Equal(t, "caesars", cfg.Historical.BookmakerAliases["williamhill_us"])
	assert.Equal(t, "snapshot", cfg.Live.Label)
	assert.Equal(t, []string{"betmgm", "williamhill_us"}, cfg.Live.Bookmakers)
	assert.Equal(t, "caesars", cfg.Live.BookmakerAliases["williamhill_us"])
	assert.Equal(t, "odds-data/historical", cfg.Storage.HistoricalDir)
	assert.NotZero(t, cfg.Historical.AdvisoryLockKey)
	assert.NotEqual(t, cfg.Scheduler.AdvisoryLockKey, cfg.Historical.AdvisoryLockKey)
}

func TestLoadBindsDeploymentEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("ODDS_API_KEY", "live-key")
	t.Setenv("HISTORICAL_ODDS_API_KEY", "hist-key")
	t.Setenv("ODDS_SNAPSHOT_LABEL", "  Open_9PM_PST ")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "live-key", cfg.API.Key)
	assert.Equal(t, "hist-key", cfg.API.HistoricalKey)
	assert.Equal(t, "open_9pm_pst", cfg.Live.Label)
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("HISTORICAL_ODDS_API_KEY=from-dotenv\n"), 0o600))
	// godotenv never overrides a variable that is already present.
	t.Setenv("HISTORICAL_ODDS_API_KEY", "")
	require.NoError(t, os.Unsetenv("HISTORICAL_ODDS_API_KEY"))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.API.HistoricalKey)
}

func TestLoadFileAndValidation(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("historical:\n  hour_utc: 16\n  minute_utc: 30\nlive:\n  sports: [icehockey_nhl, basketball_nba]\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Historical.HourUTC)
	assert.Equal(t, 30, cfg.Historical.MinuteUTC)
	assert.Equal(t, []string{"icehockey_nhl", "basketball_nba"}, cfg.Live.Sports)

	require.NoError(t, os.WriteFile(path, []byte("historical:\n  hour_utc: 24\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("historical:\n  advisory_lock_key: 7\nscheduler:\n  advisory_lock_key: 7\n"), 0o644))
	_, err = Load(path)
	assert.ErrorContains(t, err, "must differ")
}

func TestCheckLabel(t *testing.T) {
	assert.NoError(t, CheckLabel(""))
	assert.NoError(t, CheckLabel("open_9pm_pst"))
	assert.Error(t, CheckLabel("a/b"))
	assert.Error(t, CheckLabel(`a\b`))
	assert.Error(t, CheckLabel("../x"))
}

func TestNormalizeLiveLabel(t *testing.T) {
	assert.Equal(t, "snapshot", NormalizeLiveLabel("   "))
	assert.Equal(t, "close", NormalizeLiveLabel("Close"))
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir in Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
