package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"odds-collector/internal/logging"
)

// DateLayout is the calendar date format used in file names and CLI arguments.
const DateLayout = "2006-01-02"

// Config materialises application configuration.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    logging.Config   `mapstructure:"logging"`
	API        APIConfig        `mapstructure:"api"`
	Live       LiveConfig       `mapstructure:"live"`
	Historical HistoricalConfig `mapstructure:"historical"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Alerting   AlertingConfig   `mapstructure:"alerting"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Export     ExportConfig     `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// APIConfig covers The Odds API connectivity.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Key           string        `mapstructure:"key"`
	HistoricalKey string        `mapstructure:"historical_key"`
	Regions       []string      `mapstructure:"regions"`
	Markets       []string      `mapstructure:"markets"`
	OddsFormat    string        `mapstructure:"odds_format"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryBackoff  time.Duration `mapstructure:"retry_backoff"`
	MinInterval   time.Duration `mapstructure:"min_interval"`
	UserAgent     string        `mapstructure:"user_agent"`
}

// LiveConfig drives the current-odds fetcher.
type LiveConfig struct {
	Sports           []string          `mapstructure:"sports"`
	Bookmakers       []string          `mapstructure:"bookmakers"`
	BookmakerAliases map[string]string `mapstructure:"bookmaker_aliases"`
	Label            string            `mapstructure:"label"`
}

// HistoricalConfig drives the backfiller. AdvisoryLockKey keeps two backfills apart and must
// differ from the scheduler key so scheduled live fetches keep running during a backfill.
type HistoricalConfig struct {
	Sport            string            `mapstructure:"sport"`
	Bookmakers       []string          `mapstructure:"bookmakers"`
	BookmakerAliases map[string]string `mapstructure:"bookmaker_aliases"`
	DefaultStart     string            `mapstructure:"default_start"`
	DefaultEnd       string            `mapstructure:"default_end"`
	HourUTC          int               `mapstructure:"hour_utc"`
	MinuteUTC        int               `mapstructure:"minute_utc"`
	AdvisoryLockKey  int64             `mapstructure:"advisory_lock_key"`
}

// StorageConfig locates the snapshot file tree.
type StorageConfig struct {
	DataRoot      string `mapstructure:"data_root"`
	LiveDir       string `mapstructure:"live_dir"`
	HistoricalDir string `mapstructure:"historical_dir"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity for the optional manifest.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SchedulerConfig governs the optional daemon mode.
type SchedulerConfig struct {
	Cron            string        `mapstructure:"cron"`
	Interval        time.Duration `mapstructure:"interval"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// AlertingConfig defines failure alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot target.
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("ODDSCOLLECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Live.Label = NormalizeLiveLabel(cfg.Live.Label)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindEnv maps the well-known unprefixed variables used by the deployment.
func bindEnv(v *viper.Viper) error {
	bindings := map[string]string{
		"api.key":            "ODDS_API_KEY",
		"api.historical_key": "HISTORICAL_ODDS_API_KEY",
		"live.label":         "ODDS_SNAPSHOT_LABEL",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s: %w", env, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "oddscollector")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("api.base_url", "https://api.the-odds-api.com/v4")
	v.SetDefault("api.regions", []string{"us"})
	v.SetDefault("api.markets", []string{"h2h", "spreads", "totals"})
	v.SetDefault("api.odds_format", "american")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_backoff", "2s")
	v.SetDefault("api.min_interval", "500ms")
	v.SetDefault("api.user_agent", "oddscollector/1.0")

	v.SetDefault("live.sports", []string{"icehockey_nhl"})
	v.SetDefault("live.bookmakers", []string{"betmgm", "williamhill_us"})
	v.SetDefault("live.bookmaker_aliases", map[string]string{"williamhill_us": "caesars"})
	v.SetDefault("live.label", "snapshot")

	v.SetDefault("historical.sport", "icehockey_nhl")
	v.SetDefault("historical.bookmakers", []string{"betmgm", "williamhill_us"})
	v.SetDefault("historical.bookmaker_aliases", map[string]string{"williamhill_us": "caesars"})
	v.SetDefault("historical.default_start", "2025-10-04")
	v.SetDefault("historical.default_end", "2026-01-09")
	v.SetDefault("historical.hour_utc", 17)
	v.SetDefault("historical.minute_utc", 0)
	v.SetDefault("historical.advisory_lock_key", int64(0x6f646462))

	v.SetDefault("storage.data_root", "odds-data")
	v.SetDefault("storage.live_dir", "data")
	v.SetDefault("storage.historical_dir", "odds-data/historical")

	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("scheduler.cron", "0 17 * * *")
	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.align_to_bucket", true)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x6f646473))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")

	v.SetDefault("export.max_data_points", 5000)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Historical.HourUTC < 0 || c.Historical.HourUTC > 23 {
		return fmt.Errorf("historical.hour_utc must be between 0 and 23")
	}
	if c.Historical.MinuteUTC < 0 || c.Historical.MinuteUTC > 59 {
		return fmt.Errorf("historical.minute_utc must be between 0 and 59")
	}
	if c.Historical.Sport == "" {
		return fmt.Errorf("historical.sport must be configured")
	}
	if len(c.Live.Sports) == 0 {
		return fmt.Errorf("live.sports must list at least one sport")
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("api.max_retries cannot be negative")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be greater than zero")
	}
	if c.Storage.LiveDir == "" || c.Storage.HistoricalDir == "" {
		return fmt.Errorf("storage.live_dir and storage.historical_dir must be configured")
	}
	for _, d := range []string{c.Historical.DefaultStart, c.Historical.DefaultEnd} {
		if _, err := time.Parse(DateLayout, d); err != nil {
			return fmt.Errorf("historical default range %q is not YYYY-MM-DD", d)
		}
	}
	if k := c.Historical.AdvisoryLockKey; k != 0 && k == c.Scheduler.AdvisoryLockKey {
		return fmt.Errorf("historical.advisory_lock_key must differ from scheduler.advisory_lock_key")
	}
	if err := CheckLabel(c.Live.Label); err != nil {
		return err
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}

// NormalizeLiveLabel trims and lowercases a live snapshot label, falling back to "snapshot".
func NormalizeLiveLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "snapshot"
	}
	return label
}

// CheckLabel rejects snapshot labels that would escape the snapshot directory once placed in a file name.
func CheckLabel(label string) error {
	if strings.ContainsAny(label, `/\`) || strings.Contains(label, "..") {
		return fmt.Errorf("snapshot label %q must not contain path separators or \"..\"", label)
	}
	return nil
}
