package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"odds-collector/internal/alerting"
	"odds-collector/internal/config"
	"odds-collector/internal/logging"
	"odds-collector/internal/metrics"
	"odds-collector/internal/oddsapi"
	"odds-collector/internal/scheduler"
	"odds-collector/internal/service"
	"odds-collector/internal/storage"
)

// ErrIncomplete is returned when a command finished but left dates or sports uncollected.
var ErrIncomplete = errors.New("run incomplete; see log for failed units")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives command output such as tables and repair reports.
	Out io.Writer

	now func() time.Time
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{
		Config: cfg,
		Logger: logger.With().Str("component", "app").Logger(),
		Out:    os.Stdout,
		now:    time.Now,
	}
}

func (a *App) newClient(key string, logger zerolog.Logger) *oddsapi.Client {
	api := a.Config.API
	return oddsapi.NewClient(oddsapi.Options{
		BaseURL:      api.BaseURL,
		APIKey:       key,
		Regions:      api.Regions,
		Markets:      api.Markets,
		OddsFormat:   api.OddsFormat,
		Timeout:      api.Timeout,
		MaxRetries:   api.MaxRetries,
		RetryBackoff: api.RetryBackoff,
		MinInterval:  api.MinInterval,
		UserAgent:    api.UserAgent,
	}, logger)
}

func (a *App) newFileStore() *storage.FileStore {
	return storage.NewFileStore(a.Config.Storage)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, cfg.Timeout, a.Logger)
	}
	return nil
}

// openStore connects the optional manifest database and makes sure its schema exists.
func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	if err := store.EnsureSchema(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return store, closer, nil
}

// manifestOf keeps a missing store a nil interface.
func manifestOf(store *storage.Store) storage.ManifestStore {
	if store == nil {
		return nil
	}
	return store
}

// finish records run metrics and alerts on failures. The returned error is the one the command exits with.
func (a *App) finish(ctx context.Context, command string, note alerting.Notification, runErr error) error {
	metrics.LastRunTimestamp.WithLabelValues(command).SetToCurrentTime()
	if err := metrics.WriteTextfile(a.Config.Metrics.Textfile); err != nil {
		a.Logger.Error().Err(err).Msg("failed to write metrics textfile")
	}

	if runErr == nil && note.Failed == 0 {
		return nil
	}

	note.Command = command
	note.FinishedAt = a.now().UTC()
	note.Err = runErr
	if notifier := a.newNotifier(); notifier != nil {
		if err := notifier.Notify(ctx, note); err != nil {
			a.Logger.Error().Err(err).Str("command", command).Msg("failed to dispatch alert")
		}
	}

	if runErr != nil {
		return runErr
	}
	return fmt.Errorf("%s: %w", command, ErrIncomplete)
}

// Run executes the long-running scheduled collection daemon.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger, runID := logging.WithRun(a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		logger.Warn().Msg("database.dsn not configured; manifest and advisory lock disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	sched, err := scheduler.New(scheduler.Options{
		Cron:         a.Config.Scheduler.Cron,
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, logger)
	if err != nil {
		return err
	}

	collector := service.NewLiveCollector(
		a.newClient(a.Config.API.Key, logger),
		a.newFileStore(),
		manifestOf(store),
		a.liveOptions(""),
		runID,
		logger,
	)

	opts := service.ServiceOptions{
		Notifier:        a.newNotifier(),
		LockKey:         a.Config.Scheduler.AdvisoryLockKey,
		MetricsTextfile: a.Config.Metrics.Textfile,
		RunID:           runID,
	}
	if store != nil {
		opts.Locker = store
	}
	svc := service.New(sched, collector, opts, logger)

	logger.Info().Str("cron", a.Config.Scheduler.Cron).Dur("interval", a.Config.Scheduler.Interval).Msg("starting collection daemon")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	logger.Info().Msg("collection daemon stopped")
	return nil
}

func (a *App) liveOptions(label string) service.LiveOptions {
	if label == "" {
		label = a.Config.Live.Label
	}
	return service.LiveOptions{
		Sports:     a.Config.Live.Sports,
		Bookmakers: a.Config.Live.Bookmakers,
		Aliases:    a.Config.Live.BookmakerAliases,
		Label:      label,
	}
}

// FetchOptions configure a single live fetch.
type FetchOptions struct {
	Label string
}

// ExportOptions hold parameters for exporting a game's line history.
type ExportOptions struct {
	GameID    string
	Bookmaker string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// CoverageOptions configure the coverage report.
type CoverageOptions struct {
	Start time.Time
	End   time.Time
	Label string
}
