package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"odds-collector/internal/alerting"
	"odds-collector/internal/metrics"
	"odds-collector/internal/scheduler"
	"odds-collector/internal/storage"
)

// Collector is the unit of work run on every scheduled tick.
type Collector interface {
	Collect(ctx context.Context, now time.Time) (*LiveReport, error)
}

// Service runs live collection on a schedule for daemon mode.
type Service struct {
	scheduler       *scheduler.Scheduler
	collector       Collector
	notifier        alerting.Notifier
	locker          storage.AdvisoryLocker
	lockKey         int64
	metricsTextfile string
	runID           uuid.UUID
	now             func() time.Time
	logger          zerolog.Logger
}

// ServiceOptions wire optional collaborators into a Service.
type ServiceOptions struct {
	Notifier        alerting.Notifier
	Locker          storage.AdvisoryLocker
	LockKey         int64
	MetricsTextfile string
	RunID           uuid.UUID
}

// New constructs the daemon service.
func New(sched *scheduler.Scheduler, collector Collector, opts ServiceOptions, logger zerolog.Logger) *Service {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = alerting.Nop{}
	}
	return &Service{
		scheduler:       sched,
		collector:       collector,
		notifier:        notifier,
		locker:          opts.Locker,
		lockKey:         opts.LockKey,
		metricsTextfile: opts.MetricsTextfile,
		runID:           opts.RunID,
		now:             time.Now,
		logger:          logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled collection loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// ProcessTick runs one live collection unless another instance holds the advisory lock.
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		metrics.UnitsFailed.WithLabelValues("live").Inc()
		if mErr := metrics.WriteTextfile(s.metricsTextfile); mErr != nil {
			s.logger.Error().Err(mErr).Msg("failed to write metrics textfile")
		}
		s.logger.Warn().Time("tick", tick).Int64("lock_key", s.lockKey).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, tick)
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	report, err := s.collector.Collect(ctx, s.now())
	metrics.LastRunTimestamp.WithLabelValues("run").SetToCurrentTime()
	if mErr := metrics.WriteTextfile(s.metricsTextfile); mErr != nil {
		s.logger.Error().Err(mErr).Msg("failed to write metrics textfile")
	}

	if report == nil {
		report = &LiveReport{}
	}
	if err == nil && len(report.FailedSports) == 0 {
		s.logger.Info().Time("tick", tick).Int("rows", report.Rows).Str("path", report.Path).Msg("scheduled collection complete")
		return nil
	}

	note := alerting.Notification{
		Command:     "run",
		RunID:       s.runID,
		FinishedAt:  s.now().UTC(),
		Failed:      len(report.FailedSports),
		FailedUnits: report.FailedSports,
		Err:         err,
	}
	if report.Path != "" {
		note.Written = 1
	}
	if nErr := s.notifier.Notify(ctx, note); nErr != nil {
		s.logger.Error().Err(nErr).Time("tick", tick).Msg("failed to dispatch alert")
	}

	if err != nil {
		return fmt.Errorf("live collection: %w", err)
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
