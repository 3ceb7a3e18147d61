package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"feedsync/internal/domain"
)

// Syncer defines the interface for sync operations.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncResult, error)
}

type SettingsLoader interface {
	Load(ctx context.Context) (domain.Settings, error)
}

type Notifier interface {
	Notify(ctx context.Context, items []domain.Item) error
}

type Config struct {
	CycleTimeout time.Duration
	MinInterval  time.Duration
}

// Scheduler runs sync cycles back to back, sleeping for the polling
// interval read from settings at the start of each cycle.
type Scheduler struct {
	syncer   Syncer
	settings SettingsLoader
	notifier Notifier
	cfg      Config
	logger   *slog.Logger

	cycleMu sync.Mutex
}

func NewScheduler(syncer Syncer, settings SettingsLoader, notifier Notifier, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = domain.MinPollingFrequency
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = 10 * time.Minute
	}
	return &Scheduler{
		syncer:   syncer,
		settings: settings,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With("component", "scheduler"),
	}
}

// Start runs a cycle immediately and then after every interval until ctx
// is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "min_interval", s.cfg.MinInterval, "cycle_timeout", s.cfg.CycleTimeout)

	for {
		interval := s.cycle(ctx)

		if ctx.Err() != nil {
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		}

		s.logger.Debug("sleeping until next cycle", "interval", interval)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce runs a single cycle out of band, including notification. It
// never overlaps with a scheduled cycle.
func (s *Scheduler) RunOnce(ctx context.Context) (*domain.SyncResult, error) {
	settings := s.loadSettings(ctx)
	return s.run(ctx, settings)
}

func (s *Scheduler) cycle(ctx context.Context) time.Duration {
	settings := s.loadSettings(ctx)

	if _, err := s.run(ctx, settings); err != nil {
		s.logger.Error("sync failed", "error", err)
	}

	return max(settings.PollingFrequency, s.cfg.MinInterval)
}

func (s *Scheduler) loadSettings(ctx context.Context) domain.Settings {
	settings, err := s.settings.Load(ctx)
	if err != nil {
		s.logger.Warn("failed to load settings, using defaults", "error", err)
		return domain.DefaultSettings()
	}
	return settings
}

func (s *Scheduler) run(ctx context.Context, settings domain.Settings) (*domain.SyncResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	syncCtx, cancel := context.WithTimeout(ctx, s.cfg.CycleTimeout)
	defer cancel()

	result, err := s.syncer.Sync(syncCtx)
	if result != nil && len(result.Inserted) > 0 && settings.Notification && s.notifier != nil {
		if nerr := s.notifier.Notify(ctx, result.Inserted); nerr != nil {
			s.logger.Warn("failed to notify", "items", len(result.Inserted), "error", nerr)
		}
	}
	return result, err
}
