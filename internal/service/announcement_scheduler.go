package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// DueAnnouncementFetcher lists announcements whose schedule has elapsed.
type DueAnnouncementFetcher interface {
	ListDueIDs(ctx context.Context, now time.Time) ([]string, error)
}

// AnnouncementPublisher publishes a captured set of announcements.
type AnnouncementPublisher interface {
	PublishByIDs(ctx context.Context, ids []string, now time.Time) (int64, error)
}

// RunSchedulerTick performs one sweep at the given instant: it captures the due
// ids and publishes exactly that set in a single write. It returns the number of
// announcements published.
func RunSchedulerTick(ctx context.Context, now time.Time, fetcher DueAnnouncementFetcher, publisher AnnouncementPublisher, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	now = now.UTC()
	ids, err := fetcher.ListDueIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	affected, err := publisher.PublishByIDs(ctx, ids, now)
	if err != nil {
		return 0, err
	}
	logger.Info("scheduled announcements published",
		zap.Int64("count", affected),
		zap.Int("due", len(ids)),
		zap.Strings("due_ids", ids),
		zap.Time("now", now),
	)
	if int(affected) < len(ids) {
		logger.Debug("some due announcements changed before publish", zap.Int("skipped", len(ids)-int(affected)))
	}
	return int(affected), nil
}

type announcementSweepStore interface {
	DueAnnouncementFetcher
	AnnouncementPublisher
}

// AnnouncementScheduler runs the publication sweep on a fixed interval.
type AnnouncementScheduler struct {
	store    announcementSweepStore
	metrics  *MetricsService
	logger   *zap.Logger
	interval time.Duration
	now      func() time.Time

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

// NewAnnouncementScheduler constructs the scheduler. Non-positive intervals fall back to one minute.
func NewAnnouncementScheduler(store announcementSweepStore, metrics *MetricsService, interval time.Duration, logger *zap.Logger) *AnnouncementScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementScheduler{
		store:    store,
		metrics:  metrics,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Start schedules the sweep and runs the first one immediately. Calling Start on a
// running scheduler is a no-op.
func (s *AnnouncementScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	sched, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create announcement scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.TickNow(ctx) }),
		gocron.WithName("announcement-publisher"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = sched.Shutdown()
		return fmt.Errorf("register announcement sweep: %w", err)
	}
	sched.Start()
	s.scheduler = sched
	s.logger.Info("announcement scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop waits for a running sweep to finish and stops scheduling new ones.
func (s *AnnouncementScheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	s.logger.Info("announcement scheduler stopped")
	return err
}

// TickNow runs a single sweep. Failures are logged and recorded, never returned;
// the next tick acts as the retry.
func (s *AnnouncementScheduler) TickNow(ctx context.Context) (published int) {
	now := s.now().UTC()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("announcement scheduler tick panicked", zap.Any("panic", r))
			s.metrics.RecordSchedulerTick(TickResultError, 0, now)
			published = 0
		}
	}()

	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	count, err := RunSchedulerTick(tickCtx, now, s.store, s.store, s.logger)
	s.metrics.ObserveDBQuery("announcement_sweep", time.Since(start))
	if err != nil {
		s.logger.Error("announcement scheduler tick failed", zap.Error(err))
		s.metrics.RecordSchedulerTick(TickResultError, 0, now)
		return 0
	}
	result := TickResultIdle
	if count > 0 {
		result = TickResultPublished
	}
	s.metrics.RecordSchedulerTick(result, count, now)
	return count
}
