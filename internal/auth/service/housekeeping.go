package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aussiebroadwan/sessionkeeper/internal/auth/store"
)

// DefaultCleanupSchedule runs the sweep once a day at midnight.
const DefaultCleanupSchedule = "@daily"

// defaultCleanupTimeout bounds a single sweep.
const defaultCleanupTimeout = 10 * time.Minute

// HousekeepingService runs the token index cleanup on a cron schedule, apart
// from request handling. Sweeps never overlap and Stop waits for a running
// sweep to finish.
type HousekeepingService struct {
	Tokens   store.Tokens
	Logger   *slog.Logger
	Schedule string
	Timeout  time.Duration
	Metrics  *Metrics

	cron   *cron.Cron
	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inflight sync.WaitGroup
}

// NewHousekeepingService validates schedule (standard 5 field cron or a
// descriptor such as "@daily" or "@every 6h"). An empty schedule means
// DefaultCleanupSchedule.
func NewHousekeepingService(tokens store.Tokens, logger *slog.Logger, schedule string) (*HousekeepingService, error) {
	if schedule == "" {
		schedule = DefaultCleanupSchedule
	}
	sched, err := cron.ParseStandard(schedule)
	if err != nil {
		return nil, fmt.Errorf("housekeeping: bad schedule %q: %w", schedule, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &HousekeepingService{
		Tokens:   tokens,
		Logger:   logger,
		Schedule: schedule,
		Timeout:  defaultCleanupTimeout,
		ctx:      ctx,
		cancel:   cancel,
	}

	cl := cronLogger{logger}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.tick))
	s.cron = cron.New(cron.WithLogger(cl))
	s.cron.Schedule(sched, s.job)

	return s, nil
}

// Start schedules the sweep and runs one immediately in the background.
func (s *HousekeepingService) Start() {
	s.cron.Start()
	go s.job.Run()
	s.Logger.Info("housekeeping service started", "schedule", s.Schedule)
}

// Stop cancels any running sweep and blocks until it has returned. No
// sweep starts after Stop.
func (s *HousekeepingService) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
	s.inflight.Wait()

	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) tick() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	ctx, cancel := context.WithTimeout(s.ctx, s.Timeout)
	defer cancel()

	_, _ = s.RunOnce(ctx)
}

// RunOnce performs a single sweep and logs the outcome.
func (s *HousekeepingService) RunOnce(ctx context.Context) (store.CleanupStats, error) {
	s.Logger.Info("starting token index cleanup")
	start := time.Now()

	stats, err := s.Tokens.CleanupExpiredTokens(ctx)
	took := time.Since(start)
	s.Metrics.cleanedUp(stats.Pruned, took)

	if err != nil {
		s.Logger.Error("token index cleanup failed",
			"error", err,
			"scanned", stats.Scanned,
			"user_indexes", stats.UserIndexes,
		)
		return stats, err
	}

	s.Logger.Info("token index cleanup completed",
		"scanned", stats.Scanned,
		"pruned", stats.Pruned,
		"user_indexes", stats.UserIndexes,
		"duration_ms", took.Milliseconds(),
	)
	return stats, nil
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
