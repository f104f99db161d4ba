package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/studtime/studtime/internal/models"
	"github.com/studtime/studtime/internal/service"
)

const (
	dispatchBatchSize  = 200
	resyncPageSize     = 100
	imageRetainGrace   = 24 * time.Hour
	sentRetainDuration = 7 * 24 * time.Hour
)

type dueLister interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]models.PendingNotification, error)
	PurgeSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type activeUserLister interface {
	ListActive(ctx context.Context, limit, offset int) ([]models.User, error)
}

type weekResyncer interface {
	SyncWeek(ctx context.Context, user *models.User, groupID string, year, week int) (models.DiffResult, error)
}

type weekRebuilder interface {
	GetOrBuild(ctx context.Context, user *models.User, year, week int, opts service.BuildOptions) (*models.Timetable, error)
}

type dayPlanner interface {
	PlanDaily(ctx context.Context, user *models.User) ([]models.PendingNotification, error)
	AlertScheduleChange(ctx context.Context, user *models.User, week int, diff models.DiffResult) error
}

type expiredImageSweeper interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// SchedulerConfig carries the cron specs and the dependencies of the
// periodic jobs.
type SchedulerConfig struct {
	DispatchSpec string
	ResyncSpec   string
	CleanupSpec  string

	Outbox  dueLister
	Pool    *DispatchPool
	Users   activeUserLister
	Syncer  weekResyncer
	Weeks   weekRebuilder
	Planner dayPlanner
	Images  expiredImageSweeper
	Logger  *zap.Logger
}

// Scheduler owns the cron entries: the minute-level dispatch tick, the
// daily resync-and-plan walk over active users, and storage cleanup. Each
// entry is wrapped with SkipIfStillRunning so a slow pass never stacks.
type Scheduler struct {
	cron *cron.Cron
	cfg  SchedulerConfig
	log  *zap.Logger
}

// NewScheduler registers the cron entries without starting them.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.DispatchSpec == "" {
		cfg.DispatchSpec = "@every 1m"
	}
	if cfg.ResyncSpec == "" {
		cfg.ResyncSpec = "0 5 * * *"
	}
	if cfg.CleanupSpec == "" {
		cfg.CleanupSpec = "30 3 * * *"
	}

	cronLog := cronLogger{logger: cfg.Logger.Named("cron")}
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cronLog),
		cron.Recover(cronLog),
	))

	s := &Scheduler{cron: c, cfg: cfg, log: cfg.Logger}

	if _, err := c.AddFunc(cfg.DispatchSpec, s.dispatchTick); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(cfg.ResyncSpec, s.resyncTick); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(cfg.CleanupSpec, s.cleanupTick); err != nil {
		return nil, err
	}
	return s, nil
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("dispatch", s.cfg.DispatchSpec),
		zap.String("resync", s.cfg.ResyncSpec),
		zap.String("cleanup", s.cfg.CleanupSpec))
}

// Stop halts the cron loop and waits for running entries to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info("scheduler stopped")
}

// dispatchTick drains due notifications into the worker pool.
func (s *Scheduler) dispatchTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
	defer cancel()

	due, err := s.cfg.Outbox.ListDue(ctx, time.Now().UTC(), dispatchBatchSize)
	if err != nil {
		s.log.Error("failed to list due notifications", zap.Error(err))
		return
	}
	for _, n := range due {
		if err := s.cfg.Pool.Enqueue(n); err != nil {
			s.log.Warn("dispatch pool rejected notification", zap.String("id", n.ID), zap.Error(err))
			return
		}
	}
	if len(due) > 0 {
		s.log.Info("dispatch tick enqueued notifications", zap.Int("count", len(due)))
	}
}

// resyncTick walks active users: refresh the upstream mirror for the
// current week, alert on detected changes, then plan the day's
// notifications. One user's failure never blocks the rest.
func (s *Scheduler) resyncTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	year, week := now.ISOWeek()

	offset := 0
	for {
		users, err := s.cfg.Users.ListActive(ctx, resyncPageSize, offset)
		if err != nil {
			s.log.Error("failed to list active users", zap.Error(err))
			return
		}
		if len(users) == 0 {
			return
		}
		for i := range users {
			s.resyncUser(ctx, &users[i], year, week)
		}
		offset += len(users)
	}
}

func (s *Scheduler) resyncUser(ctx context.Context, user *models.User, year, week int) {
	if user.GroupID != "" {
		diff, err := s.cfg.Syncer.SyncWeek(ctx, user, user.GroupID, year, week)
		if err != nil {
			s.log.Warn("user resync failed, planning from mirror",
				zap.Int64("user_id", user.ID), zap.Error(err))
		} else if !diff.Empty() {
			if _, err := s.cfg.Weeks.GetOrBuild(ctx, user, year, week, service.BuildOptions{IgnoreCache: true, IgnoreUpstreamSync: true}); err != nil {
				s.log.Warn("post-sync rebuild failed", zap.Int64("user_id", user.ID), zap.Error(err))
			}
			if err := s.cfg.Planner.AlertScheduleChange(ctx, user, week, diff); err != nil {
				s.log.Warn("failed to alert schedule change", zap.Int64("user_id", user.ID), zap.Error(err))
			}
		}
	}

	if _, err := s.cfg.Planner.PlanDaily(ctx, user); err != nil {
		s.log.Warn("failed to plan daily notifications", zap.Int64("user_id", user.ID), zap.Error(err))
	}
}

// cleanupTick drops expired rendered images and old delivered notifications.
func (s *Scheduler) cleanupTick() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now().UTC()
	if n, err := s.cfg.Images.DeleteExpired(ctx, now.Add(-imageRetainGrace)); err != nil {
		s.log.Error("image cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("expired rendered images removed", zap.Int64("count", n))
	}

	if n, err := s.cfg.Outbox.PurgeSentBefore(ctx, now.Add(-sentRetainDuration)); err != nil {
		s.log.Error("notification cleanup failed", zap.Error(err))
	} else if n > 0 {
		s.log.Info("delivered notifications purged", zap.Int64("count", n))
	}
}
