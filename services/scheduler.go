package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"merch-loyalty-system/config"
)

// Scheduler runs the recurring loyalty jobs: the daily birthday-XP pass and
// the purge of expired, unused discount codes.
type Scheduler struct {
	cfg        config.SchedulerConfig
	profiles   ProfileStore
	loyalty    *LoyaltyService
	redemption *RedemptionService
	logger     *zap.Logger

	sched gocron.Scheduler
}

func NewScheduler(cfg config.SchedulerConfig, profiles ProfileStore, loyalty *LoyaltyService, redemption *RedemptionService, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		profiles:   profiles,
		loyalty:    loyalty,
		redemption: redemption,
		logger:     logger,
	}
}

// Start registers and starts the jobs. Call Stop on shutdown.
func (s *Scheduler) Start() error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	s.sched = sched

	if s.cfg.BirthdayJobEnabled {
		_, err = sched.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(s.cfg.BirthdayJobHour), 0, 0))),
			gocron.NewTask(s.runBirthdayPass),
		)
		if err != nil {
			return err
		}
	}

	if s.cfg.PurgeJobEnabled {
		_, err = sched.NewJob(
			gocron.DurationJob(s.cfg.PurgeInterval),
			gocron.NewTask(s.runPurge),
		)
		if err != nil {
			return err
		}
	}

	sched.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for running jobs.
func (s *Scheduler) Stop() {
	if s.sched != nil {
		if err := s.sched.Shutdown(); err != nil {
			s.logger.Warn("scheduler shutdown", zap.Error(err))
		}
	}
}

func (s *Scheduler) runBirthdayPass() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	now := time.Now()
	users, err := s.profiles.WithBirthdayOn(ctx, int(now.Month()), now.Day())
	if err != nil {
		s.logger.Error("birthday pass: listing users failed", zap.Error(err))
		return
	}
	for _, u := range users {
		// The per-user-per-year idempotency key means a rerun of the
		// pass never double-credits.
		if err := s.loyalty.AwardBirthday(ctx, u.ExternalUserID, now.Year()); err != nil {
			s.logger.Warn("birthday award failed",
				zap.String("user_id", u.ExternalUserID),
				zap.Error(err))
		}
	}
	if len(users) > 0 {
		s.logger.Info("birthday pass done", zap.Int("users", len(users)))
	}
}

func (s *Scheduler) runPurge() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	purged, err := s.redemption.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error("discount code purge failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("purged expired discount codes", zap.Int64("count", purged))
	}
}
