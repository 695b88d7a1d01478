package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/logger"
	"github.com/mandexhq/mandex-backend/pkg/metrics"
)

// SystemActorID identifies sweep-driven mutations in transition and audit
// records.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")

const lockKey = "mandex:sweep:lock"

// Locker is the distributed-lock surface the sweep needs. A nil Locker
// disables locking, for single-instance deployments and tests.
type Locker interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Job is one registered sweep task.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Service runs the registered jobs on a fixed interval, holding a Redis
// SETNX lock so only one instance sweeps at a time.
type Service struct {
	cfg     config.SweepConfig
	locker  Locker
	metrics *metrics.SweepJobMetrics
	logg    *logger.Logger
	jobs    []Job
	holder  string
}

// NewService wires the sweep scheduler.
func NewService(cfg config.SweepConfig, locker Locker, jobMetrics *metrics.SweepJobMetrics, logg *logger.Logger) *Service {
	return &Service{
		cfg:     cfg,
		locker:  locker,
		metrics: jobMetrics,
		logg:    logg,
		holder:  uuid.NewString(),
	}
}

// Register appends a job to the sweep.
func (s *Service) Register(job Job) {
	s.jobs = append(s.jobs, job)
}

// Start sweeps on the configured interval until the context is cancelled.
func (s *Service) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logg.Info(ctx, "sweep scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(context.Background(), "sweep scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.logg.Error(ctx, "sweep finished with errors", err)
			}
		}
	}
}

// Sweep runs every registered job once. Jobs keep running after individual
// failures; the combined error carries every failure.
func (s *Service) Sweep(ctx context.Context) error {
	release, acquired, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !acquired {
		s.logg.Info(ctx, "sweep lock held elsewhere, skipping")
		return nil
	}
	defer release()

	var errs error
	for _, job := range s.jobs {
		start := time.Now()
		err := job.Run(ctx)
		s.metrics.ObserveDuration(job.Name, time.Since(start))
		if err != nil {
			s.metrics.IncFailure(job.Name)
			logCtx := s.logg.WithField(ctx, "job", job.Name)
			s.logg.Error(logCtx, "sweep job failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		s.metrics.IncSuccess(job.Name)
	}
	return errs
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	ok, err := s.locker.SetNX(ctx, lockKey, s.holder, s.cfg.LockTTL)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		if err := s.locker.Del(context.Background(), lockKey); err != nil {
			s.logg.Error(context.Background(), "releasing sweep lock failed", err)
		}
	}
	return release, true, nil
}
