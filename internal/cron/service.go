package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/printdesk-backend/pkg/logger"
	"github.com/angelmondragon/printdesk-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger  *logger.Logger
	Jobs    []Job
	Lock    Lock
	Metrics *metrics.CronJobMetrics
	// Interval separates cycles. JobTimeout caps one job and should stay
	// below the lock TTL so the lease never lapses mid-job.
	Interval   time.Duration
	JobTimeout time.Duration
}

// Service runs every job in order once per interval, but only on the
// replica holding the lease.
type Service struct {
	logg       *logger.Logger
	jobs       []Job
	lock       Lock
	metrics    *metrics.CronJobMetrics
	interval   time.Duration
	jobTimeout time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	if p.Lock == nil {
		return nil, errors.New("cron lock is required")
	}
	s := &Service{
		logg:       p.Logger,
		lock:       p.Lock,
		metrics:    p.Metrics,
		interval:   p.Interval,
		jobTimeout: p.JobTimeout,
	}
	for _, job := range p.Jobs {
		if job != nil {
			s.jobs = append(s.jobs, job)
		}
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run starts with a cycle right away, then one per interval until ctx ends.
// A failed cycle is logged and the next tick tries again.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.cycle(ctx); err != nil {
			s.logg.Error(ctx, "cron cycle failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// cycle runs every job even when earlier ones fail and joins their errors.
func (s *Service) cycle(ctx context.Context) (err error) {
	held, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire cron lease: %w", err)
	}
	if !held {
		s.logg.Info(ctx, "cron lease held by another replica, skipping cycle")
		return nil
	}
	defer func() {
		if releaseErr := s.lock.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			err = multierr.Append(err, fmt.Errorf("release cron lease: %w", releaseErr))
		}
	}()

	for _, job := range s.jobs {
		if ctx.Err() != nil {
			return multierr.Append(err, ctx.Err())
		}
		if jobErr := s.run(ctx, job); jobErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", job.Name(), jobErr))
		}
	}
	return err
}

func (s *Service) run(ctx context.Context, job Job) (err error) {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	started := time.Now()
	var result Result
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		took := time.Since(started)
		s.metrics.Observe(job.Name(), took, result.Affected, err)

		logCtx := s.logg.WithFields(ctx, map[string]any{"duration_ms": took.Milliseconds(), "affected": result.Affected})
		if err != nil {
			s.logg.Error(logCtx, "cron job failed", err)
			return
		}
		s.logg.Info(logCtx, "cron job completed")
	}()

	result, err = job.Run(ctx)
	return err
}
