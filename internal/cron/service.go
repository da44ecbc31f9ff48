package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/campus-loyalty/pkg/logger"
)

const defaultInterval = time.Hour

type jobMetrics interface {
	Observe(job string, took time.Duration, err error)
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  jobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while holding Lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  jobMetrics
	interval time.Duration
}

func NewService(p ServiceParams) (*Service, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger required")
	case p.Lock == nil:
		return nil, errors.New("lock required")
	}
	s := &Service{
		logg:     p.Logger,
		registry: p.Registry,
		lock:     p.Lock,
		metrics:  p.Metrics,
		interval: p.Interval,
	}
	if s.registry == nil {
		s.registry, _ = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	return s, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "cron.cycle_failed", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce runs one cycle. A job failure does not stop later jobs; all
// failures come back combined, each prefixed with its job name. When only is
// non-empty just those jobs run.
func (s *Service) RunOnce(ctx context.Context, only ...string) error {
	jobs, err := s.selectJobs(only)
	if err != nil {
		return err
	}

	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		if reporter, ok := s.lock.(holderReporter); ok {
			if holder, err := reporter.Holder(ctx); err == nil && holder != "" {
				ctx = s.logg.WithField(ctx, "lock_holder", holder)
			}
		}
		s.logg.Info(ctx, "cron.cycle_skipped")
		return nil
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "cron.lock_release_failed", err)
		}
	}()

	started := time.Now()
	var errs error
	for _, job := range jobs {
		errs = multierr.Append(errs, s.runJob(ctx, job))
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"jobs":        len(jobs),
		"failed":      len(multierr.Errors(errs)),
		"duration_ms": time.Since(started).Milliseconds(),
	}), "cron.cycle_complete")
	return errs
}

func (s *Service) selectJobs(only []string) ([]Job, error) {
	if len(only) == 0 {
		return s.registry.Jobs(), nil
	}
	jobs := make([]Job, 0, len(only))
	for _, name := range only {
		job, ok := s.registry.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("unknown cron job %q", name)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithField(ctx, "job", job.Name())
	started := time.Now()
	err := job.Run(ctx)
	took := time.Since(started)
	if s.metrics != nil {
		s.metrics.Observe(job.Name(), took, err)
	}

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "cron.job_failed", err)
		return fmt.Errorf("%s: %w", job.Name(), err)
	}
	s.logg.Info(ctx, "cron.job_done")
	return nil
}
