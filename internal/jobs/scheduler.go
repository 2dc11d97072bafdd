package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	cronrunner "zerodte/internal/cron"
	"zerodte/internal/models"
	"zerodte/internal/repository"
)

type entry struct {
	id   cron.EntryID
	spec string
}

// Scheduler registers every stored job on the cron runner. Disabled jobs stay registered so the
// executor records their skips.
type Scheduler struct {
	Executor      *Executor
	Repo          repository.JobRepository
	Runner        *cronrunner.Runner
	Logger        *zap.Logger
	StaleAfter    time.Duration
	ReconcileSpec string

	mu      sync.Mutex
	entries map[string]entry
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// Start reconciles stale runs left by a previous process, registers jobs and starts cron.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil || s.Runner == nil || s.Executor == nil {
		return nil
	}
	if n, err := s.Executor.Reconcile(ctx, s.StaleAfter); err != nil {
		s.logger().Warn("startup reconcile failed", zap.Error(err))
	} else if n > 0 {
		s.logger().Info("startup reconcile failed stale runs", zap.Int("count", n))
	}
	if err := s.Sync(ctx); err != nil {
		return err
	}
	if s.ReconcileSpec != "" {
		if _, err := s.Runner.Add(s.ReconcileSpec, func(ctx context.Context) {
			if _, err := s.Executor.Reconcile(ctx, s.StaleAfter); err != nil {
				s.logger().Warn("reconcile failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}
	s.Runner.Start()
	return nil
}

// Sync adds new jobs and re-registers jobs whose schedule changed.
func (s *Scheduler) Sync(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Runner == nil {
		return nil
	}
	items, err := s.Repo.ListJobs(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries == nil {
		s.entries = map[string]entry{}
	}
	live := map[string]struct{}{}
	for _, job := range items {
		live[job.ID] = struct{}{}
		spec := cronrunner.WithTimezone(job.Schedule, job.Timezone)
		if prev, ok := s.entries[job.ID]; ok {
			if prev.spec == spec {
				continue
			}
			s.Runner.Remove(prev.id)
			delete(s.entries, job.ID)
		}
		jobID := job.ID
		id, err := s.Runner.Add(spec, func(ctx context.Context) {
			s.fire(ctx, jobID)
		})
		if err != nil {
			s.logger().Error("register job failed", zap.String("job_id", jobID), zap.String("schedule", spec), zap.Error(err))
			continue
		}
		s.entries[jobID] = entry{id: id, spec: spec}
		s.logger().Info("job registered", zap.String("job_id", jobID), zap.String("schedule", spec))
	}
	for jobID, e := range s.entries {
		if _, ok := live[jobID]; !ok {
			s.Runner.Remove(e.id)
			delete(s.entries, jobID)
		}
	}
	return nil
}

func (s *Scheduler) fire(ctx context.Context, jobID string) {
	run, err := s.Executor.Trigger(ctx, jobID, TriggerOptions{TriggeredBy: models.TriggerScheduler})
	if err != nil {
		s.logger().Error("scheduled job trigger failed", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	s.logger().Debug("scheduled job done", zap.String("job_id", jobID), zap.String("status", string(run.Status)))
}

// NextRun prefers the live cron entry and falls back to parsing the job schedule.
func (s *Scheduler) NextRun(job models.Job, now time.Time) time.Time {
	if s != nil && s.Runner != nil {
		s.mu.Lock()
		e, ok := s.entries[job.ID]
		s.mu.Unlock()
		if ok {
			if next := s.Runner.Next(e.id); !next.IsZero() {
				return next
			}
		}
	}
	next, err := cronrunner.NextRun(job.Schedule, job.Timezone, now)
	if err != nil {
		return time.Time{}
	}
	return next
}

func (s *Scheduler) Stop() {
	if s == nil || s.Runner == nil {
		return
	}
	s.Runner.Stop()
}
