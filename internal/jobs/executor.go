package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"zerodte/internal/calendar"
	"zerodte/internal/models"
	"zerodte/internal/notification"
	"zerodte/internal/pipeline"
	"zerodte/internal/repository"
)

const reasonDisabled = "disabled"

var ErrUnsupportedJobType = errors.New("unsupported job type")

type PipelineRunner interface {
	Run(ctx context.Context, symbol string, opts pipeline.Options) (*pipeline.Result, error)
}

type Notifier interface {
	Notify(ctx context.Context, ev notification.Event) error
}

type TriggerOptions struct {
	TriggeredBy     models.Trigger `json:"triggered_by"`
	ForceRun        bool           `json:"force_run"`
	SkipMarketCheck bool           `json:"skip_market_check"`
}

// Executor runs jobs at most once per trading day, gated by the market calendar, and
// records every outcome as a JobRun.
type Executor struct {
	Repo     repository.Repository
	Pipeline PipelineRunner
	Calendar *calendar.Calendar
	Notifier Notifier
	Logger   *zap.Logger
	Retry    RetryPolicy

	Now   func() time.Time
	NewID func() string
	Sleep func(ctx context.Context, d time.Duration) error
}

func (e *Executor) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Executor) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Executor) logger() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

// Trigger evaluates one invocation of jobID and returns the terminal JobRun.
func (e *Executor) Trigger(ctx context.Context, jobID string, opts TriggerOptions) (*models.JobRun, error) {
	if e == nil || e.Repo == nil || e.Pipeline == nil || e.Calendar == nil {
		return nil, errors.New("job executor not configured")
	}
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = models.TriggerManual
	}
	job, err := e.Repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("%w: %s", repository.ErrJobNotFound, jobID)
	}
	if job.Type != "" && job.Type != models.JobTypeDecisionPipeline {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedJobType, job.Type)
	}
	jobCfg, err := job.DecodeConfig()
	if err != nil {
		return nil, fmt.Errorf("decode job %s config: %w", job.ID, err)
	}

	now := e.now()
	day := e.Calendar.TradingDateKey(now)
	skipCheck := opts.SkipMarketCheck || jobCfg.SkipMarketCheck
	base := models.JobRun{
		JobID:           job.ID,
		MarketDay:       day,
		TriggeredBy:     opts.TriggeredBy,
		StartedAt:       now,
		Forced:          opts.ForceRun,
		SkipMarketCheck: skipCheck,
	}

	if !job.Enabled && opts.TriggeredBy == models.TriggerScheduler {
		return e.skip(ctx, base, reasonDisabled)
	}

	if !opts.ForceRun {
		prior, err := e.Repo.FindSuccessfulRun(ctx, job.ID, day)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			return e.skip(ctx, base, fmt.Sprintf("already succeeded for trading date %s (run %s)", day, prior.ID))
		}
	}

	// Manual runs share the calendar gate unless forced.
	if !skipCheck && (opts.TriggeredBy == models.TriggerScheduler || !opts.ForceRun) {
		if st := e.Calendar.IsOpen(now); !st.IsOpen {
			return e.skip(ctx, base, st.Reason)
		}
	}

	run := base
	run.ID = e.newID()
	if err := e.Repo.ClaimRun(ctx, &run); err != nil {
		if errors.Is(err, repository.ErrRunConflict) {
			return e.skip(ctx, base, fmt.Sprintf("run already in progress or succeeded for trading date %s", day))
		}
		return nil, err
	}
	log := e.logger().With(
		zap.String("job_id", job.ID),
		zap.String("run_id", run.ID),
		zap.String("market_day", day),
		zap.String("triggered_by", string(opts.TriggeredBy)),
	)
	log.Info("job run started", zap.Bool("forced", run.Forced))

	res, attempts, runErr := e.execute(ctx, log, jobCfg)
	return e.finish(ctx, log, &run, res, attempts, runErr)
}

func (e *Executor) execute(ctx context.Context, log *zap.Logger, cfg models.JobConfig) (*pipeline.Result, int, error) {
	opts := pipeline.Options{Direction: models.Direction(strings.ToUpper(strings.TrimSpace(cfg.Direction)))}
	opts.StopMultiplier = cfg.StopMultiplier
	if cfg.Aggression > 0 {
		a := cfg.Aggression
		opts.Aggression = &a
	}
	sleep := e.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	limit := e.Retry.attempts()
	var lastErr error
	for attempt := 1; attempt <= limit; attempt++ {
		res, err := e.runOnce(ctx, cfg.Symbol, opts)
		if err == nil {
			return res, attempt, nil
		}
		lastErr = err
		if attempt == limit || !Retryable(err) {
			return nil, attempt, err
		}
		delay := e.Retry.Delay(attempt)
		log.Warn("job run attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := sleep(ctx, delay); err != nil {
			return nil, attempt, fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
		}
	}
	return nil, limit, lastErr
}

// runOnce converts a panic inside the pipeline into ErrUnexpected.
func (e *Executor) runOnce(ctx context.Context, symbol string, opts pipeline.Options) (res *pipeline.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger().Error("pipeline panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			res = nil
			err = fmt.Errorf("%w: panic: %v", pipeline.ErrUnexpected, r)
		}
	}()
	return e.Pipeline.Run(ctx, symbol, opts)
}

func (e *Executor) finish(ctx context.Context, log *zap.Logger, run *models.JobRun, res *pipeline.Result, attempts int, runErr error) (*models.JobRun, error) {
	// A cancelled caller must still be able to finalize.
	ctx = context.WithoutCancel(ctx)

	ended := e.now()
	run.EndedAt = &ended
	run.DurationMs = ended.Sub(run.StartedAt).Milliseconds()
	run.Attempts = attempts
	if runErr != nil {
		run.Status = models.RunFailed
		run.Error = runErr.Error()
	} else {
		run.Status = models.RunSuccess
		if res != nil {
			run.Reason = string(res.Status)
			if raw, err := json.Marshal(res); err == nil {
				run.Result = datatypes.JSON(raw)
			} else {
				log.Warn("marshal pipeline result failed", zap.Error(err))
			}
		}
	}

	if err := e.Repo.FinishRun(ctx, run); err != nil {
		// The reconcile sweep may have failed the run first; keep the stored outcome.
		if errors.Is(err, repository.ErrRunFinalized) {
			log.Warn("job run finalized elsewhere", zap.String("status", string(run.Status)))
			stored, gerr := e.Repo.GetRun(ctx, run.ID)
			if gerr == nil && stored != nil {
				return stored, nil
			}
		}
		return nil, err
	}
	e.updateLastRun(ctx, log, run)

	fields := []zap.Field{
		zap.String("status", string(run.Status)),
		zap.Int64("duration_ms", run.DurationMs),
		zap.Int("attempts", run.Attempts),
	}
	if runErr != nil {
		log.Error("job run failed", append(fields, zap.Error(runErr))...)
		e.notify(ctx, log, notification.Event{
			Event:     notification.EventRunFailed,
			JobID:     run.JobID,
			RunID:     run.ID,
			MarketDay: run.MarketDay,
			Message:   run.Error,
			At:        ended,
		})
		return run, nil
	}
	log.Info("job run finished", append(fields, zap.String("result", run.Reason))...)
	if res.Approved() {
		e.notify(ctx, log, notification.Event{
			Event:     notification.EventProposalApproved,
			JobID:     run.JobID,
			RunID:     run.ID,
			MarketDay: run.MarketDay,
			Message:   fmt.Sprintf("%s %s x%d", res.Proposal.Symbol, res.Proposal.Strategy, res.Proposal.Contracts),
			Payload:   res.Proposal,
			At:        ended,
		})
	}
	return run, nil
}

func (e *Executor) skip(ctx context.Context, run models.JobRun, reason string) (*models.JobRun, error) {
	now := e.now()
	run.ID = e.newID()
	run.Status = models.RunSkipped
	run.Reason = reason
	run.EndedAt = &now
	run.DurationMs = now.Sub(run.StartedAt).Milliseconds()
	if err := e.Repo.InsertRun(ctx, &run); err != nil {
		return nil, err
	}
	log := e.logger().With(
		zap.String("job_id", run.JobID),
		zap.String("run_id", run.ID),
		zap.String("market_day", run.MarketDay),
	)
	log.Info("job run skipped", zap.String("status", string(run.Status)), zap.String("reason", reason))
	e.updateLastRun(ctx, log, &run)
	return &run, nil
}

func (e *Executor) updateLastRun(ctx context.Context, log *zap.Logger, run *models.JobRun) {
	at := run.StartedAt
	if run.EndedAt != nil {
		at = *run.EndedAt
	}
	if err := e.Repo.UpdateJobLastRun(ctx, run.JobID, at, run.Status); err != nil {
		log.Warn("update job last run failed", zap.Error(err))
	}
}

func (e *Executor) notify(ctx context.Context, log *zap.Logger, ev notification.Event) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Notify(ctx, ev); err != nil {
		log.Warn("notify failed", zap.String("event", ev.Event), zap.Error(err))
	}
}

// Reconcile fails RUNNING records older than staleAfter and refreshes their jobs' last-run summary.
func (e *Executor) Reconcile(ctx context.Context, staleAfter time.Duration) (int, error) {
	if e == nil || e.Repo == nil {
		return 0, nil
	}
	if staleAfter <= 0 {
		staleAfter = 15 * time.Minute
	}
	now := e.now()
	failed, err := e.Repo.FailStaleRuns(ctx, now.Add(-staleAfter), now,
		fmt.Sprintf("run exceeded %s without finishing", staleAfter))
	if err != nil {
		return 0, err
	}
	for i := range failed {
		run := failed[i]
		log := e.logger().With(
			zap.String("job_id", run.JobID),
			zap.String("run_id", run.ID),
			zap.String("market_day", run.MarketDay),
		)
		log.Warn("stale job run failed", zap.Time("started_at", run.StartedAt))
		e.updateLastRun(ctx, log, &run)
		e.notify(ctx, log, notification.Event{
			Event:     notification.EventRunFailed,
			JobID:     run.JobID,
			RunID:     run.ID,
			MarketDay: run.MarketDay,
			Message:   run.Error,
			At:        now,
		})
	}
	return len(failed), nil
}
