package cronrunner

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// parser matches the runner's schedule grammar: a leading seconds field plus descriptors.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

type Runner struct {
	cron    *cron.Cron
	logger  *zap.Logger
	baseCtx context.Context
}

func New(logger *zap.Logger, baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := zapLogger{l: logger.Named("cron")}
	return &Runner{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
	}
}

func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		if r == nil || r.baseCtx == nil {
			job(context.Background())
			return
		}
		job(r.baseCtx)
	})
}

func (r *Runner) Remove(id cron.EntryID) {
	r.cron.Remove(id)
}

// Next returns the entry's next activation, zero if unknown or the runner is not started.
func (r *Runner) Next(id cron.EntryID) time.Time {
	return r.cron.Entry(id).Next
}

func (r *Runner) Start() {
	if r.logger != nil {
		r.logger.Info("cron started")
	}
	r.cron.Start()
}

func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	if r.logger != nil {
		r.logger.Info("cron stopped")
	}
}

// WithTimezone pins spec to tz unless it already carries a TZ prefix.
func WithTimezone(spec string, tz string) string {
	spec = strings.TrimSpace(spec)
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.HasPrefix(spec, "CRON_TZ=") || strings.HasPrefix(spec, "TZ=") {
		return spec
	}
	return "CRON_TZ=" + tz + " " + spec
}

func Parse(spec string) (cron.Schedule, error) {
	return parser.Parse(spec)
}

// NextRun computes the activation after `after` for spec in tz.
func NextRun(spec string, tz string, after time.Time) (time.Time, error) {
	sched, err := Parse(WithTimezone(spec, tz))
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}

type zapLogger struct {
	l *zap.Logger
}

func (z zapLogger) Info(msg string, keysAndValues ...interface{}) {
	z.l.Sugar().Debugw(msg, keysAndValues...)
}

func (z zapLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.l.Sugar().With(zap.Error(err)).Errorw(msg, keysAndValues...)
}
