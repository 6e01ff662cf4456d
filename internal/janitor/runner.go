package janitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

type Runner struct {
	sweeper *Sweeper
	spec    string
	logger  *slog.Logger
}

// NewRunner validates spec, a standard cron expression or descriptor such
// as "@every 1h".
func NewRunner(sweeper *Sweeper, spec string, logger *slog.Logger) (*Runner, error) {
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	return &Runner{sweeper: sweeper, spec: spec, logger: logger.With("component", "janitor")}, nil
}

// Start runs the sweeper on schedule until ctx is done and waits for a
// running sweep to finish. Overlapping runs are skipped.
func (r *Runner) Start(ctx context.Context) {
	cl := cronLogger{r.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	if _, err := c.AddFunc(r.spec, func() { r.run(ctx) }); err != nil {
		r.logger.Error("janitor schedule rejected", "spec", r.spec, "error", err)
		return
	}

	r.logger.Info("janitor started", "schedule", r.spec)
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("janitor shut down")
}

func (r *Runner) run(ctx context.Context) {
	if _, err := r.sweeper.Sweep(ctx); err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "janitor sweep", "error", err)
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error(msg, append(keysAndValues, "error", err)...)
}
