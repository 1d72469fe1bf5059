package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidSchedule is returned for a spec cron cannot parse.
var ErrInvalidSchedule = errors.New("invalid schedule")

// Job is one scheduled run. Its context is cancelled when the scheduler
// stops.
type Job func(ctx context.Context)

// Scheduler runs a Job on a cron schedule until its context ends.
type Scheduler struct {
	spec      string
	schedule  cron.Schedule
	logger    *slog.Logger
	location  *time.Location
	immediate bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithLocation sets the time zone the schedule is evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithImmediate runs the job once at start, before the first tick.
func WithImmediate(immediate bool) Option {
	return func(s *Scheduler) { s.immediate = immediate }
}

// Parse validates spec.
func Parse(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	return sched, nil
}

// New creates a scheduler for spec.
func New(spec string, opts ...Option) (*Scheduler, error) {
	sched, err := Parse(spec)
	if err != nil {
		return nil, err
	}
	s := &Scheduler{
		spec:     spec,
		schedule: sched,
		logger:   slog.Default(),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.location))
}

// Run blocks until ctx is done, calling job on every tick. On return any
// job in flight has finished. Cancellation is a clean stop.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	logger := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	wrapped := c.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	}))
	s.logger.Info("schedule started", "spec", s.spec, "next", s.Next(time.Now()))

	var first sync.WaitGroup
	if s.immediate {
		// Through the chain, so a tick that fires meanwhile is skipped.
		first.Add(1)
		go func() {
			defer first.Done()
			c.Entry(wrapped).WrappedJob.Run()
		}()
	}
	c.Start()

	<-ctx.Done()
	s.logger.Info("schedule stopping, waiting for the run in flight")
	<-c.Stop().Done()
	first.Wait()
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
