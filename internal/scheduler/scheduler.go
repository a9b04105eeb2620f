// Package scheduler runs named background jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/attendance-tracker/internal/logging"
)

// Job is a unit of periodic work. The context is canceled when the scheduler stops.
type Job func(ctx context.Context) error

var (
	// ErrDisabled is returned by Add when the schedule expression is empty.
	ErrDisabled = errors.New("scheduler: schedule disabled")
	// errUnknownJob is returned by runNow for names that were never added.
	errUnknownJob = errors.New("scheduler: unknown job")
)

// Parser accepts standard five-field expressions, an optional leading seconds
// field and descriptors such as @daily or @every 1h.
var Parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler wraps a cron runner with structured logging and cancellation.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	jobs    map[string]cron.Job
	entries map[string]cron.EntryID
}

// New constructs a scheduler evaluating expressions in loc.
func New(loc *time.Location, logger *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")
	adapter := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithParser(Parser),
			cron.WithLogger(adapter),
			cron.WithChain(cron.Recover(adapter), cron.SkipIfStillRunning(adapter)),
		),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		jobs:    make(map[string]cron.Job),
		entries: make(map[string]cron.EntryID),
	}
}

// Validate reports whether expr parses. An empty expr is valid and disables the job.
func Validate(expr string) error {
	if strings.TrimSpace(expr) == "" {
		return nil
	}
	if _, err := Parser.Parse(expr); err != nil {
		return fmt.Errorf("scheduler: parse %q: %w", expr, err)
	}
	return nil
}

// Add registers job under name. Adding a name twice replaces the earlier entry.
func (s *Scheduler) Add(name, expr string, job Job) error {
	if s == nil {
		return fmt.Errorf("Scheduler is nil")
	}
	if job == nil {
		return fmt.Errorf("scheduler: job %q is nil", name)
	}
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return ErrDisabled
	}

	wrapped := s.wrap(name, job)
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	id, err := s.cron.AddJob(expr, wrapped)
	if err != nil {
		return fmt.Errorf("scheduler: add %q: %w", name, err)
	}
	s.jobs[name] = wrapped
	s.entries[name] = id
	s.logger.Info("job scheduled", "job", name, "expr", expr)
	return nil
}

// Next returns the next activation time for name, or the zero time when the
// job is unknown or the scheduler has not started.
func (s *Scheduler) Next(name string) time.Time {
	if s == nil {
		return time.Time{}
	}
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}
	}
	return s.cron.Entry(id).Next
}

// runNow runs the named job synchronously outside its schedule.
func (s *Scheduler) runNow(name string) error {
	if s == nil {
		return fmt.Errorf("Scheduler is nil")
	}
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownJob, name)
	}
	job.Run()
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop prevents new runs, cancels running jobs and waits for them to return
// or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.cancel()
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

func (s *Scheduler) wrap(name string, job Job) cron.Job {
	return cron.FuncJob(func() {
		logger := s.logger.With("job", name)
		ctx := logging.ContextWithLogger(s.ctx, logger)
		started := time.Now()

		err := job(ctx)
		elapsed := time.Since(started)
		switch {
		case err == nil:
			logger.InfoContext(ctx, "job completed", "duration", elapsed)
		case errors.Is(err, context.Canceled):
			logger.WarnContext(ctx, "job canceled", "duration", elapsed, "error", err)
		default:
			logger.ErrorContext(ctx, "job failed", "duration", elapsed, "error", err)
		}
	})
}

// cronLogger adapts slog to the cron logging interface. Routine cron chatter
// is demoted to debug.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
