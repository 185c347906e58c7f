// Package scheduler runs the periodic background jobs on a cron schedule with
// a seconds field.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/metrics"
)

// Job is a named unit of background work.
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wraps a cron runner. Runs of the same job never overlap.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
	timeout time.Duration

	mu   sync.Mutex
	jobs map[string]Job
}

// New creates a scheduler whose jobs run with contexts derived from baseCtx.
// timeout bounds a single run; zero means no bound.
func New(baseCtx context.Context, timeout time.Duration, logger zerolog.Logger) *Scheduler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger = logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(time.UTC),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:  logger,
		baseCtx: baseCtx,
		timeout: timeout,
		jobs:    make(map[string]Job),
	}
}

// Add registers a job. An empty spec leaves the job registered for RunNow but
// unscheduled.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.Name]; ok {
		return fmt.Errorf("job %q: %w", job.Name, apperrors.ErrDuplicate)
	}
	if job.Spec != "" {
		if _, err := s.cron.AddFunc(job.Spec, func() { _ = s.run(s.baseCtx, job) }); err != nil {
			return fmt.Errorf("job %q schedule %q: %v: %w", job.Name, job.Spec, err, apperrors.ErrConfigInvalid)
		}
		s.logger.Info().Str("job", job.Name).Str("spec", job.Spec).Msg("Job scheduled")
	}
	s.jobs[job.Name] = job
	return nil
}

// RunNow runs a registered job immediately on the calling goroutine.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return apperrors.NotFound("job", name)
	}
	return s.run(ctx, job)
}

// Jobs returns the registered job names and specs.
func (s *Scheduler) Jobs() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.jobs))
	for name, j := range s.jobs {
		out[name] = j.Spec
	}
	return out
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	metrics.RecordJob(job.Name, elapsed, err == nil)

	if err != nil {
		s.logger.Error().Err(err).Str("job", job.Name).Dur("duration", elapsed).Msg("Job failed")
		return err
	}
	s.logger.Debug().Str("job", job.Name).Dur("duration", elapsed).Msg("Job finished")
	return nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
	s.cron.Start()
}

// Stop stops scheduling and waits for running jobs, up to ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("Scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stopped before running jobs finished")
	}
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
