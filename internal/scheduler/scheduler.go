// Package scheduler runs periodic store maintenance on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rendis/ucdiagram/pkg/schema"
)

// Maintainer is the slice of the store the maintenance jobs need.
type Maintainer interface {
	Vacuum(ctx context.Context) error
	PruneEvents(ctx context.Context, before time.Time) (int64, error)
}

// Job is a named unit of periodic work.
type Job struct {
	Name string
	Cron string
	Run  func(ctx context.Context, now time.Time) error
}

// JobStatus reports the last and next run of a job.
type JobStatus struct {
	Name       string    `json:"name"`
	Cron       string    `json:"cron"`
	NextRunAt  time.Time `json:"nextRunAt"`
	LastRunAt  time.Time `json:"lastRunAt,omitzero"`
	LastStatus string    `json:"lastStatus,omitempty"`
}

type entry struct {
	job        Job
	nextRunAt  time.Time
	lastRunAt  time.Time
	lastStatus string
}

// Scheduler checks its jobs on every tick and runs those that are due.
type Scheduler struct {
	parser   cron.Parser
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	jobs   []*entry
	cancel context.CancelFunc
	done   chan struct{}

	inflightMu sync.Mutex
	inflight   map[string]struct{} // job names currently executing
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick interval. The default is one minute.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// NewScheduler creates a Scheduler with no jobs.
func NewScheduler(logger *slog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		interval: time.Minute,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Its first run is the next cron match after now.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" {
		return fmt.Errorf("job name is required")
	}
	if job.Run == nil {
		return fmt.Errorf("job %q has no run function", job.Name)
	}
	next, err := s.CalculateNextRun(job.Cron, s.now().UTC())
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.jobs {
		if e.job.Name == job.Name {
			return fmt.Errorf("job %q already registered", job.Name)
		}
	}
	s.jobs = append(s.jobs, &entry{job: job, nextRunAt: next})
	return nil
}

// Start launches the background scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go s.loop(schedCtx, done)
	s.logger.Info("scheduler started", slog.Int("jobs", len(s.Status())))
	return nil
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs every job whose next run time has passed.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now().UTC()

	s.mu.Lock()
	var due []*entry
	for _, e := range s.jobs {
		if !e.nextRunAt.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if !s.tryAcquire(e.job.Name) {
			continue
		}
		s.runJob(ctx, e, now)
		s.releaseJob(e.job.Name)
	}
}

// RunNow runs the named job immediately, regardless of its schedule. An
// unknown job is NOT_FOUND and a job already in flight is CONFLICT.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *entry
	for _, e := range s.jobs {
		if e.job.Name == name {
			target = e
			break
		}
	}
	s.mu.Unlock()
	if target == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "unknown job %q", name)
	}
	if !s.tryAcquire(name) {
		return schema.NewErrorf(schema.ErrCodeConflict, "job %q is already running", name)
	}
	defer s.releaseJob(name)
	return s.runJob(ctx, target, s.now().UTC())
}

func (s *Scheduler) runJob(ctx context.Context, e *entry, now time.Time) error {
	s.logger.Info("running maintenance job", slog.String("job", e.job.Name))

	err := e.job.Run(ctx, now)
	status := "success"
	if err != nil {
		status = "error"
		s.logger.Error("maintenance job failed",
			slog.String("job", e.job.Name),
			slog.String("error", err.Error()),
		)
	}

	next, nerr := s.CalculateNextRun(e.job.Cron, now)
	s.mu.Lock()
	e.lastRunAt = now
	e.lastStatus = status
	if nerr == nil {
		e.nextRunAt = next
	}
	s.mu.Unlock()
	return err
}

// tryAcquire returns true and marks the job as in-flight if it is not already running.
func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Status lists the registered jobs in registration order.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, e := range s.jobs {
		out = append(out, JobStatus{
			Name:       e.job.Name,
			Cron:       e.job.Cron,
			NextRunAt:  e.nextRunAt,
			LastRunAt:  e.lastRunAt,
			LastStatus: e.lastStatus,
		})
	}
	return out
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done

	s.logger.Info("scheduler stopped")
	return nil
}
