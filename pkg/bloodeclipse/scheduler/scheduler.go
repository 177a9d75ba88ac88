// Package scheduler runs the bot's periodic jobs on robfig/cron, such as
// rotating the activity line shown under the bot's name.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// stopTimeout bounds how long Stop waits for running jobs.
const stopTimeout = 10 * time.Second

// parser accepts standard 5-field expressions and descriptors ("@every 15m").
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// JobHandler is the function called when a job fires.
type JobHandler func(ctx context.Context, job *Job) error

// Job is a named handler on a schedule. The run fields are written by the
// scheduler; read them through Get or List.
type Job struct {
	ID       string
	Schedule string
	Enabled  bool
	Run      JobHandler

	LastRunAt *time.Time
	RunCount  int
	LastError string
}

// Scheduler fires jobs on their schedules. A job that is still running when
// its next tick arrives skips that tick.
type Scheduler struct {
	cron    *cron.Cron
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]*Job
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a Scheduler. Jobs may be added before or after Start.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "scheduler")

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger{logger})),
		),
		timeout: time.Minute,
		logger:  logger,
		jobs:    make(map[string]*Job),
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Add validates and registers a job. Disabled jobs are kept but never fire.
func (s *Scheduler) Add(job *Job) error {
	switch {
	case job.ID == "":
		return errors.New("job ID is required")
	case job.Schedule == "":
		return fmt.Errorf("job %q: schedule is required", job.ID)
	case job.Run == nil:
		return fmt.Errorf("job %q has no handler", job.ID)
	}

	sched, err := parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", job.Schedule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %q already exists", job.ID)
	}
	s.jobs[job.ID] = job
	if job.Enabled {
		s.entries[job.ID] = s.cron.Schedule(sched, cron.FuncJob(func() { s.executeJob(job) }))
	}

	s.logger.Info("job added", "id", job.ID, "schedule", job.Schedule, "enabled", job.Enabled)
	return nil
}

// Remove unregisters a job.
func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job %q not found", id)
	}
	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}
	delete(s.jobs, id)
	return nil
}

// Get returns a copy of a job's state.
func (s *Scheduler) Get(id string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

// List returns a copy of every job's state.
func (s *Scheduler) List() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Start begins firing jobs. Jobs see a context derived from ctx that is
// cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.ctx, s.cancel = context.WithCancel(ctx)
	count := len(s.entries)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", count)
	return nil
}

// Stop stops firing jobs and waits up to stopTimeout for running ones.
func (s *Scheduler) Stop() {
	select {
	case <-s.cron.Stop().Done():
	case <-time.After(stopTimeout):
		s.logger.Warn("scheduler stop timed out")
	}

	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.logger.Info("scheduler stopped")
}

// executeJob runs one tick of a job with a timeout and records the outcome.
func (s *Scheduler) executeJob(job *Job) {
	s.mu.Lock()
	now := time.Now()
	job.LastRunAt = &now
	job.RunCount++
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	s.mu.Unlock()
	defer cancel()

	err := runSafely(ctx, job)

	s.mu.Lock()
	job.LastError = ""
	if err != nil {
		job.LastError = err.Error()
	}
	runs := job.RunCount
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("scheduled job failed", "id", job.ID, "error", err)
		return
	}
	s.logger.Debug("scheduled job done", "id", job.ID, "run_count", runs)
}

// runSafely turns a panicking handler into an error.
func runSafely(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx, job)
}

// cronLogger routes cron's own messages (skipped ticks) to slog.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Warn("cron: "+msg, append(keysAndValues, "error", err)...)
}
