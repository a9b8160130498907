package background

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is a named periodic maintenance task
type Job struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each registered job on its own ticker until stopped
type Scheduler struct {
	jobs   []Job
	logger *slog.Logger
	stopCh chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewScheduler creates a new scheduler
func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Add registers a job. Jobs added after Start are ignored.
func (s *Scheduler) Add(job Job) {
	if job.Timeout <= 0 {
		job.Timeout = 30 * time.Second
	}
	s.jobs = append(s.jobs, job)
}

// Start launches every job in its own goroutine and returns immediately
func (s *Scheduler) Start(ctx context.Context) {
	for _, job := range s.jobs {
		if job.Interval <= 0 {
			s.logger.Warn("skipping job with non-positive interval", slog.String("job", job.Name))
			continue
		}

		s.wg.Add(1)
		go func(job Job) {
			defer s.wg.Done()
			s.loop(ctx, job)
		}(job)
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	s.runOnce(ctx, job)

	for {
		select {
		case <-ticker.C:
			s.runOnce(ctx, job)
		case <-s.stopCh:
			s.logger.Info("job stopped", slog.String("job", job.Name))
			return
		case <-ctx.Done():
			s.logger.Info("job context cancelled", slog.String("job", job.Name))
			return
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", slog.String("job", job.Name), slog.Any("panic", r))
		}
	}()

	start := time.Now()
	if err := job.Run(runCtx); err != nil {
		s.logger.Error("job failed", slog.String("job", job.Name), slog.Any("error", err))
		return
	}

	s.logger.Debug("job completed", slog.String("job", job.Name), slog.Duration("duration", time.Since(start)))
}

// Stop signals all jobs to stop and waits for running ones to return
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}
