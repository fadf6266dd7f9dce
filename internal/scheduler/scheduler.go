// Package scheduler runs periodic jobs on their own goroutines until stopped.
package scheduler

import (
	"context"
	"sync"
	"time"

	"trailsbuddy.com/quiz-contest/internal/logger"
)

// Job is one periodic task. Run is called once per Interval; a tick that
// fires while Run is still busy is dropped.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	log  *logger.Logger
	jobs []Job

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(log *logger.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{log: log, jobs: jobs}
}

// Start launches every job. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.log.Entry().WithField("jobs", len(s.jobs)).Info("Scheduler started")
}

// Stop cancels all jobs and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Entry().Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	entry := s.log.Entry().WithField("job", job.Name)
	defer func() {
		if r := recover(); r != nil {
			entry.WithField("panic", r).Error("Scheduled job panicked")
		}
	}()
	start := time.Now()
	if err := job.Run(ctx); err != nil {
		entry.WithError(err).Error("Scheduled job failed")
		return
	}
	entry.WithField("took", time.Since(start).String()).Debug("Scheduled job completed")
}
