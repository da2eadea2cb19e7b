// Package scheduler runs the recurring sync jobs. Each job has its own loop,
// started after a per-job offset so passes do not contend for the same rows.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dthul/discord-bot/internal/logging"
)

var (
	// ErrUnknownJob is returned when triggering a job that does not exist.
	ErrUnknownJob = errors.New("unknown job")
	// ErrJobRunning is returned when triggering a job that is already running.
	ErrJobRunning = errors.New("job is already running")
)

// Job is one recurring task.
type Job struct {
	Name string
	// Offset delays the first run after Start.
	Offset time.Duration
	Run    func(ctx context.Context) error
}

// Recorder receives job outcomes.
type Recorder interface {
	ObserveJob(job string, err error)
}

type jobState struct {
	Job
	running sync.Mutex
}

// SyncScheduler runs jobs every interval, each run bounded by timeout. A
// failing or timed out run is logged; the next tick runs regardless.
type SyncScheduler struct {
	jobs     map[string]*jobState
	order    []string
	interval time.Duration
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewSyncScheduler creates a scheduler for jobs.
func NewSyncScheduler(jobs []Job, interval, timeout time.Duration, recorder Recorder, logger *slog.Logger) *SyncScheduler {
	s := &SyncScheduler{
		jobs:     make(map[string]*jobState, len(jobs)),
		interval: interval,
		timeout:  timeout,
		recorder: recorder,
		logger:   logging.Component(logger, "scheduler"),
		stopChan: make(chan struct{}),
	}
	for _, job := range jobs {
		s.jobs[job.Name] = &jobState{Job: job}
		s.order = append(s.order, job.Name)
	}
	return s
}

// Jobs returns the job names in registration order.
func (s *SyncScheduler) Jobs() []string {
	return append([]string(nil), s.order...)
}

// Start launches one loop per job. It returns immediately.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler", "interval", s.interval, "timeout", s.timeout, "jobs", len(s.order))
	for _, name := range s.order {
		job := s.jobs[name]
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.loop(ctx, job)
		}()
	}
}

func (s *SyncScheduler) loop(ctx context.Context, job *jobState) {
	timer := time.NewTimer(job.Offset)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-s.stopChan:
		return
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runLocked(ctx, job)

		select {
		case <-ticker.C:
		case <-s.stopChan:
			s.logger.Info("Sync job stopped", "job", job.Name)
			return
		case <-ctx.Done():
			s.logger.Info("Sync job stopping due to context cancellation", "job", job.Name)
			return
		}
	}
}

// runLocked runs job unless a run is already in progress.
func (s *SyncScheduler) runLocked(ctx context.Context, job *jobState) {
	if !job.running.TryLock() {
		s.logger.Warn("Skipping sync job, previous run still in progress", "job", job.Name)
		return
	}
	defer job.running.Unlock()
	_ = s.run(ctx, job)
}

func (s *SyncScheduler) run(ctx context.Context, job *jobState) error {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	err := job.Run(runCtx)
	if err == nil && runCtx.Err() != nil {
		err = runCtx.Err()
	}
	if s.recorder != nil {
		s.recorder.ObserveJob(job.Name, err)
	}
	if err != nil {
		s.logger.Error("Sync job failed", "job", job.Name, "duration", time.Since(start), "error", err)
		return err
	}
	s.logger.Debug("Sync job finished", "job", job.Name, "duration", time.Since(start))
	return nil
}

// Trigger starts job name in the background, outside its schedule.
func (s *SyncScheduler) Trigger(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !job.running.TryLock() {
		return fmt.Errorf("%w: %s", ErrJobRunning, name)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer job.running.Unlock()
		_ = s.run(ctx, job)
	}()
	return nil
}

// RunNow runs job name synchronously.
func (s *SyncScheduler) RunNow(ctx context.Context, name string) error {
	job, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	job.running.Lock()
	defer job.running.Unlock()
	return s.run(ctx, job)
}

// Stop ends all loops. Runs in progress keep their own timeout.
func (s *SyncScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Wait blocks until every loop and triggered run has returned, or ctx
// expires.
func (s *SyncScheduler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
