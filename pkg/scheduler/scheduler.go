// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Executor drives one orchestrator turn for a scheduled job and returns the
// answer text.
type Executor func(ctx context.Context, instruction, jobID string) (string, error)

// Notifier posts a message to an external channel.
type Notifier func(ctx context.Context, message, channel string)

// DefaultRetryDelay is the wait before the single automatic retry after a
// job's first consecutive failure.
const DefaultRetryDelay = 60 * time.Second

// maxConsecutiveFailures disables a job when reached.
const maxConsecutiveFailures = 3

// failureRingSize bounds the recent-failure buffer.
const failureRingSize = 20

// Config configures a Scheduler.
type Config struct {
	Store      *Store
	Logger     *zap.Logger
	RetryDelay time.Duration
}

// Scheduler registers persisted jobs with a cron engine and runs them
// through the configured executor.
type Scheduler struct {
	store      *Store
	logger     *zap.Logger
	retryDelay time.Duration

	mu          sync.Mutex
	cronEngine  *cron.Cron
	entries     map[string]cron.EntryID
	retryTimers map[string]*time.Timer
	failures    []FailureRecord
	executor    Executor
	notifier    Notifier
	started     bool
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return &Scheduler{
		store:       cfg.Store,
		logger:      cfg.Logger,
		retryDelay:  cfg.RetryDelay,
		cronEngine:  cron.New(),
		entries:     make(map[string]cron.EntryID),
		retryTimers: make(map[string]*time.Timer),
	}, nil
}

// Configure binds the executor and notifier callbacks. Must be called before
// Start; the notifier may be nil.
func (s *Scheduler) Configure(executor Executor, notifier Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executor = executor
	s.notifier = notifier
}

// Start loads runnable jobs and begins cron dispatch.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.executor == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not configured with an executor")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	jobs, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	registered := 0
	for _, job := range jobs {
		if !job.Runnable() {
			continue
		}
		if err := s.register(job); err != nil {
			s.logger.Error("failed to register job",
				zap.String("job_id", job.ID), zap.String("cron", job.CronExpression), zap.Error(err))
			continue
		}
		registered++
	}
	s.cronEngine.Start()
	s.logger.Info("scheduler started",
		zap.Int("jobs_registered", registered), zap.Int("jobs_total", len(jobs)))
	return nil
}

// Stop halts cron dispatch and cancels pending retries.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entryID := range s.entries {
		s.cronEngine.Remove(entryID)
		delete(s.entries, id)
	}
	for id, timer := range s.retryTimers {
		timer.Stop()
		delete(s.retryTimers, id)
	}
	s.cronEngine.Stop()
	s.started = false
	s.logger.Info("scheduler stopped")
}

// AddJob persists a new job and registers it when runnable.
func (s *Scheduler) AddJob(ctx context.Context, job *ScheduledJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	if job.Status == "" {
		job.Status = StatusActive
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	job.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	if job.Runnable() {
		if err := s.register(job); err != nil {
			return fmt.Errorf("job %s persisted but cron registration failed: %w", job.ID, err)
		}
	}
	s.logger.Info("job added",
		zap.String("job_id", job.ID), zap.String("name", job.Name), zap.String("cron", job.CronExpression))
	return nil
}

// DeleteJob unregisters and removes a job. A pending retry for the job is
// canceled.
func (s *Scheduler) DeleteJob(ctx context.Context, id string) error {
	s.unregister(id)
	s.cancelRetry(id)
	return s.store.Delete(ctx, id)
}

// PauseJob moves an active job to paused and unregisters it.
func (s *Scheduler) PauseJob(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Status = StatusPaused
	job.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	s.unregister(id)
	s.cancelRetry(id)
	return nil
}

// ResumeJob moves a paused or error-disabled job back to active and
// registers it. Failure counting restarts from zero.
func (s *Scheduler) ResumeJob(ctx context.Context, id string) error {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Status = StatusActive
	job.Enabled = true
	job.ConsecutiveFailures = 0
	job.UpdatedAt = time.Now()
	if err := s.store.Save(ctx, job); err != nil {
		return err
	}
	return s.register(job)
}

// RecentFailures returns the failure ring, newest last.
func (s *Scheduler) RecentFailures() []FailureRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]FailureRecord, len(s.failures))
	copy(out, s.failures)
	return out
}

func (s *Scheduler) register(job *ScheduledJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[job.ID]; exists {
		return nil
	}
	jobID := job.ID
	entryID, err := s.cronEngine.AddFunc(job.CronExpression, func() {
		s.executeJob(context.Background(), jobID)
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", job.CronExpression, err)
	}
	s.entries[job.ID] = entryID
	return nil
}

func (s *Scheduler) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, ok := s.entries[id]; ok {
		s.cronEngine.Remove(entryID)
		delete(s.entries, id)
	}
}

func (s *Scheduler) cancelRetry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timer, ok := s.retryTimers[id]; ok {
		timer.Stop()
		delete(s.retryTimers, id)
	}
}

// executeJob runs one job invocation. The job row is reloaded first so a
// disable between scheduling and firing wins.
func (s *Scheduler) executeJob(ctx context.Context, id string) {
	job, err := s.store.Get(ctx, id)
	if err != nil {
		s.logger.Warn("skipping run of unloadable job", zap.String("job_id", id), zap.Error(err))
		return
	}
	if !job.Runnable() {
		s.logger.Debug("skipping disabled job", zap.String("job_id", id))
		return
	}

	s.mu.Lock()
	executor := s.executor
	s.mu.Unlock()

	s.logger.Info("running scheduled job", zap.String("job_id", id), zap.String("name", job.Name))
	result, execErr := executor(ctx, job.Instruction, job.ID)
	if execErr != nil {
		s.handleFailure(ctx, job, execErr)
		return
	}

	now := time.Now()
	job.ConsecutiveFailures = 0
	job.LastRunAt = &now
	job.LastResult = result
	job.UpdatedAt = now
	if job.OneShot {
		job.Enabled = false
		s.unregister(job.ID)
	}
	if err := s.store.Save(ctx, job); err != nil {
		s.logger.Error("failed to persist job result", zap.String("job_id", id), zap.Error(err))
	}
	s.cancelRetry(job.ID)
	s.notify(ctx, job, fmt.Sprintf("[%s] %s", job.Name, result))
}

func (s *Scheduler) handleFailure(ctx context.Context, job *ScheduledJob, execErr error) {
	now := time.Now()
	job.ConsecutiveFailures++
	job.LastErrorAt = &now
	job.UpdatedAt = now

	s.mu.Lock()
	s.failures = append(s.failures, FailureRecord{
		JobID: job.ID, JobName: job.Name, Error: execErr.Error(), Timestamp: now,
	})
	if len(s.failures) > failureRingSize {
		s.failures = s.failures[len(s.failures)-failureRingSize:]
	}
	s.mu.Unlock()

	s.logger.Warn("scheduled job failed",
		zap.String("job_id", job.ID), zap.String("name", job.Name),
		zap.Int("consecutive_failures", job.ConsecutiveFailures), zap.Error(execErr))

	if job.ConsecutiveFailures >= maxConsecutiveFailures {
		job.Status = StatusDisabledByError
		job.Enabled = false
		s.unregister(job.ID)
		s.cancelRetry(job.ID)
		if err := s.store.Save(ctx, job); err != nil {
			s.logger.Error("failed to persist auto-disable", zap.String("job_id", job.ID), zap.Error(err))
		}
		// The auto-disable notice goes out even for jobs without a channel
		// binding; the notifier decides the fallback destination.
		s.notifyAlways(ctx, job, fmt.Sprintf(
			"[%s] disabled after %d consecutive failures, last error: %v",
			job.Name, job.ConsecutiveFailures, execErr))
		return
	}

	if err := s.store.Save(ctx, job); err != nil {
		s.logger.Error("failed to persist job failure", zap.String("job_id", job.ID), zap.Error(err))
	}

	if job.ConsecutiveFailures == 1 {
		s.scheduleRetry(job.ID)
	}
	s.notify(ctx, job, fmt.Sprintf("[%s] failed: %v", job.Name, execErr))
}

// scheduleRetry arms the single post-failure retry. Disabling or deleting
// the job cancels it.
func (s *Scheduler) scheduleRetry(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, pending := s.retryTimers[id]; pending {
		return
	}
	s.retryTimers[id] = time.AfterFunc(s.retryDelay, func() {
		s.mu.Lock()
		delete(s.retryTimers, id)
		s.mu.Unlock()
		s.executeJob(context.Background(), id)
	})
}

func (s *Scheduler) notify(ctx context.Context, job *ScheduledJob, message string) {
	if job.NotificationChannel == "" {
		return
	}
	s.notifyAlways(ctx, job, message)
}

func (s *Scheduler) notifyAlways(ctx context.Context, job *ScheduledJob, message string) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return
	}
	notifier(ctx, message, job.NotificationChannel)
}
