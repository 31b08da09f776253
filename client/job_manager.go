package client

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/internal/message_broaker"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/internal/store"
	"github.com/zed-io/fineract-sub004/pgk/parser"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
	"go.uber.org/zap"
)

// DefaultHistoryLimit caps GetJobExecutionHistory when no limit is given.
const DefaultHistoryLimit = 100

type ManagerOption func(*JobManager)

func WithManagerLogger(logger *zap.Logger) ManagerOption {
	return func(jm *JobManager) {
		if logger != nil {
			jm.logger = logger
		}
	}
}

func WithManagerClock(now func() time.Time) ManagerOption {
	return func(jm *JobManager) {
		jm.now = now
	}
}

// WithManagerBroker hands the broker to the manager so GracefulExit closes it.
func WithManagerBroker(broker message_broaker.MessageBroker) ManagerOption {
	return func(jm *JobManager) {
		jm.broker = broker
	}
}

// JobManager is the public surface of the engine.
type JobManager struct {
	jobStore       store.JobStore
	executionStore store.JobExecutionStore
	registry       *config.WorkerRegistry
	executor       *Executor
	scheduler      *Scheduler
	broker         message_broaker.MessageBroker

	defaultTimeoutSeconds int
	defaultMaxRetries     int

	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewJobManager(
	jobStore store.JobStore,
	executionStore store.JobExecutionStore,
	registry *config.WorkerRegistry,
	executor *Executor,
	scheduler *Scheduler,
	cfg *config.SchedulerConfig,
	opts ...ManagerOption,
) *JobManager {
	jm := &JobManager{
		jobStore:              jobStore,
		executionStore:        executionStore,
		registry:              registry,
		executor:              executor,
		scheduler:             scheduler,
		defaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		defaultMaxRetries:     cfg.DefaultMaxRetries,
		logger:                zap.NewNop(),
		now:                   time.Now,
	}
	for _, opt := range opts {
		opt(jm)
	}
	return jm
}

// Start runs the poll scheduler in the background until Stop or GracefulExit.
func (jm *JobManager) Start(ctx context.Context) error {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.started {
		return errors.New("job manager already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	jm.cancel = cancel
	jm.started = true

	jm.wg.Add(1)
	go func() {
		defer jm.wg.Done()
		if err := jm.scheduler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			jm.logger.Error("scheduler exited", zap.Error(err))
		}
	}()
	return nil
}

// Stop cancels polling and waits for in-flight executions.
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	cancel := jm.cancel
	jm.cancel = nil
	jm.started = false
	jm.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	jm.wg.Wait()
	jm.scheduler.Wait()
}

// GracefulExit blocks until SIGINT or SIGTERM, then stops the scheduler,
// waits for running attempts and closes the store and the broker.
func (jm *JobManager) GracefulExit() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	jm.logger.Info("shutting down gracefully")
	jm.Shutdown()
	jm.logger.Info("shutdown complete")
}

// Shutdown stops the scheduler and releases the store and the broker.
func (jm *JobManager) Shutdown() {
	jm.Stop()

	if err := jm.jobStore.Close(); err != nil {
		jm.logger.Warn("failed to close job store", zap.Error(err))
	}
	if jm.broker != nil {
		if err := jm.broker.Close(); err != nil {
			jm.logger.Warn("failed to close message broker", zap.Error(err))
		}
	}
}

// ScheduleJob validates and persists a job and arms its local wake-up.
//
// A job without an id is created with defaults: a generated id, status
// SCHEDULED, the configured timeout and retry limit, and a next run time from
// its cron expression (or now, for one-shot jobs without one). A job carrying a
// version re-schedules the stored job under optimistic concurrency.
func (jm *JobManager) ScheduleJob(ctx context.Context, job *types.Job) (*types.Job, error) {
	if job == nil {
		return nil, errors.New("job is required")
	}
	if job.JobType == "" {
		return nil, errors.New("job type is required")
	}
	if job.Name == "" {
		job.Name = job.JobType
	}
	if _, err := jm.registry.Resolve(job); err != nil {
		return nil, err
	}
	if job.IsRecurring() {
		if err := parser.Validate(job.CronExpression); err != nil {
			return nil, err
		}
	}

	now := jm.now()
	if job.Version > 0 {
		stored, err := jm.jobStore.Get(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if stored.Status == state.StatusRunning {
			return nil, fmt.Errorf("%w: %s", custom_errors.ErrJobAlreadyRunning, job.ID)
		}
		job.RetryCount = 0
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}

	job.Status = state.StatusScheduled
	job.IsActive = true
	job.LockID = nil
	job.LockExpiresAt = nil
	jm.applyDefaults(job)

	if job.NextRunTime == nil {
		next := now
		if job.IsRecurring() {
			var err error
			if next, err = parser.NextOccurrence(job.CronExpression, now); err != nil {
				return nil, err
			}
		}
		job.NextRunTime = &next
	}

	if err := jm.jobStore.AddOrUpdate(ctx, job); err != nil {
		return nil, err
	}

	jm.scheduler.Arm(job)
	jm.logger.Info("job scheduled",
		zap.String("job_id", job.ID),
		zap.String("job_type", job.JobType),
		zap.Timep("next_run_time", job.NextRunTime),
	)
	return job.Clone(), nil
}

func (jm *JobManager) applyDefaults(job *types.Job) {
	if job.TimeoutSeconds <= 0 {
		job.TimeoutSeconds = jm.defaultTimeoutSeconds
	}
	switch {
	case job.MaxRetries == 0:
		job.MaxRetries = jm.defaultMaxRetries
	case job.MaxRetries < 0:
		job.MaxRetries = 0
	}
}

// ExecuteJob runs the job now on this node, bypassing the poll wait. Worker
// failures are recorded like any other attempt and then returned.
func (jm *JobManager) ExecuteJob(ctx context.Context, jobID string, overrides map[string]any) (*types.JobExecution, error) {
	execution, err := jm.executor.Execute(ctx, jobID, overrides, true)
	if execution != nil {
		if job, getErr := jm.jobStore.Get(ctx, jobID); getErr == nil {
			jm.scheduler.Arm(job)
		}
	}
	return execution, err
}

// PauseJob stops a SCHEDULED job from being picked up until ResumeJob.
func (jm *JobManager) PauseJob(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := jm.transition(ctx, jobID, state.StatusScheduled, state.StatusPaused, nil)
	if err != nil {
		return nil, err
	}
	jm.scheduler.Disarm(jobID)
	return job, nil
}

// ResumeJob returns a PAUSED job to SCHEDULED. Recurring jobs get the next
// cron occurrence after now; one-shot jobs keep their run time, or run now
// when they have none.
func (jm *JobManager) ResumeJob(ctx context.Context, jobID string) (*types.Job, error) {
	now := jm.now()
	job, err := jm.transition(ctx, jobID, state.StatusPaused, state.StatusScheduled, func(j *types.Job) error {
		switch {
		case j.IsRecurring():
			next, err := parser.NextOccurrence(j.CronExpression, now)
			if err != nil {
				return err
			}
			j.NextRunTime = &next
		case j.NextRunTime == nil:
			j.NextRunTime = &now
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	jm.scheduler.Arm(job)
	return job, nil
}

// CancelJob ends a SCHEDULED job for good. An attempt already running is not
// interrupted.
func (jm *JobManager) CancelJob(ctx context.Context, jobID string) (*types.Job, error) {
	job, err := jm.transition(ctx, jobID, state.StatusScheduled, state.StatusCancelled, func(j *types.Job) error {
		j.IsActive = false
		j.NextRunTime = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	jm.scheduler.Disarm(jobID)
	return job, nil
}

func (jm *JobManager) transition(ctx context.Context, jobID string, from, to state.JobStatus, mutate func(*types.Job) error) (*types.Job, error) {
	job, err := updateJob(ctx, jm.jobStore, jobID, func(j *types.Job) error {
		if j.Status != from || !state.IsValidTransition(from, to) {
			return fmt.Errorf("%w: job %s is %s, expected %s", custom_errors.ErrInvalidTransition, jobID, j.Status, from)
		}
		j.Status = to
		if mutate != nil {
			return mutate(j)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	jm.logger.Info("job status changed", zap.String("job_id", jobID), zap.String("status", to.String()))
	return job, nil
}

func (jm *JobManager) GetJob(ctx context.Context, jobID string) (*types.Job, error) {
	return jm.jobStore.Get(ctx, jobID)
}

func (jm *JobManager) ListJobs(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	return jm.jobStore.List(ctx, filter)
}

// GetJobExecutionHistory returns up to limit executions of a job, newest first.
func (jm *JobManager) GetJobExecutionHistory(ctx context.Context, jobID string, limit int) ([]types.JobExecution, error) {
	if _, err := jm.jobStore.Get(ctx, jobID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return jm.executionStore.History(ctx, jobID, limit)
}

func (jm *JobManager) CountByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	return jm.jobStore.CountAllJobsGroupedByStatus(ctx)
}

// RegisterWorker makes w available to jobs scheduled from now on.
func (jm *JobManager) RegisterWorker(w types.Worker) error {
	return jm.registry.Register(w)
}
