package client

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/internal/backoff"
	"github.com/zed-io/fineract-sub004/internal/constants"
	"github.com/zed-io/fineract-sub004/internal/lock"
	"github.com/zed-io/fineract-sub004/internal/message_broaker"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/internal/store"
	"github.com/zed-io/fineract-sub004/pgk/parser"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
	"go.uber.org/zap"
)

// errSkipped marks an attempt this node gave up before running the worker.
var errSkipped = errors.New("attempt skipped")

type ExecutorOption func(*Executor)

func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithExecutorClock replaces time.Now for every timestamp the executor writes.
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		e.now = now
	}
}

// WithEventBroker publishes a JobEvent after every finished attempt.
func WithEventBroker(broker message_broaker.MessageBroker) ExecutorOption {
	return func(e *Executor) {
		e.broker = broker
	}
}

func WithBackoff(strategy backoff.Strategy) ExecutorOption {
	return func(e *Executor) {
		e.backoff = strategy
	}
}

// Executor runs single attempts of a job: lease, RUNNING, worker under a
// deadline, outcome, release.
type Executor struct {
	jobStore       store.JobStore
	executionStore store.JobExecutionStore
	lock           lock.DistributedLockManager
	registry       *config.WorkerRegistry
	broker         message_broaker.MessageBroker
	backoff        backoff.Strategy
	nodeID         string
	leaseTTL       time.Duration
	logger         *zap.Logger
	now            func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewExecutor(
	jobStore store.JobStore,
	executionStore store.JobExecutionStore,
	lockManager lock.DistributedLockManager,
	registry *config.WorkerRegistry,
	cfg *config.SchedulerConfig,
	opts ...ExecutorOption,
) *Executor {
	e := &Executor{
		jobStore:       jobStore,
		executionStore: executionStore,
		lock:           lockManager,
		registry:       registry,
		backoff:        backoff.NewPower(constants.RetryBackoffBase, time.Second, cfg.MaxBackoff),
		nodeID:         cfg.NodeID,
		leaseTTL:       cfg.LeaseTTL,
		logger:         zap.NewNop(),
		now:            time.Now,
		inFlight:       make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// InFlight reports whether this node is currently executing jobID.
func (e *Executor) InFlight(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.inFlight[jobID]
	return ok
}

func (e *Executor) enter(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[jobID]; ok {
		return false
	}
	e.inFlight[jobID] = struct{}{}
	return true
}

func (e *Executor) leave(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, jobID)
}

// leaseFor sizes the lease so it outlives the attempt's own deadline.
func (e *Executor) leaseFor(job *types.Job) time.Duration {
	ttl := e.leaseTTL
	if need := job.Timeout() + constants.LeaseGrace; need > ttl {
		ttl = need
	}
	return ttl
}

type attemptResult struct {
	result map[string]any
	err    error
	stack  string
}

// Execute runs one attempt of jobID.
//
// Background attempts (manual=false) only run SCHEDULED jobs and return
// (nil, nil) when another node holds the lease or the job is no longer due.
// Manual attempts also accept COMPLETED and FAILED jobs and report contention
// as ErrJobAlreadyRunning. In both modes a worker failure is recorded first and
// then returned together with the finished execution.
func (e *Executor) Execute(ctx context.Context, jobID string, overrides map[string]any, manual bool) (*types.JobExecution, error) {
	if !e.enter(jobID) {
		if manual {
			return nil, fmt.Errorf("%w: %s", custom_errors.ErrJobAlreadyRunning, jobID)
		}
		return nil, nil
	}
	defer e.leave(jobID)

	log := e.logger.With(zap.String("job_id", jobID), zap.String("node_id", e.nodeID))

	job, err := e.jobStore.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if err := e.checkRunnable(job, manual); err != nil {
		if manual {
			return nil, err
		}
		log.Debug("job no longer runnable", zap.String("status", job.Status.String()))
		return nil, nil
	}
	if manual {
		if _, err := e.registry.Resolve(job); err != nil {
			return nil, err
		}
	}

	ttl := e.leaseFor(job)
	acquired, err := e.lock.Acquire(ctx, jobID, e.nodeID, ttl)
	if err != nil {
		log.Error("lease acquisition failed", zap.Error(err))
		return nil, err
	}
	if !acquired {
		log.Debug("lease held by another node")
		if manual {
			return nil, fmt.Errorf("%w: %s", custom_errors.ErrJobAlreadyRunning, jobID)
		}
		return nil, nil
	}

	// Bookkeeping after the lease must complete even if the caller goes away.
	bg := context.WithoutCancel(ctx)
	defer func() {
		if err := e.lock.Release(bg, jobID, e.nodeID); err != nil {
			log.Error("lease release failed", zap.Error(err))
		}
	}()

	startedAt := e.now()
	job, previousStatus, err := e.markRunning(bg, jobID, manual, startedAt, ttl)
	if errors.Is(err, errSkipped) {
		if manual {
			return nil, fmt.Errorf("%w: job %s changed state before it could start", custom_errors.ErrInvalidTransition, jobID)
		}
		return nil, nil
	}
	if err != nil {
		log.Error("failed to mark job running", zap.Error(err))
		return nil, err
	}

	execution := &types.JobExecution{
		ID:         uuid.NewString(),
		JobID:      jobID,
		StartTime:  startedAt,
		Status:     state.StatusRunning,
		Parameters: mergeParameters(job.Parameters, overrides),
		NodeID:     e.nodeID,
	}
	if err := e.executionStore.Insert(bg, execution); err != nil {
		log.Error("failed to record execution start", zap.Error(err))
		e.restore(bg, jobID, previousStatus, log)
		return nil, err
	}

	log = log.With(
		zap.String("job_type", job.JobType),
		zap.String("execution_id", execution.ID),
		zap.Int("attempt", job.RetryCount+1),
	)
	log.Info("job started")

	outcome := e.run(ctx, job, execution.Parameters, ttl, log)

	finishedAt := e.now()
	execution.EndTime = &finishedAt
	execution.ProcessingTimeMs = finishedAt.Sub(startedAt).Milliseconds()
	if outcome.err == nil {
		execution.Status = state.StatusCompleted
		execution.Result = outcome.result
	} else {
		execution.Status = state.StatusFailed
		msg := outcome.err.Error()
		execution.ErrorMessage = &msg
		if outcome.stack != "" {
			execution.ErrorStack = &outcome.stack
		}
	}

	if err := e.executionStore.Finish(bg, execution); err != nil {
		log.Error("failed to record execution end", zap.Error(err))
	}

	final, err := e.applyOutcome(bg, jobID, outcome.err, finishedAt)
	if err != nil {
		log.Error("failed to record job outcome", zap.Error(err))
	} else {
		e.publish(bg, final, execution, log)
	}

	if outcome.err != nil {
		log.Warn("job attempt failed", zap.Error(outcome.err))
		return execution, outcome.err
	}
	log.Info("job completed", zap.Int64("processing_ms", execution.ProcessingTimeMs))
	return execution, nil
}

func (e *Executor) checkRunnable(job *types.Job, manual bool) error {
	if job.Status == state.StatusRunning {
		return fmt.Errorf("%w: %s", custom_errors.ErrJobAlreadyRunning, job.ID)
	}
	if !manual {
		if job.Status != state.StatusScheduled || !job.IsActive {
			return errSkipped
		}
		if job.NextRunTime == nil || job.NextRunTime.After(e.now()) {
			return errSkipped
		}
		return nil
	}
	if !state.IsValidTransition(job.Status, state.StatusRunning) {
		return fmt.Errorf("%w: cannot execute job %s in status %s", custom_errors.ErrInvalidTransition, job.ID, job.Status)
	}
	return nil
}

// markRunning moves the job to RUNNING under optimistic concurrency and
// returns the stored job with the status it had before.
func (e *Executor) markRunning(ctx context.Context, jobID string, manual bool, now time.Time, ttl time.Duration) (*types.Job, state.JobStatus, error) {
	var previous state.JobStatus
	job, err := updateJob(ctx, e.jobStore, jobID, func(job *types.Job) error {
		if err := e.checkRunnable(job, manual); err != nil {
			return errSkipped
		}
		previous = job.Status
		nodeID := e.nodeID
		expires := now.Add(ttl)
		job.Status = state.StatusRunning
		job.LastRunTime = &now
		job.LockID = &nodeID
		job.LockExpiresAt = &expires
		return nil
	})
	return job, previous, err
}

// restore undoes markRunning when the attempt could not be recorded.
func (e *Executor) restore(ctx context.Context, jobID string, previous state.JobStatus, log *zap.Logger) {
	_, err := updateJob(ctx, e.jobStore, jobID, func(job *types.Job) error {
		job.Status = previous
		job.LockID = nil
		job.LockExpiresAt = nil
		return nil
	})
	if err != nil {
		log.Error("failed to restore job status", zap.Error(err))
	}
}

// run resolves the worker and races it against the job's timeout while a
// heartbeat keeps the lease alive.
func (e *Executor) run(ctx context.Context, job *types.Job, params map[string]any, ttl time.Duration, log *zap.Logger) attemptResult {
	worker, err := e.registry.Resolve(job)
	if err != nil {
		return attemptResult{err: err}
	}

	workerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopHeartbeat := e.heartbeat(job.ID, ttl, log)
	defer stopHeartbeat()

	done := make(chan attemptResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- attemptResult{
					err:   fmt.Errorf("worker panicked: %v", r),
					stack: string(debug.Stack()),
				}
			}
		}()
		result, err := worker.Process(workerCtx, job.Clone(), params)
		done <- attemptResult{result: result, err: err}
	}()

	timeout := job.Timeout()
	if timeout <= 0 {
		return <-done
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res
	case <-timer.C:
		// The worker keeps running until it observes workerCtx; anything it
		// does from here on is not recorded.
		log.Warn("job timed out, worker may still be running", zap.Duration("timeout", timeout))
		return attemptResult{err: &custom_errors.JobTimeoutError{JobID: job.ID, Timeout: timeout}}
	}
}

func (e *Executor) heartbeat(jobID string, ttl time.Duration, log *zap.Logger) func() {
	interval := ttl / 3
	if interval <= 0 {
		return func() {}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ok, err := e.lock.Refresh(context.Background(), jobID, e.nodeID, ttl)
				if err != nil {
					log.Error("lease refresh failed", zap.Error(err))
				} else if !ok {
					log.Warn("lease lost while job is running")
				}
			}
		}
	}()

	return func() {
		close(stop)
		wg.Wait()
	}
}

// applyOutcome writes the post-attempt job state: reschedule, retry with
// backoff, or terminate.
func (e *Executor) applyOutcome(ctx context.Context, jobID string, attemptErr error, now time.Time) (*types.Job, error) {
	return updateJob(ctx, e.jobStore, jobID, func(job *types.Job) error {
		job.LockID = nil
		job.LockExpiresAt = nil

		if attemptErr == nil {
			job.RetryCount = 0
			job.LastCompletionTime = &now
			if !job.IsRecurring() {
				job.Status = state.StatusCompleted
				job.NextRunTime = nil
				return nil
			}
			next, err := parser.NextOccurrence(job.CronExpression, now)
			if err != nil {
				job.Status = state.StatusFailed
				job.NextRunTime = nil
				return nil
			}
			job.Status = state.StatusScheduled
			job.NextRunTime = &next
			return nil
		}

		job.RetryCount++
		job.LastFailureTime = &now
		if job.RetryCount <= job.MaxRetries {
			next := now.Add(e.backoff.Delay(job.RetryCount))
			job.Status = state.StatusScheduled
			job.NextRunTime = &next
			return nil
		}
		job.Status = state.StatusFailed
		job.NextRunTime = nil
		return nil
	})
}

func (e *Executor) publish(ctx context.Context, job *types.Job, execution *types.JobExecution, log *zap.Logger) {
	if e.broker == nil {
		return
	}
	event := types.JobEvent{
		JobID:       job.ID,
		JobName:     job.Name,
		JobType:     job.JobType,
		ExecutionID: execution.ID,
		NodeID:      e.nodeID,
		Status:      execution.Status,
		JobStatus:   job.Status,
		RetryCount:  job.RetryCount,
		NextRunTime: job.NextRunTime,
		OccurredAt:  *execution.EndTime,
	}
	if execution.ErrorMessage != nil {
		event.ErrorMessage = *execution.ErrorMessage
	}
	if err := message_broaker.PublishEvent(ctx, e.broker, event); err != nil {
		log.Warn("failed to publish job event", zap.Error(err))
	}
}

// updateJob re-reads jobID and applies mutate until the conditional write
// succeeds or the attempts run out.
func updateJob(ctx context.Context, jobStore store.JobStore, jobID string, mutate func(*types.Job) error) (*types.Job, error) {
	var lastErr error
	for attempt := 0; attempt < constants.UpdateAttempts; attempt++ {
		job, err := jobStore.Get(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if err := mutate(job); err != nil {
			return nil, err
		}
		err = jobStore.AddOrUpdate(ctx, job)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, custom_errors.ErrConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("job %s: giving up after %d attempts: %w", jobID, constants.UpdateAttempts, lastErr)
}

func mergeParameters(base, overrides map[string]any) map[string]any {
	if len(base) == 0 && len(overrides) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
