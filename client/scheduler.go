package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zed-io/fineract-sub004/internal/lock"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/internal/store"
	"github.com/zed-io/fineract-sub004/types"
	"github.com/zed-io/fineract-sub004/types/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSchedulerClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// Scheduler polls the store for due jobs and hands them to the Executor.
//
// Local wake-up timers only shorten the wait until the next poll; whether a
// job actually runs is always decided by the store query and the lease.
type Scheduler struct {
	jobStore store.JobStore
	lock     lock.DistributedLockManager
	executor *Executor

	nodeID         string
	pollInterval   time.Duration
	orphanInterval time.Duration
	batchSize      int
	leaseTTL       time.Duration

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	wake   chan struct{}
	logger *zap.Logger
	now    func() time.Time

	timersMu sync.Mutex
	timers   map[string]*time.Timer
}

func NewScheduler(jobStore store.JobStore, lockManager lock.DistributedLockManager, executor *Executor, cfg *config.SchedulerConfig, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		jobStore:       jobStore,
		lock:           lockManager,
		executor:       executor,
		nodeID:         cfg.NodeID,
		pollInterval:   cfg.PollInterval,
		orphanInterval: cfg.OrphanCheckInterval,
		batchSize:      cfg.BatchSize,
		leaseTTL:       cfg.LeaseTTL,
		sem:            semaphore.NewWeighted(int64(cfg.WorkerCount)),
		wake:           make(chan struct{}, 1),
		logger:         zap.NewNop(),
		now:            time.Now,
		timers:         make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start recovers this node's interrupted jobs and then polls until ctx is
// cancelled. It waits for in-flight executions before returning.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.Recover(ctx); err != nil {
		s.logger.Error("crash recovery failed", zap.Error(err))
	}

	pollTicker := time.NewTicker(s.pollInterval)
	defer pollTicker.Stop()

	orphanTicker := time.NewTicker(s.orphanInterval)
	defer orphanTicker.Stop()

	s.logger.Info("scheduler started",
		zap.String("node_id", s.nodeID),
		zap.Duration("poll_interval", s.pollInterval),
	)

	s.pollAndLog(ctx)
	for {
		select {
		case <-ctx.Done():
			s.disarmAll()
			s.wg.Wait()
			s.logger.Info("scheduler stopped", zap.String("node_id", s.nodeID))
			return ctx.Err()
		case <-pollTicker.C:
			s.pollAndLog(ctx)
		case <-s.wake:
			s.pollAndLog(ctx)
		case <-orphanTicker.C:
			if err := s.ReapOrphans(ctx); err != nil {
				s.logger.Error("orphan check failed", zap.Error(err))
			}
		}
	}
}

// Wait blocks until every execution started by Poll has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) pollAndLog(ctx context.Context) {
	if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("poll failed", zap.Error(err))
	}
}

// Poll dispatches every due job to the Executor, bounded by the worker count,
// and returns how many attempts were started.
func (s *Scheduler) Poll(ctx context.Context) (int, error) {
	jobs, err := s.jobStore.FetchDueJobs(ctx, s.now(), s.batchSize)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, job := range jobs {
		if s.executor.InFlight(job.ID) {
			continue
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			return dispatched, err
		}
		s.wg.Add(1)
		dispatched++

		// Stopping the scheduler ends polling, not attempts already started;
		// only the job's own timeout cancels its worker.
		runCtx := context.WithoutCancel(ctx)
		go func(jobID string) {
			defer s.wg.Done()
			defer s.sem.Release(1)

			if _, err := s.executor.Execute(runCtx, jobID, nil, false); err != nil {
				s.logger.Warn("background execution failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}(job.ID)
	}

	if dispatched > 0 {
		s.logger.Debug("dispatched due jobs", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

// Recover resets jobs this node left RUNNING before an unclean restart and
// drops their leases.
func (s *Scheduler) Recover(ctx context.Context) error {
	jobs, err := s.jobStore.FindRunningByNode(ctx, s.nodeID)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if s.executor.InFlight(job.ID) {
			continue
		}
		_, resetErr := updateJob(ctx, s.jobStore, job.ID, func(j *types.Job) error {
			if j.Status != state.StatusRunning || j.LockID == nil || *j.LockID != s.nodeID {
				return errSkipped
			}
			resetToScheduled(j)
			return nil
		})
		if errors.Is(resetErr, errSkipped) {
			continue
		}
		if resetErr != nil {
			s.logger.Error("failed to recover job", zap.String("job_id", job.ID), zap.Error(resetErr))
			continue
		}
		if releaseErr := s.lock.Release(ctx, job.ID, s.nodeID); releaseErr != nil {
			s.logger.Error("failed to release recovered lease", zap.String("job_id", job.ID), zap.Error(releaseErr))
		}
		s.logger.Info("recovered interrupted job", zap.String("job_id", job.ID))
	}
	return nil
}

// ReapOrphans resets RUNNING jobs whose owner's lease has expired, whichever
// node owned them. Taking the lease first makes sure no live owner exists.
func (s *Scheduler) ReapOrphans(ctx context.Context) error {
	jobs, err := s.jobStore.List(ctx, types.JobFilter{Status: state.StatusRunning, IncludeInactive: true})
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if s.executor.InFlight(job.ID) {
			continue
		}
		acquired, err := s.lock.Acquire(ctx, job.ID, s.nodeID, s.leaseTTL)
		if err != nil {
			s.logger.Error("orphan lease check failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if !acquired {
			continue
		}

		_, err = updateJob(ctx, s.jobStore, job.ID, func(j *types.Job) error {
			if j.Status != state.StatusRunning {
				return errSkipped
			}
			resetToScheduled(j)
			return nil
		})
		switch {
		case err == nil:
			s.logger.Warn("reset orphaned job", zap.String("job_id", job.ID))
		case !errors.Is(err, errSkipped):
			s.logger.Error("failed to reset orphaned job", zap.String("job_id", job.ID), zap.Error(err))
		}

		if err := s.lock.Release(ctx, job.ID, s.nodeID); err != nil {
			s.logger.Error("failed to release orphan lease", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	return nil
}

func resetToScheduled(j *types.Job) {
	j.Status = state.StatusScheduled
	j.LockID = nil
	j.LockExpiresAt = nil
}

// Arm sets a local wake-up at the job's next run time, replacing any earlier
// timer for the same job.
func (s *Scheduler) Arm(job *types.Job) {
	if job.NextRunTime == nil || job.Status != state.StatusScheduled || !job.IsActive {
		s.Disarm(job.ID)
		return
	}

	delay := job.NextRunTime.Sub(s.now())
	if delay <= 0 {
		s.Disarm(job.ID)
		s.trigger()
		return
	}

	jobID := job.ID
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.timersMu.Lock()
		if s.timers[jobID] == timer {
			delete(s.timers, jobID)
		}
		s.timersMu.Unlock()
		s.trigger()
	})
	s.timers[jobID] = timer
}

func (s *Scheduler) Disarm(jobID string) {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	if t, ok := s.timers[jobID]; ok {
		t.Stop()
		delete(s.timers, jobID)
	}
}

// Armed reports whether a local wake-up is pending for jobID.
func (s *Scheduler) Armed(jobID string) bool {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()
	_, ok := s.timers[jobID]
	return ok
}

func (s *Scheduler) disarmAll() {
	s.timersMu.Lock()
	defer s.timersMu.Unlock()

	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) trigger() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}
