// Package memory keeps jobs, executions and leases in process memory. It
// honours the same version and lease contracts as the Postgres backend, which
// makes it suitable for single-node deployments and for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/types"
)

type Clock func() time.Time

type Option func(*Store)

// WithClock replaces time.Now for lease expiry and timestamps.
func WithClock(clock Clock) Option {
	return func(s *Store) {
		s.now = clock
	}
}

type Store struct {
	mu         sync.RWMutex
	jobs       map[string]*types.Job
	executions map[string][]*types.JobExecution
	locks      map[string]types.JobLock
	now        Clock
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		jobs:       make(map[string]*types.Job),
		executions: make(map[string][]*types.JobExecution),
		locks:      make(map[string]types.JobLock),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Get(_ context.Context, jobID string) (*types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", custom_errors.ErrJobNotFound, jobID)
	}
	return job.Clone(), nil
}

func (s *Store) List(_ context.Context, filter types.JobFilter) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []types.Job
	for _, job := range s.jobs {
		if filter.Matches(job) {
			jobs = append(jobs, *job.Clone())
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID < jobs[j].ID
		}
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (s *Store) AddOrUpdate(_ context.Context, job *types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	stored, exists := s.jobs[job.ID]

	if job.Version == 0 {
		if exists {
			return fmt.Errorf("%w: job %s already exists", custom_errors.ErrConflict, job.ID)
		}
		job.Version = 1
		job.CreatedAt = now
		job.UpdatedAt = now
		s.jobs[job.ID] = job.Clone()
		return nil
	}

	if !exists || stored.Version != job.Version {
		return fmt.Errorf("%w: job %s at version %d", custom_errors.ErrConflict, job.ID, job.Version)
	}
	job.Version++
	job.CreatedAt = stored.CreatedAt
	job.UpdatedAt = now
	s.jobs[job.ID] = job.Clone()
	return nil
}

func (s *Store) FetchDueJobs(_ context.Context, now time.Time, limit int) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var due []types.Job
	for _, job := range s.jobs {
		if job.Status != state.StatusScheduled || !job.IsActive {
			continue
		}
		if job.NextRunTime == nil || job.NextRunTime.After(now) {
			continue
		}
		if l, locked := s.locks[job.ID]; locked && l.IsLive(now) {
			continue
		}
		due = append(due, *job.Clone())
	}

	sort.Slice(due, func(i, j int) bool {
		if due[i].Priority != due[j].Priority {
			return due[i].Priority > due[j].Priority
		}
		return due[i].NextRunTime.Before(*due[j].NextRunTime)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *Store) FindRunningByNode(_ context.Context, nodeID string) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var jobs []types.Job
	for _, job := range s.jobs {
		if job.Status == state.StatusRunning && job.LockID != nil && *job.LockID == nodeID {
			jobs = append(jobs, *job.Clone())
		}
	}
	return jobs, nil
}

func (s *Store) CountAllJobsGroupedByStatus(_ context.Context) (map[state.JobStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[state.JobStatus]int, len(state.AllStatuses))
	for _, status := range state.AllStatuses {
		result[status] = 0
	}
	for _, job := range s.jobs {
		result[job.Status]++
	}
	return result, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) Insert(_ context.Context, execution *types.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := cloneExecution(execution)
	s.executions[execution.JobID] = append(s.executions[execution.JobID], c)
	return nil
}

func (s *Store) Finish(_ context.Context, execution *types.JobExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stored := range s.executions[execution.JobID] {
		if stored.ID != execution.ID {
			continue
		}
		if stored.IsFinished() {
			return nil
		}
		*stored = *cloneExecution(execution)
		return nil
	}
	return fmt.Errorf("execution %s of job %s not found", execution.ID, execution.JobID)
}

func (s *Store) History(_ context.Context, jobID string, limit int) ([]types.JobExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.executions[jobID]
	history := make([]types.JobExecution, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		history = append(history, *cloneExecution(stored[i]))
	}
	sort.SliceStable(history, func(i, j int) bool {
		return history[i].StartTime.After(history[j].StartTime)
	})
	if limit > 0 && len(history) > limit {
		history = history[:limit]
	}
	return history, nil
}

func (s *Store) Acquire(_ context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if l, ok := s.locks[jobID]; ok && l.IsLive(now) {
		return false, nil
	}
	s.locks[jobID] = types.JobLock{
		JobID:     jobID,
		NodeID:    nodeID,
		LockedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	return true, nil
}

func (s *Store) Release(_ context.Context, jobID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.locks[jobID]; ok && l.NodeID == nodeID {
		delete(s.locks, jobID)
	}
	return nil
}

func (s *Store) Refresh(_ context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.locks[jobID]
	if !ok || l.NodeID != nodeID || !l.IsLive(now) {
		return false, nil
	}
	l.ExpiresAt = now.Add(ttl)
	s.locks[jobID] = l
	return true, nil
}

// Lease returns the current lease row for jobID, live or expired.
func (s *Store) Lease(jobID string) (types.JobLock, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.locks[jobID]
	return l, ok
}

func cloneExecution(e *types.JobExecution) *types.JobExecution {
	c := *e
	c.Parameters = cloneMap(e.Parameters)
	c.Result = cloneMap(e.Result)
	if e.EndTime != nil {
		end := *e.EndTime
		c.EndTime = &end
	}
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
