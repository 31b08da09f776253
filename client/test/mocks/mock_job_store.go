package mocks

import (
	"context"
	"time"

	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/types"
)

// MockJobStore is a mock implementation of store.JobStore for testing.
type MockJobStore struct {
	GetFunc                         func(ctx context.Context, jobID string) (*types.Job, error)
	ListFunc                        func(ctx context.Context, filter types.JobFilter) ([]types.Job, error)
	AddOrUpdateFunc                 func(ctx context.Context, job *types.Job) error
	FetchDueJobsFunc                func(ctx context.Context, now time.Time, limit int) ([]types.Job, error)
	FindRunningByNodeFunc           func(ctx context.Context, nodeID string) ([]types.Job, error)
	CountAllJobsGroupedByStatusFunc func(ctx context.Context) (map[state.JobStatus]int, error)
	CloseFunc                       func() error
}

func (m *MockJobStore) Get(ctx context.Context, jobID string) (*types.Job, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, jobID)
	}
	return &types.Job{ID: jobID}, nil
}

func (m *MockJobStore) List(ctx context.Context, filter types.JobFilter) ([]types.Job, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	return []types.Job{}, nil
}

func (m *MockJobStore) AddOrUpdate(ctx context.Context, job *types.Job) error {
	if m.AddOrUpdateFunc != nil {
		return m.AddOrUpdateFunc(ctx, job)
	}
	job.Version++
	return nil
}

func (m *MockJobStore) FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error) {
	if m.FetchDueJobsFunc != nil {
		return m.FetchDueJobsFunc(ctx, now, limit)
	}
	return []types.Job{}, nil
}

func (m *MockJobStore) FindRunningByNode(ctx context.Context, nodeID string) ([]types.Job, error) {
	if m.FindRunningByNodeFunc != nil {
		return m.FindRunningByNodeFunc(ctx, nodeID)
	}
	return []types.Job{}, nil
}

func (m *MockJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	if m.CountAllJobsGroupedByStatusFunc != nil {
		return m.CountAllJobsGroupedByStatusFunc(ctx)
	}
	return map[state.JobStatus]int{}, nil
}

func (m *MockJobStore) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}
