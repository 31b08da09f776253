package mocks

import (
	"context"

	"github.com/zed-io/fineract-sub004/types"
)

// MockJobExecutionStore is a mock implementation of store.JobExecutionStore for testing.
type MockJobExecutionStore struct {
	InsertFunc  func(ctx context.Context, execution *types.JobExecution) error
	FinishFunc  func(ctx context.Context, execution *types.JobExecution) error
	HistoryFunc func(ctx context.Context, jobID string, limit int) ([]types.JobExecution, error)
}

func (m *MockJobExecutionStore) Insert(ctx context.Context, execution *types.JobExecution) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, execution)
	}
	return nil
}

func (m *MockJobExecutionStore) Finish(ctx context.Context, execution *types.JobExecution) error {
	if m.FinishFunc != nil {
		return m.FinishFunc(ctx, execution)
	}
	return nil
}

func (m *MockJobExecutionStore) History(ctx context.Context, jobID string, limit int) ([]types.JobExecution, error) {
	if m.HistoryFunc != nil {
		return m.HistoryFunc(ctx, jobID, limit)
	}
	return []types.JobExecution{}, nil
}
