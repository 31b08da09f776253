package mocks

import (
	"context"
	"sync"
	"time"
)

// MockDistributedLockManager is a mock implementation of lock.DistributedLockManager for testing.
// Without AcquireFunc every Acquire succeeds.
type MockDistributedLockManager struct {
	AcquireFunc func(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error)
	ReleaseFunc func(ctx context.Context, jobID, nodeID string) error
	RefreshFunc func(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error)

	mu       sync.Mutex
	Released []string
}

func (m *MockDistributedLockManager) Acquire(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	if m.AcquireFunc != nil {
		return m.AcquireFunc(ctx, jobID, nodeID, ttl)
	}
	return true, nil
}

func (m *MockDistributedLockManager) Release(ctx context.Context, jobID, nodeID string) error {
	m.mu.Lock()
	m.Released = append(m.Released, jobID)
	m.mu.Unlock()

	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, jobID, nodeID)
	}
	return nil
}

func (m *MockDistributedLockManager) Refresh(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error) {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx, jobID, nodeID, ttl)
	}
	return true, nil
}

func (m *MockDistributedLockManager) ReleaseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Released)
}
