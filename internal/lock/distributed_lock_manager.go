package lock

import (
	"context"
	"time"
)

// DistributedLockManager hands out expiring, per-job leases shared by every node.
//
// Acquire succeeds only when no live lease exists for jobID; contention is
// reported as false, never as an error. Release is a no-op unless nodeID still
// owns the lease. Refresh extends a lease that nodeID still owns and reports
// false when it was lost.
type DistributedLockManager interface {
	Acquire(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, jobID, nodeID string) error
	Refresh(ctx context.Context, jobID, nodeID string, ttl time.Duration) (bool, error)
}

// AdvisoryLock serializes node-wide maintenance such as schema bootstrap.
type AdvisoryLock interface {
	Acquire(ctx context.Context, lockID int) error
	Release(ctx context.Context, lockID int) error
}
