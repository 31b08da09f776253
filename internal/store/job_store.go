package store

import (
	"context"
	"time"

	"github.com/zed-io/fineract-sub004/internal/state"
	"github.com/zed-io/fineract-sub004/types"
)

// JobStore defines durable storage for Job records.
//
// Every write that changes a job goes through AddOrUpdate, which is a
// conditional write on Version.
type JobStore interface {
	// Get returns the job with the given id or custom_errors.ErrJobNotFound.
	Get(ctx context.Context, jobID string) (*types.Job, error)

	// List returns the jobs matching the filter ordered by creation time.
	List(ctx context.Context, filter types.JobFilter) ([]types.Job, error)

	// AddOrUpdate inserts the job when job.Version is 0, otherwise updates it
	// only if the stored version still equals job.Version. On success
	// job.Version holds the new version. A stale version, or inserting an id
	// that already exists, fails with custom_errors.ErrConflict and leaves the
	// stored row unchanged.
	AddOrUpdate(ctx context.Context, job *types.Job) error

	// FetchDueJobs returns active SCHEDULED jobs with NextRunTime <= now that
	// hold no live lease, highest priority first, at most limit rows.
	FetchDueJobs(ctx context.Context, now time.Time, limit int) ([]types.Job, error)

	// FindRunningByNode returns RUNNING jobs whose recorded lease holder is nodeID.
	FindRunningByNode(ctx context.Context, nodeID string) ([]types.Job, error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)

	// Close closes the database
	Close() error
}

// JobExecutionStore holds the append-only attempt history.
type JobExecutionStore interface {
	// Insert records the start of an attempt.
	Insert(ctx context.Context, execution *types.JobExecution) error

	// Finish stores the outcome of an attempt. Executions that already carry
	// an end time are left untouched.
	Finish(ctx context.Context, execution *types.JobExecution) error

	// History returns at most limit executions of a job, newest StartTime first.
	History(ctx context.Context, jobID string, limit int) ([]types.JobExecution, error)
}
