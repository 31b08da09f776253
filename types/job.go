package types

import (
	"time"

	"github.com/zed-io/fineract-sub004/internal/state"
)

// Job is a unit of recurring (cron) or one-shot background work.
type Job struct {
	ID             string
	Name           string
	JobType        string
	CronExpression string // empty for one-shot jobs
	Status         state.JobStatus
	Priority       int
	Parameters     map[string]any

	NextRunTime        *time.Time
	LastRunTime        *time.Time
	LastCompletionTime *time.Time
	LastFailureTime    *time.Time

	IsActive       bool
	RetryCount     int
	MaxRetries     int
	TimeoutSeconds int

	// LockID and LockExpiresAt mirror the lease held while the job is RUNNING.
	LockID        *string
	LockExpiresAt *time.Time

	Version   int64
	TenantID  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsRecurring reports whether the job carries a cron expression.
func (j *Job) IsRecurring() bool {
	return j.CronExpression != ""
}

// Timeout returns the per-attempt deadline.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (j *Job) Clone() *Job {
	c := *j
	if j.Parameters != nil {
		c.Parameters = make(map[string]any, len(j.Parameters))
		for k, v := range j.Parameters {
			c.Parameters[k] = v
		}
	}
	c.NextRunTime = cloneTime(j.NextRunTime)
	c.LastRunTime = cloneTime(j.LastRunTime)
	c.LastCompletionTime = cloneTime(j.LastCompletionTime)
	c.LastFailureTime = cloneTime(j.LastFailureTime)
	c.LockExpiresAt = cloneTime(j.LockExpiresAt)
	if j.LockID != nil {
		id := *j.LockID
		c.LockID = &id
	}
	if j.TenantID != nil {
		t := *j.TenantID
		c.TenantID = &t
	}
	return &c
}

// JobFilter narrows ListJobs. Zero values mean "any".
type JobFilter struct {
	JobType         string
	Status          state.JobStatus
	TenantID        string
	IncludeInactive bool
}

// Matches applies the filter to a job in memory.
func (f JobFilter) Matches(j *Job) bool {
	if !f.IncludeInactive && !j.IsActive {
		return false
	}
	if f.JobType != "" && j.JobType != f.JobType {
		return false
	}
	if f.Status != "" && j.Status != f.Status {
		return false
	}
	if f.TenantID != "" && (j.TenantID == nil || *j.TenantID != f.TenantID) {
		return false
	}
	return true
}

// JobLock is one lease row: at most one live row exists per JobID.
type JobLock struct {
	JobID     string
	NodeID    string
	LockedAt  time.Time
	ExpiresAt time.Time
}

// IsLive reports whether the lease still excludes other nodes at now.
func (l JobLock) IsLive(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
