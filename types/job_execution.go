package types

import (
	"time"

	"github.com/zed-io/fineract-sub004/internal/state"
)

// JobExecution is the audit record of a single attempt. It is immutable once
// EndTime is set.
type JobExecution struct {
	ID               string
	JobID            string
	StartTime        time.Time
	EndTime          *time.Time
	Status           state.JobStatus
	ErrorMessage     *string
	ErrorStack       *string
	Parameters       map[string]any
	Result           map[string]any
	ProcessingTimeMs int64
	NodeID           string
}

// IsFinished reports whether the attempt has been finalized.
func (e *JobExecution) IsFinished() bool {
	return e.EndTime != nil
}

// JobEvent is published to the message broker after every finished attempt.
type JobEvent struct {
	JobID        string          `json:"job_id"`
	JobName      string          `json:"job_name"`
	JobType      string          `json:"job_type"`
	ExecutionID  string          `json:"execution_id"`
	NodeID       string          `json:"node_id"`
	Status       state.JobStatus `json:"status"`
	JobStatus    state.JobStatus `json:"job_status"`
	RetryCount   int             `json:"retry_count"`
	NextRunTime  *time.Time      `json:"next_run_time,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// RoutingKey returns the broker routing key for the event.
func (e JobEvent) RoutingKey() string {
	switch {
	case e.Status == state.StatusCompleted:
		return "job.completed"
	case e.JobStatus == state.StatusScheduled:
		return "job.retrying"
	default:
		return "job.failed"
	}
}
