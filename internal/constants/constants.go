package constants

import "time"

// Postgres advisory lock ids.
const (
	MigrationLock = iota + 1
)

const (
	DefaultMaxRetries     = 3
	DefaultTimeoutSeconds = 300

	// RetryBackoffBase is the base of the retry delay: base^retryCount seconds.
	RetryBackoffBase = 5
	MaxRetryBackoff  = time.Hour

	// LeaseGrace is added on top of a job's timeout when sizing its lease.
	LeaseGrace = 10 * time.Second

	// UpdateAttempts bounds the re-read/retry loop on version conflicts.
	UpdateAttempts = 5
)
