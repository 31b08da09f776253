package config

import (
	"time"

	"github.com/zed-io/fineract-sub004/internal/constants"
)

const (
	DefaultPollInterval        = 5 * time.Second
	DefaultWorkerCount         = 10
	DefaultBatchSize           = 100
	DefaultLeaseTTL            = 60 * time.Second
	DefaultOrphanCheckInterval = time.Minute
	DefaultStorageDriver       = Postgres
	DefaultLockDriver          = PostgresLock
	DefaultEventsQueue         = "job_events"
	DefaultEventsExchange      = "job.events"
)

var (
	DefaultTimeoutSeconds = constants.DefaultTimeoutSeconds
	DefaultMaxRetries     = constants.DefaultMaxRetries
	DefaultMaxBackoff     = constants.MaxRetryBackoff
)
