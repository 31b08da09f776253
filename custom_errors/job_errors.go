package custom_errors

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrWorkerNotFound        = errors.New("worker not found")
	ErrJobNotFound           = errors.New("job not found")
	ErrJobAlreadyRunning     = errors.New("job already running")
	ErrConflict              = errors.New("version conflict")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrInvalidCronExpression = errors.New("invalid cron expression")
	ErrJobTimeout            = errors.New("job timed out")
)

// JobTimeoutError is the outcome of an attempt that outlived its timeout.
type JobTimeoutError struct {
	JobID   string
	Timeout time.Duration
}

func (e *JobTimeoutError) Error() string {
	return fmt.Sprintf("job %s exceeded timeout of %s", e.JobID, e.Timeout)
}

func (e *JobTimeoutError) Is(target error) bool {
	return target == ErrJobTimeout
}
