package state

type JobStatus string

const (
	StatusScheduled JobStatus = "SCHEDULED"
	StatusRunning   JobStatus = "RUNNING"
	StatusCompleted JobStatus = "COMPLETED"
	StatusFailed    JobStatus = "FAILED"
	StatusPaused    JobStatus = "PAUSED"
	StatusCancelled JobStatus = "CANCELLED"
)

func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further execution is planned for the status.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

var AllStatuses = []JobStatus{
	StatusScheduled,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusPaused,
	StatusCancelled,
}

type Transition struct {
	From JobStatus
	To   JobStatus
}

var ValidTransitions = []Transition{
	{From: StatusScheduled, To: StatusRunning},
	{From: StatusRunning, To: StatusCompleted},
	{From: StatusRunning, To: StatusScheduled},
	{From: StatusRunning, To: StatusFailed},
	{From: StatusScheduled, To: StatusPaused},
	{From: StatusPaused, To: StatusScheduled},
	{From: StatusScheduled, To: StatusCancelled},
	// manual re-execution of a finished job
	{From: StatusCompleted, To: StatusRunning},
	{From: StatusFailed, To: StatusRunning},
}

func IsValidTransition(from, to JobStatus) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
