package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/zed-io/fineract-sub004/custom_errors"
	"github.com/zed-io/fineract-sub004/types"
)

// WorkerRegistry maps a job type to the workers registered for it.
type WorkerRegistry struct {
	workers map[string][]types.Worker
	mutex   sync.RWMutex
}

func NewWorkerRegistry() *WorkerRegistry {
	return &WorkerRegistry{
		workers: make(map[string][]types.Worker),
	}
}

// Register adds a worker under its job type.
func (r *WorkerRegistry) Register(w types.Worker) error {
	if w == nil || w.JobType() == "" {
		return fmt.Errorf("worker must have a job type")
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.workers[w.JobType()] = append(r.workers[w.JobType()], w)
	return nil
}

func (r *WorkerRegistry) Exists(jobType string) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.workers[jobType]) > 0
}

// Resolve returns the worker for a job: the first registered worker of the
// job's type whose CanHandle claims it, otherwise the only worker registered
// for that type.
func (r *WorkerRegistry) Resolve(job *types.Job) (types.Worker, error) {
	r.mutex.RLock()
	candidates := r.workers[job.JobType]
	r.mutex.RUnlock()

	for _, w := range candidates {
		if w.CanHandle(job) {
			return w, nil
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	return nil, fmt.Errorf("%w: job type '%s' (job '%s')", custom_errors.ErrWorkerNotFound, job.JobType, job.Name)
}

func (r *WorkerRegistry) JobTypes() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	names := make([]string, 0, len(r.workers))
	for name := range r.workers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
