package types

import "context"

// Worker implements the business logic for exactly one job type.
//
// Process receives a context that is cancelled when the attempt times out.
// Work that ignores the context keeps running after the engine has already
// recorded the timeout.
type Worker interface {
	JobType() string
	CanHandle(job *Job) bool
	Process(ctx context.Context, job *Job, parameters map[string]any) (map[string]any, error)
}

// ProcessFunc is the function shape wrapped by FuncWorker.
type ProcessFunc func(ctx context.Context, job *Job, parameters map[string]any) (map[string]any, error)

// FuncWorker adapts a plain function into a Worker. When Names is non-empty
// the worker only claims jobs with one of those names.
type FuncWorker struct {
	Type  string
	Names []string
	Func  ProcessFunc
}

func NewFuncWorker(jobType string, fn ProcessFunc, names ...string) *FuncWorker {
	return &FuncWorker{Type: jobType, Names: names, Func: fn}
}

func (w *FuncWorker) JobType() string { return w.Type }

func (w *FuncWorker) CanHandle(job *Job) bool {
	if job.JobType != w.Type {
		return false
	}
	if len(w.Names) == 0 {
		return true
	}
	for _, n := range w.Names {
		if n == job.Name {
			return true
		}
	}
	return false
}

func (w *FuncWorker) Process(ctx context.Context, job *Job, parameters map[string]any) (map[string]any, error) {
	return w.Func(ctx, job, parameters)
}
