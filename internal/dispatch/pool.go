package dispatch

import (
	"context"
	"fmt"

	"partsim/internal/partition"
	"partsim/internal/workload"

	"github.com/sourcegraph/conc/pool"
)

// Task is one (workload, algorithm) evaluation. Tasks only read their inputs.
type Task struct {
	Key          Key
	Algorithm    string
	Workload     *workload.Workload
	TotalWays    int
	MaxBandwidth float64
	Params       partition.Params
}

// Evaluate runs the task in the calling goroutine.
func (t Task) Evaluate() (*partition.Solution, error) {
	sol, err := partition.Apply(t.Algorithm, t.Workload, t.TotalWays, t.MaxBandwidth, t.Params)
	if err != nil {
		return nil, &TaskError{Key: t.Key, Algorithm: t.Algorithm, Workload: t.Params.WorkloadName, Err: err}
	}
	return sol, nil
}

// Outcome is the attributed result of a task.
type Outcome struct {
	Key      Key
	Solution *partition.Solution
	Err      error
}

// Pool executes a set of tasks and returns once every task has finished or
// the batch has failed. Outcomes may be returned in any order.
type Pool interface {
	Gather(ctx context.Context, tasks []Task) ([]Outcome, error)
}

// TaskError attributes a failure to the task that produced it.
type TaskError struct {
	Key       Key
	Algorithm string
	Workload  string
	Err       error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s (workload %s, algorithm %s): %v", e.Key, e.Workload, e.Algorithm, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// LocalPool evaluates tasks on goroutines of the current process.
type LocalPool struct {
	workers int
}

// NewLocalPool bounds concurrency to workers; 0 runs every task at once.
func NewLocalPool(workers int) *LocalPool {
	return &LocalPool{workers: workers}
}

func (p *LocalPool) Gather(ctx context.Context, tasks []Task) ([]Outcome, error) {
	cp := pool.NewWithResults[Outcome]().
		WithContext(ctx).
		WithFirstError().
		WithCancelOnError()
	if p.workers > 0 {
		cp = cp.WithMaxGoroutines(p.workers)
	}

	for _, task := range tasks {
		task := task
		cp.Go(func(ctx context.Context) (Outcome, error) {
			if err := ctx.Err(); err != nil {
				return Outcome{}, err
			}
			sol, err := task.Evaluate()
			if err != nil {
				return Outcome{}, err
			}
			return Outcome{Key: task.Key, Solution: sol}, nil
		})
	}
	return cp.Wait()
}
