package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/logging"
	"partsim/internal/partition"
	"partsim/internal/workload"

	"github.com/sirupsen/logrus"
)

const (
	ModeSequential = "sequential"
	ModeParallel   = "parallel"
)

// Batch describes one evaluation request: every workload in Range against
// every algorithm in Algorithms.
type Batch struct {
	Workloads    []*workload.Workload
	Algorithms   []string
	Range        []int
	TotalWays    int
	MaxBandwidth float64
	// Params is copied into every task; WorkloadName and UserAssignment are
	// filled per workload.
	Params partition.Params
	// UserAssignments holds the decoded user partition of workload i at
	// position i, when the user algorithm is requested.
	UserAssignments []allocation.UserAssignment
	ParSim          bool
}

// Row is one rendered (workload, algorithm) result.
type Row struct {
	Key       Key
	Ordinal   int
	Algorithm string
	Solution  *partition.Solution
	// First is set for the first row of the batch.
	First bool
}

// RowSink consumes rows in presentation order.
type RowSink interface {
	Emit(row Row) error
}

// Recorder observes evaluation timings.
type Recorder interface {
	ObserveTask(algorithm string, elapsed time.Duration, err error)
	ObserveBatch(mode string, tasks int, elapsed time.Duration, err error)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTask(string, time.Duration, error)       {}
func (nopRecorder) ObserveBatch(string, int, time.Duration, error) {}

// Dispatcher evaluates batches either in-process, one pair at a time, or by
// fanning every pair out to a Pool.
type Dispatcher struct {
	pool     Pool
	recorder Recorder
	banner   io.Writer
	logger   *logrus.Logger
}

type Option func(*Dispatcher)

// WithRecorder reports task and batch timings to r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) {
		if r != nil {
			d.recorder = r
		}
	}
}

// WithBannerWriter redirects the print_times banners, stderr by default.
func WithBannerWriter(w io.Writer) Option {
	return func(d *Dispatcher) {
		d.banner = w
	}
}

// New creates a dispatcher. pool is only used for ParSim batches and may be
// nil otherwise.
func New(pool Pool, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		pool:     pool,
		recorder: nopRecorder{},
		banner:   os.Stderr,
		logger:   logging.GetDispatchLogger(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Evaluate runs the batch and emits one row per (range entry, algorithm),
// algorithm innermost. The order of rows does not depend on the mode. Any
// failure aborts the batch; in parallel mode no row is emitted then.
func (d *Dispatcher) Evaluate(ctx context.Context, b Batch, sink RowSink) error {
	if _, err := partition.ResolveAll(b.Algorithms); err != nil {
		return err
	}
	for _, idx := range b.Range {
		if idx < 0 || idx >= len(b.Workloads) {
			return fmt.Errorf("%w: workload index %d out of range [0, %d)", config.ErrConfiguration, idx, len(b.Workloads))
		}
	}

	mode := ModeSequential
	if b.ParSim {
		mode = ModeParallel
	}
	start := time.Now()
	tasks, err := d.evaluate(ctx, b, sink)
	elapsed := time.Since(start)
	d.recorder.ObserveBatch(mode, tasks, elapsed, err)

	fields := logrus.Fields{
		"mode":       mode,
		"workloads":  len(b.Range),
		"algorithms": len(b.Algorithms),
		"tasks":      tasks,
		"elapsed":    elapsed,
	}
	if err != nil {
		d.logger.WithFields(fields).WithError(err).Error("Evaluation batch failed")
		return err
	}
	d.logger.WithFields(fields).Info("Evaluation batch completed")
	return nil
}

func (d *Dispatcher) evaluate(ctx context.Context, b Batch, sink RowSink) (int, error) {
	var table *ResultTable
	evaluated := 0
	if b.ParSim {
		if d.pool == nil {
			return 0, fmt.Errorf("parallel evaluation requested without a pool")
		}
		t, n, err := d.gather(ctx, b)
		if err != nil {
			return n, err
		}
		table = t
		evaluated = n
	}

	first := true
	for _, idx := range b.Range {
		wl := b.Workloads[idx]
		for algIdx, name := range b.Algorithms {
			key := Key{Workload: idx, Algorithm: algIdx}
			if b.Params.Options.PrintTimes {
				fmt.Fprintf(d.banner, "********* Workload %s - Algorithm %s ***********\n", wl.Name(), name)
			}

			var sol *partition.Solution
			if table != nil {
				s, ok := table.Get(key)
				if !ok {
					return evaluated, fmt.Errorf("missing result for key %s", key)
				}
				sol = s
			} else {
				if err := ctx.Err(); err != nil {
					return evaluated, err
				}
				s, err := newTask(b, key).Evaluate()
				evaluated++
				if err != nil {
					d.recorder.ObserveTask(name, 0, err)
					return evaluated, err
				}
				d.recorder.ObserveTask(name, s.Elapsed, nil)
				sol = s
			}

			if err := sink.Emit(Row{Key: key, Ordinal: wl.Ordinal, Algorithm: name, Solution: sol, First: first}); err != nil {
				return evaluated, fmt.Errorf("emit %s/%s: %w", wl.Name(), name, err)
			}
			first = false
		}
	}
	return evaluated, nil
}

// gather submits every distinct key of the batch to the pool and waits for
// all of them.
func (d *Dispatcher) gather(ctx context.Context, b Batch) (*ResultTable, int, error) {
	tasks := Tasks(b)
	keys := make([]Key, len(tasks))
	for i, t := range tasks {
		keys[i] = t.Key
	}

	d.logger.WithField("tasks", len(tasks)).Debug("Submitting tasks to pool")
	outcomes, err := d.pool.Gather(ctx, tasks)
	if err != nil {
		var terr *TaskError
		if errors.As(err, &terr) {
			d.recorder.ObserveTask(terr.Algorithm, 0, err)
		}
		return nil, len(tasks), err
	}

	for _, o := range outcomes {
		if o.Err == nil && o.Solution != nil {
			d.recorder.ObserveTask(o.Solution.Algorithm, o.Solution.Elapsed, nil)
		}
	}

	table, err := Aggregate(keys, outcomes)
	if err != nil {
		return nil, len(tasks), err
	}
	return table, len(tasks), nil
}

// Tasks lists the distinct tasks of a batch in presentation order. A
// workload repeated in the range is evaluated once.
func Tasks(b Batch) []Task {
	seen := make(map[int]bool, len(b.Range))
	tasks := make([]Task, 0, len(b.Range)*len(b.Algorithms))
	for _, idx := range b.Range {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		for algIdx := range b.Algorithms {
			tasks = append(tasks, newTask(b, Key{Workload: idx, Algorithm: algIdx}))
		}
	}
	return tasks
}

func newTask(b Batch, key Key) Task {
	wl := b.Workloads[key.Workload]
	params := b.Params
	params.WorkloadName = wl.Name()
	params.UserAssignment = nil
	if key.Workload < len(b.UserAssignments) {
		params.UserAssignment = &b.UserAssignments[key.Workload]
	}
	return Task{
		Key:          key,
		Algorithm:    b.Algorithms[key.Algorithm],
		Workload:     wl,
		TotalWays:    b.TotalWays,
		MaxBandwidth: b.MaxBandwidth,
		Params:       params,
	}
}
