package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"partsim/internal/dispatch"
	"partsim/internal/logging"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
)

// NATSPool fans tasks out as NATS requests to a queue group of workers.
type NATSPool struct {
	nc       *nats.Conn
	subject  string
	timeout  time.Duration
	inflight int
	logger   *logrus.Logger
}

var _ dispatch.Pool = (*NATSPool)(nil)

// NewNATSPool sends requests on subject. timeout bounds each request;
// inflight bounds concurrent requests, 0 meaning all at once.
func NewNATSPool(nc *nats.Conn, subject string, timeout time.Duration, inflight int) *NATSPool {
	return &NATSPool{
		nc:       nc,
		subject:  subject,
		timeout:  timeout,
		inflight: inflight,
		logger:   logging.GetDispatchLogger(),
	}
}

func (p *NATSPool) Gather(ctx context.Context, tasks []dispatch.Task) ([]dispatch.Outcome, error) {
	cp := pool.NewWithResults[dispatch.Outcome]().
		WithContext(ctx).
		WithFirstError().
		WithCancelOnError()
	if p.inflight > 0 {
		cp = cp.WithMaxGoroutines(p.inflight)
	}

	for _, task := range tasks {
		task := task
		cp.Go(func(ctx context.Context) (dispatch.Outcome, error) {
			return p.request(ctx, task)
		})
	}
	return cp.Wait()
}

func (p *NATSPool) request(ctx context.Context, task dispatch.Task) (dispatch.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return dispatch.Outcome{}, err
	}
	fail := func(err error) (dispatch.Outcome, error) {
		return dispatch.Outcome{}, &dispatch.TaskError{
			Key:       task.Key,
			Algorithm: task.Algorithm,
			Workload:  task.Params.WorkloadName,
			Err:       err,
		}
	}

	data, err := json.Marshal(newTaskRequest(task))
	if err != nil {
		return fail(fmt.Errorf("encode request: %w", err))
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	msg, err := p.nc.RequestWithContext(ctx, p.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return fail(fmt.Errorf("no workers listening on %s: %w", p.subject, err))
		}
		return fail(fmt.Errorf("request on %s: %w", p.subject, err))
	}

	var reply TaskReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return fail(fmt.Errorf("decode reply: %w", err))
	}
	if reply.Key != task.Key {
		return fail(fmt.Errorf("reply for %s received for task %s", reply.Key, task.Key))
	}
	if reply.Error != "" {
		return fail(&WorkerError{Message: reply.Error})
	}

	p.logger.WithFields(logrus.Fields{
		"key":       task.Key.String(),
		"algorithm": task.Algorithm,
	}).Trace("Remote task completed")
	return dispatch.Outcome{Key: task.Key, Solution: reply.Solution}, nil
}

// WorkerError is a task failure reported by a remote worker.
type WorkerError struct {
	Message string
}

func (e *WorkerError) Error() string {
	return "worker: " + e.Message
}
