package remote

import (
	"context"
	"encoding/json"
	"fmt"

	"partsim/internal/logging"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// DefaultQueueGroup load-balances requests among workers.
const DefaultQueueGroup = "partsim-workers"

// Worker answers task requests by evaluating them in-process.
type Worker struct {
	nc      *nats.Conn
	subject string
	queue   string
	sub     *nats.Subscription
	logger  *logrus.Logger
}

func NewWorker(nc *nats.Conn, subject string) *Worker {
	return &Worker{
		nc:      nc,
		subject: subject,
		queue:   DefaultQueueGroup,
		logger:  logging.GetDispatchLogger(),
	}
}

// Start subscribes to the task subject.
func (w *Worker) Start() error {
	sub, err := w.nc.QueueSubscribe(w.subject, w.queue, w.handle)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", w.subject, err)
	}
	// Make sure the subscription is known to the server before returning.
	if err := w.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flush subscription: %w", err)
	}
	w.sub = sub
	w.logger.WithFields(logrus.Fields{
		"subject": w.subject,
		"queue":   w.queue,
	}).Info("Worker listening for tasks")
	return nil
}

// Serve runs the worker until ctx is done.
func (w *Worker) Serve(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// Stop drains in-flight requests and unsubscribes.
func (w *Worker) Stop() error {
	if w.sub == nil {
		return nil
	}
	err := w.sub.Drain()
	w.sub = nil
	return err
}

func (w *Worker) handle(msg *nats.Msg) {
	var req TaskRequest
	var reply TaskReply
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply.Error = fmt.Sprintf("decode request: %v", err)
	} else {
		reply.Key = req.Key
		sol, err := req.task().Evaluate()
		if err != nil {
			reply.Error = err.Error()
		} else {
			reply.Solution = sol
		}
	}

	fields := logrus.Fields{
		"key":       req.Key.String(),
		"algorithm": req.Algorithm,
		"workload":  req.WorkloadName,
	}
	if reply.Error != "" {
		w.logger.WithFields(fields).WithField("error", reply.Error).Warn("Task failed")
	} else {
		w.logger.WithFields(fields).Debug("Task evaluated")
	}

	data, err := json.Marshal(reply)
	if err != nil {
		w.logger.WithFields(fields).WithError(err).Error("Failed to encode reply")
		return
	}
	if err := msg.Respond(data); err != nil {
		w.logger.WithFields(fields).WithError(err).Error("Failed to send reply")
	}
}
