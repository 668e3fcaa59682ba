package metrics

import (
	"fmt"
	"sync"
	"time"

	"partsim/internal/dispatch"

	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "partsim"

// PrometheusRecorder reports evaluation timings as Prometheus metrics. It
// satisfies dispatch.Recorder.
type PrometheusRecorder struct {
	reg       *prometheus.Registry
	namespace string
	once      sync.Once

	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	batchesTotal  *prometheus.CounterVec
	batchDuration *prometheus.HistogramVec
	batchTasks    prometheus.Gauge
}

var _ dispatch.Recorder = (*PrometheusRecorder)(nil)

// NewPrometheus creates a recorder on its own registry. namespace defaults
// to "partsim".
func NewPrometheus(namespace string) *PrometheusRecorder {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &PrometheusRecorder{reg: prometheus.NewRegistry(), namespace: namespace}
}

// Registry exposes the registry the metrics live on.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	p.ensureRegistered()
	return p.reg
}

func (p *PrometheusRecorder) ensureRegistered() {
	p.once.Do(func() {
		p.tasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "evaluation",
			Name:      "tasks_total",
			Help:      "Evaluated (workload, algorithm) pairs by algorithm and result.",
		}, []string{"algorithm", "result"})

		p.taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "evaluation",
			Name:      "task_duration_seconds",
			Help:      "Time spent inside the partitioning algorithm per pair.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 12), // 10us .. ~42s
		}, []string{"algorithm"})

		p.batchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "batches_total",
			Help:      "Evaluation batches by mode and result.",
		}, []string{"mode", "result"})

		p.batchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of an evaluation batch including rendering.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"mode"})

		p.batchTasks = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Subsystem: "dispatch",
			Name:      "last_batch_tasks",
			Help:      "Number of tasks evaluated by the most recent batch.",
		})

		p.reg.MustRegister(p.tasksTotal)
		p.reg.MustRegister(p.taskDuration)
		p.reg.MustRegister(p.batchesTotal)
		p.reg.MustRegister(p.batchDuration)
		p.reg.MustRegister(p.batchTasks)
	})
}

// ObserveTask counts one evaluated pair. Failed tasks carry no duration.
func (p *PrometheusRecorder) ObserveTask(algorithm string, elapsed time.Duration, err error) {
	p.ensureRegistered()
	if err != nil {
		p.tasksTotal.WithLabelValues(algorithm, "failure").Inc()
		return
	}
	p.tasksTotal.WithLabelValues(algorithm, "success").Inc()
	p.taskDuration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
}

// ObserveBatch records the outcome of a whole batch.
func (p *PrometheusRecorder) ObserveBatch(mode string, tasks int, elapsed time.Duration, err error) {
	p.ensureRegistered()
	result := "success"
	if err != nil {
		result = "failure"
	}
	p.batchesTotal.WithLabelValues(mode, result).Inc()
	p.batchDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	p.batchTasks.Set(float64(tasks))
}

// WriteTextfile dumps the current metrics in the text exposition format, for
// node_exporter's textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	p.ensureRegistered()
	if err := prometheus.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
