package workload

import (
	"fmt"
)

// WayMetrics are the counters measured offline for one application running
// alone with a given number of cache ways.
type WayMetrics struct {
	Ways      int     `json:"ways"`
	IPC       float64 `json:"ipc"`
	Bandwidth float64 `json:"bw"`
	LLCMPKI   float64 `json:"llcmpki"`
}

// Application is a benchmark with one WayMetrics entry per way count,
// Metrics[i] holding the sample for i+1 ways.
type Application struct {
	Name    string       `json:"name"`
	Metrics []WayMetrics `json:"metrics"`
}

// MaxWays returns the largest way count measured for the application.
func (a *Application) MaxWays() int {
	return len(a.Metrics)
}

// At returns the metrics for the given number of ways. Way counts beyond the
// measured range saturate at the last sample.
func (a *Application) At(ways int) (WayMetrics, error) {
	if len(a.Metrics) == 0 {
		return WayMetrics{}, fmt.Errorf("application %s has no way metrics", a.Name)
	}
	if ways < 1 {
		return WayMetrics{}, fmt.Errorf("application %s: invalid way count %d", a.Name, ways)
	}
	if ways > a.MaxWays() {
		ways = a.MaxWays()
	}
	return a.Metrics[ways-1], nil
}

// Alone returns the metrics with the whole cache.
func (a *Application) Alone() WayMetrics {
	if len(a.Metrics) == 0 {
		return WayMetrics{}
	}
	return a.Metrics[len(a.Metrics)-1]
}

// Workload is one experiment instance: applications co-running on a shared
// cache. Workloads are never mutated after loading.
type Workload struct {
	Ordinal int            `json:"ordinal"`
	Apps    []*Application `json:"apps"`
}

// Name returns the W<ordinal> label used in rendered output.
func (w *Workload) Name() string {
	return fmt.Sprintf("W%d", w.Ordinal)
}

func (w *Workload) Len() int {
	return len(w.Apps)
}

// AppNames returns the benchmark names in application order.
func (w *Workload) AppNames() []string {
	names := make([]string, len(w.Apps))
	for i, app := range w.Apps {
		names[i] = app.Name
	}
	return names
}

// Table is a loaded workload file together with the cache size inferred
// from the offline data.
type Table struct {
	Workloads []*Workload
	TotalWays int
}

func (t *Table) Len() int {
	return len(t.Workloads)
}
