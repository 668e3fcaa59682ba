package partition

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// BasicMetrics are the workload-level figures of merit of a Solution.
type BasicMetrics struct {
	// STP is the system throughput, the sum of normalized progress.
	STP float64 `json:"stp"`
	// ANTT is the average normalized turnaround time.
	ANTT float64 `json:"antt"`
	// Unfairness is the ratio between the largest and smallest slowdown.
	Unfairness float64 `json:"unfairness"`
	Bandwidth  float64 `json:"bw"`
}

// ComputeBasicMetrics derives BasicMetrics from a solution. The reported
// bandwidth never exceeds maxBW.
func ComputeBasicMetrics(sol *Solution, maxBW float64) BasicMetrics {
	if sol == nil || len(sol.Apps) == 0 {
		return BasicMetrics{}
	}
	return metricsOf(sol.Apps, maxBW)
}

func metricsOf(apps []AppResult, maxBW float64) BasicMetrics {
	slowdowns := make([]float64, len(apps))
	progress := make([]float64, len(apps))
	bws := make([]float64, len(apps))
	for i, app := range apps {
		slowdowns[i] = app.Slowdown
		progress[i] = 1 / app.Slowdown
		bws[i] = app.Bandwidth
	}

	return BasicMetrics{
		STP:        floats.Sum(progress),
		ANTT:       floats.Sum(slowdowns) / float64(len(slowdowns)),
		Unfairness: floats.Max(slowdowns) / floats.Min(slowdowns),
		Bandwidth:  math.Min(floats.Sum(bws), maxBW),
	}
}
