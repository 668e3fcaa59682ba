package partition

import (
	"fmt"
	"math"

	"partsim/internal/config"
	"partsim/internal/workload"
)

// estimate predicts per-application IPC and bandwidth when the applications
// of wl share the cache according to ways.
//
// With the simple bandwidth model, when the aggregate demand exceeds maxBW
// every application is throttled by the same factor.
func estimate(wl *workload.Workload, ways []int, maxBW float64, bwModel string) ([]AppResult, error) {
	if len(ways) != wl.Len() {
		return nil, fmt.Errorf("got %d way counts for %d applications", len(ways), wl.Len())
	}

	results := make([]AppResult, wl.Len())
	totalBW := 0.0
	for i, app := range wl.Apps {
		m, err := app.At(ways[i])
		if err != nil {
			return nil, err
		}
		alone := app.Alone()
		results[i] = AppResult{
			Name:      app.Name,
			Ways:      ways[i],
			ClusterID: i,
			IPC:       m.IPC,
			IPCAlone:  alone.IPC,
			Bandwidth: m.Bandwidth,
		}
		totalBW += m.Bandwidth
	}

	if bwModel == config.BWModelSimple && !math.IsInf(maxBW, 1) && totalBW > maxBW {
		factor := maxBW / totalBW
		for i := range results {
			results[i].IPC *= factor
			results[i].Bandwidth *= factor
		}
	}

	for i := range results {
		if results[i].IPC <= 0 {
			return nil, fmt.Errorf("application %s: non-positive IPC with %d ways", results[i].Name, results[i].Ways)
		}
		results[i].Slowdown = results[i].IPCAlone / results[i].IPC
	}
	return results, nil
}
