package partition

import (
	"time"

	"partsim/internal/allocation"
)

// AppResult is the outcome of a partition for a single application.
type AppResult struct {
	Name      string             `json:"name"`
	Ways      int                `json:"ways"`
	Mask      allocation.Bitmask `json:"mask"`
	ClusterID int                `json:"cluster_id"`
	IPC       float64            `json:"ipc"`
	IPCAlone  float64            `json:"ipc_alone"`
	Slowdown  float64            `json:"slowdown"`
	Bandwidth float64            `json:"bw"`
}

// Solution is the result of one (workload, algorithm) evaluation.
type Solution struct {
	Algorithm    string      `json:"algorithm"`
	WorkloadName string      `json:"workload_name"`
	TotalWays    int         `json:"total_ways"`
	Apps         []AppResult `json:"apps"`
	// ClusterWays and ClusterMasks are indexed by cluster id and include
	// clusters no application was placed in.
	ClusterWays  []int                `json:"cluster_ways,omitempty"`
	ClusterMasks []allocation.Bitmask `json:"cluster_masks,omitempty"`
	Elapsed      time.Duration        `json:"elapsed"`
}

// Masks returns the per-application masks.
func (s *Solution) Masks() []allocation.Bitmask {
	masks := make([]allocation.Bitmask, len(s.Apps))
	for i, app := range s.Apps {
		masks[i] = app.Mask
	}
	return masks
}

// Clusters returns per-application cluster ids together with the ways and
// mask of each cluster, indexed by cluster id. Solutions without recorded
// cluster geometry derive it from the applications.
func (s *Solution) Clusters() (ids []int, ways []int, masks []allocation.Bitmask) {
	ids = make([]int, len(s.Apps))
	n := 0
	for i, app := range s.Apps {
		ids[i] = app.ClusterID
		if app.ClusterID+1 > n {
			n = app.ClusterID + 1
		}
	}
	if len(s.ClusterWays) >= n && len(s.ClusterMasks) == len(s.ClusterWays) {
		return ids, append([]int(nil), s.ClusterWays...), append([]allocation.Bitmask(nil), s.ClusterMasks...)
	}
	ways = make([]int, n)
	masks = make([]allocation.Bitmask, n)
	for _, app := range s.Apps {
		ways[app.ClusterID] = app.Ways
		masks[app.ClusterID] = app.Mask
	}
	return ids, ways, masks
}
