package remote

import (
	"math"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/dispatch"
	"partsim/internal/partition"
	"partsim/internal/workload"
)

// TaskRequest carries everything a worker needs to evaluate one task.
type TaskRequest struct {
	Key          dispatch.Key               `json:"key"`
	Algorithm    string                     `json:"algorithm"`
	Ordinal      int                        `json:"ordinal"`
	Apps         []*workload.Application    `json:"apps"`
	TotalWays    int                        `json:"total_ways"`
	MaxBandwidth *float64                   `json:"max_bandwidth,omitempty"` // nil means unlimited
	Parallel     bool                       `json:"parallel,omitempty"`
	Debugging    bool                       `json:"debugging,omitempty"`
	Options      config.Options             `json:"options"`
	WorkloadName string                     `json:"workload_name"`
	Assignment   *allocation.UserAssignment `json:"assignment,omitempty"`
}

// TaskReply is either a solution or the error message of a failed task.
type TaskReply struct {
	Key      dispatch.Key        `json:"key"`
	Solution *partition.Solution `json:"solution,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func newTaskRequest(t dispatch.Task) TaskRequest {
	req := TaskRequest{
		Key:          t.Key,
		Algorithm:    t.Algorithm,
		Ordinal:      t.Workload.Ordinal,
		Apps:         t.Workload.Apps,
		TotalWays:    t.TotalWays,
		Parallel:     t.Params.Parallel,
		Debugging:    t.Params.Debugging,
		Options:      t.Params.Options,
		WorkloadName: t.Params.WorkloadName,
		Assignment:   t.Params.UserAssignment,
	}
	if !math.IsInf(t.MaxBandwidth, 1) {
		bw := t.MaxBandwidth
		req.MaxBandwidth = &bw
	}
	return req
}

// task rebuilds the dispatch task on the worker side.
func (r TaskRequest) task() dispatch.Task {
	maxBW := math.Inf(1)
	if r.MaxBandwidth != nil {
		maxBW = *r.MaxBandwidth
	}
	return dispatch.Task{
		Key:          r.Key,
		Algorithm:    r.Algorithm,
		Workload:     &workload.Workload{Ordinal: r.Ordinal, Apps: r.Apps},
		TotalWays:    r.TotalWays,
		MaxBandwidth: maxBW,
		Params: partition.Params{
			Parallel:       r.Parallel,
			Debugging:      r.Debugging,
			Options:        r.Options,
			WorkloadName:   r.WorkloadName,
			UserAssignment: r.Assignment,
		},
	}
}
