package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
)

type experimentChecksumPayload struct {
	SummaryFile  string   `json:"summary_file"`
	WorkloadFile string   `json:"workload_file"`
	Harness      bool     `json:"harness"`
	Algorithms   []string `json:"algorithms"`
	MaxBandwidth *float64 `json:"max_bandwidth,omitempty"`
	BWModel      string   `json:"bw_model"`
	Range        string   `json:"range"`
	ForceWays    int      `json:"force_ways"`
	Options      []string `json:"options,omitempty"`
}

// ExperimentChecksum returns a short, stable checksum identifying what an
// experiment evaluates, independent of how it is dispatched or rendered.
//
// It computes MD5 over a canonical JSON representation and returns the first 6 hex
// characters (equivalent to `md5sum | cut -c1-6`).
func ExperimentChecksum(cfg *ExperimentConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}

	sim := cfg.Simulation
	algorithms := make([]string, 0, len(sim.Algorithms))
	for _, a := range sim.Algorithms {
		algorithms = append(algorithms, strings.TrimSpace(a))
	}

	payload := experimentChecksumPayload{
		SummaryFile:  filepath.Base(sim.SummaryFile),
		WorkloadFile: filepath.Base(sim.WorkloadFile),
		Harness:      sim.Harness,
		Algorithms:   algorithms,
		MaxBandwidth: sim.MaxBandwidth,
		BWModel:      sim.BWModel,
		Range:        strings.TrimSpace(sim.Range),
		ForceWays:    sim.ForceWays,
		Options:      OptionTokens(cfg.Options),
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	sum := md5.Sum(b)
	hexStr := hex.EncodeToString(sum[:])
	if len(hexStr) > 6 {
		hexStr = hexStr[:6]
	}
	return hexStr, nil
}
