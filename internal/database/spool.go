package database

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"partsim/internal/dispatch"
	"partsim/internal/partition"

	"github.com/spf13/afero"
)

const spoolVersion = 1

// SpoolResult is one rendered (workload, algorithm) result.
type SpoolResult struct {
	Workload  int                    `json:"workload"`
	Ordinal   int                    `json:"ordinal"`
	Algorithm string                 `json:"algorithm"`
	Metrics   partition.BasicMetrics `json:"metrics"`
	Solution  *partition.Solution    `json:"solution"`
}

type SpoolArtifact struct {
	Version int `json:"version"`

	CreatedAt time.Time `json:"created_at"`

	Experiment    string `json:"experiment"`
	Checksum      string `json:"checksum"`
	WorkloadsName string `json:"workloads_name"`

	Algorithms []string `json:"algorithms"`
	TotalWays  int      `json:"total_ways"`
	// MaxBandwidth is omitted when unlimited.
	MaxBandwidth *float64 `json:"max_bandwidth,omitempty"`

	ConfigContent string `json:"config_content,omitempty"`

	Results []SpoolResult `json:"results"`
}

func DefaultSpoolDir() string {
	if v := strings.TrimSpace(os.Getenv("PARTSIM_SPOOL_DIR")); v != "" {
		return v
	}
	return "spool"
}

func isInf(v float64) bool {
	return math.IsInf(v, 0)
}

// ResultSpool is a row sink collecting results into a SpoolArtifact.
type ResultSpool struct {
	artifact *SpoolArtifact
	maxBW    float64
}

// NewResultSpool starts an artifact for one run.
func NewResultSpool(experiment, checksum, workloadsName string, algorithms []string, totalWays int, maxBW float64) *ResultSpool {
	a := &SpoolArtifact{
		Version:       spoolVersion,
		CreatedAt:     time.Now(),
		Experiment:    experiment,
		Checksum:      checksum,
		WorkloadsName: workloadsName,
		Algorithms:    append([]string(nil), algorithms...),
		TotalWays:     totalWays,
	}
	if !isInf(maxBW) {
		bw := maxBW
		a.MaxBandwidth = &bw
	}
	return &ResultSpool{artifact: a, maxBW: maxBW}
}

// SetConfigContent embeds the experiment file the run was started from.
func (s *ResultSpool) SetConfigContent(content string) {
	s.artifact.ConfigContent = content
}

func (s *ResultSpool) Emit(row dispatch.Row) error {
	s.artifact.Results = append(s.artifact.Results, SpoolResult{
		Workload:  row.Key.Workload,
		Ordinal:   row.Ordinal,
		Algorithm: row.Algorithm,
		Metrics:   partition.ComputeBasicMetrics(row.Solution, s.maxBW),
		Solution:  row.Solution,
	})
	return nil
}

// Artifact returns the collected artifact.
func (s *ResultSpool) Artifact() *SpoolArtifact {
	return s.artifact
}

// WriteSpoolArtifact writes a gzip-compressed JSON artifact to disk atomically.
// It returns the final file path.
func WriteSpoolArtifact(fs afero.Fs, dir string, artifact *SpoolArtifact) (string, error) {
	if artifact == nil {
		return "", fmt.Errorf("spool artifact is nil")
	}
	if dir == "" {
		dir = DefaultSpoolDir()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	checksum := artifact.Checksum
	if checksum == "" {
		checksum = "nocsum"
	}
	stem := artifact.WorkloadsName
	if stem == "" {
		stem = "results"
	}
	name := fmt.Sprintf(
		"partsim_%s_%s_%s.json.gz",
		stem,
		artifact.CreatedAt.UTC().Format("20060102T150405Z"),
		checksum,
	)
	finalPath := filepath.Join(dir, name)

	tmp, err := afero.TempFile(fs, dir, name+".tmp.*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()

	ok := false
	defer func() {
		_ = tmp.Close()
		if !ok {
			_ = fs.Remove(tmpPath)
		}
	}()

	gz := gzip.NewWriter(tmp)
	enc := json.NewEncoder(gz)
	enc.SetIndent("", "  ")
	if err := enc.Encode(artifact); err != nil {
		_ = gz.Close()
		return "", err
	}
	if err := gz.Close(); err != nil {
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}

	if err := fs.Rename(tmpPath, finalPath); err != nil {
		return "", err
	}
	ok = true
	return finalPath, nil
}

// ReadSpoolArtifact loads an artifact written by WriteSpoolArtifact.
func ReadSpoolArtifact(fs afero.Fs, path string) (*SpoolArtifact, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer gz.Close()

	var artifact SpoolArtifact
	if err := json.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	if artifact.Version != spoolVersion {
		return nil, fmt.Errorf("unsupported spool version %d in %s", artifact.Version, path)
	}
	return &artifact, nil
}
