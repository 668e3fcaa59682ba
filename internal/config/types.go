package config

import (
	"math"
	"time"
)

const (
	PoolLocal = "local"
	PoolNATS  = "nats"

	DefaultNATSSubject = "partsim.tasks"
	DefaultNATSTimeout = 5 * time.Minute
)

type ExperimentConfig struct {
	LogLevel   string            `yaml:"log_level"`
	Simulation SimulationConfig  `yaml:"simulation"`
	Pool       PoolConfig        `yaml:"pool"`
	Export     ExportConfig      `yaml:"export"`
	Options    map[string]string `yaml:"options"`
}

type SimulationConfig struct {
	SummaryFile  string   `yaml:"summary_file" json:"summary_file"`
	WorkloadFile string   `yaml:"workload_file" json:"workload_file"`
	Harness      bool     `yaml:"harness" json:"harness"`
	Algorithms   []string `yaml:"algorithms" json:"algorithms"`
	MaxBandwidth *float64 `yaml:"max_bandwidth,omitempty" json:"max_bandwidth,omitempty"`
	BWModel      string   `yaml:"bw_model" json:"bw_model"`
	Format       string   `yaml:"format" json:"format"`
	Range        string   `yaml:"range" json:"range"`
	ForceWays    int      `yaml:"force_ways" json:"force_ways"`
	Parallel     bool     `yaml:"parallel" json:"parallel"`
	ParSim       bool     `yaml:"parsim" json:"parsim"`
	Debugging    bool     `yaml:"debugging" json:"debugging"`
	Chart        bool     `yaml:"generate_chart" json:"generate_chart"`
}

type PoolConfig struct {
	Kind    string     `yaml:"kind"`
	Workers int        `yaml:"workers"`
	NATS    NATSConfig `yaml:"nats"`
}

type NATSConfig struct {
	URL      string `yaml:"url"`
	Subject  string `yaml:"subject"`
	TimeoutS int    `yaml:"timeout_s"`
}

type ExportConfig struct {
	SpoolDir    string        `yaml:"spool_dir"`
	MetricsFile string        `yaml:"metrics_file"`
	Influx      *InfluxConfig `yaml:"influx,omitempty"`
}

type InfluxConfig struct {
	Host   string `yaml:"host"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// DefaultExperimentConfig mirrors the defaults of the run command flags.
func DefaultExperimentConfig() *ExperimentConfig {
	return &ExperimentConfig{
		LogLevel: "info",
		Simulation: SimulationConfig{
			SummaryFile: "../data/volta2_turbo_off.300W.csv",
			Algorithms:  []string{"ucp"},
			BWModel:     BWModelSimple,
			Format:      "full",
			Range:       "-",
		},
		Pool: PoolConfig{
			Kind: PoolLocal,
		},
	}
}

// GetMaxBandwidth returns the bandwidth cap, +Inf when unset.
func (s *SimulationConfig) GetMaxBandwidth() float64 {
	if s.MaxBandwidth == nil {
		return math.Inf(1)
	}
	return *s.MaxBandwidth
}

// EffectiveWays applies force_ways to the number of ways inferred from the
// input. The 2x bound is kept as found in historical experiment scripts.
func (s *SimulationConfig) EffectiveWays(inferred int) int {
	if s.ForceWays > 0 && s.ForceWays <= 2*inferred {
		return s.ForceWays
	}
	return inferred
}

func (n *NATSConfig) GetSubject() string {
	if n.Subject == "" {
		return DefaultNATSSubject
	}
	return n.Subject
}

func (n *NATSConfig) GetTimeout() time.Duration {
	if n.TimeoutS <= 0 {
		return DefaultNATSTimeout
	}
	return time.Duration(n.TimeoutS) * time.Second
}
