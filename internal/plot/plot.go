package plot

import (
	"fmt"
	"path/filepath"

	"partsim/internal/dispatch"
	"partsim/internal/logging"
	"partsim/internal/partition"
	"partsim/internal/plot/scatter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const (
	PlotExtension    = ".tikz"
	WrapperExtension = ".tex"
)

// ChartCollector is a row sink gathering STP and unfairness per algorithm
// for the STP-vs-unfairness chart.
type ChartCollector struct {
	name       string
	totalWays  int
	maxBW      float64
	algorithms []string
	positions  map[string]int
	points     map[string][]scatter.LabeledPoint
	generator  *scatter.ScatterPlotGenerator
	logger     *logrus.Logger
}

// NewChartCollector prepares one series per distinct algorithm, in list
// order. A series takes its marker from the first position of its algorithm
// in the list.
func NewChartCollector(name string, algorithms []string, totalWays int, maxBW float64) *ChartCollector {
	logger := logging.GetLogger()
	c := &ChartCollector{
		name:      name,
		totalWays: totalWays,
		maxBW:     maxBW,
		positions: make(map[string]int),
		points:    make(map[string][]scatter.LabeledPoint),
		generator: scatter.NewScatterPlotGenerator(logger),
		logger:    logger,
	}
	for i, alg := range algorithms {
		if _, ok := c.points[alg]; ok {
			continue
		}
		c.positions[alg] = i
		c.points[alg] = []scatter.LabeledPoint{}
		c.algorithms = append(c.algorithms, alg)
	}
	return c
}

func (c *ChartCollector) Emit(row dispatch.Row) error {
	if _, ok := c.points[row.Algorithm]; !ok {
		return fmt.Errorf("algorithm %s was not declared for the chart", row.Algorithm)
	}
	m := partition.ComputeBasicMetrics(row.Solution, c.maxBW)
	c.points[row.Algorithm] = append(c.points[row.Algorithm], scatter.LabeledPoint{
		Label: fmt.Sprintf("W%d", row.Ordinal),
		X:     m.STP,
		Y:     m.Unfairness,
	})
	return nil
}

// Series returns the collected points per algorithm.
func (c *ChartCollector) Series() []scatter.Series {
	series := make([]scatter.Series, 0, len(c.algorithms))
	for _, alg := range c.algorithms {
		series = append(series, scatter.Series{Algorithm: alg, StyleIndex: c.positions[alg], Points: c.points[alg]})
	}
	return series
}

// Write renders <dir>/<name>.tikz and its figure wrapper <dir>/<name>.tex.
func (c *ChartCollector) Write(fs afero.Fs, dir string) (string, string, error) {
	plotFile := c.name + PlotExtension
	plotTikz, wrapperTex, err := c.generator.Generate(scatter.PlotOptions{
		WorkloadsName: c.name,
		TotalWays:     c.totalWays,
		MaxBandwidth:  c.maxBW,
		XLabel:        "STP",
		YLabel:        "Unfairness",
		PlotFileName:  plotFile,
		Series:        c.Series(),
	})
	if err != nil {
		return "", "", err
	}

	if dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return "", "", fmt.Errorf("failed to create chart directory: %w", err)
		}
	}
	plotPath := filepath.Join(dir, plotFile)
	wrapperPath := filepath.Join(dir, c.name+WrapperExtension)
	if err := afero.WriteFile(fs, plotPath, []byte(plotTikz), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", plotPath, err)
	}
	if err := afero.WriteFile(fs, wrapperPath, []byte(wrapperTex), 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write %s: %w", wrapperPath, err)
	}

	c.logger.WithFields(logrus.Fields{
		"plot":    plotPath,
		"wrapper": wrapperPath,
	}).Info("Chart written")
	return plotPath, wrapperPath, nil
}
