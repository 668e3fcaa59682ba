package scatter

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"math"
	"strings"
	"text/template"
	"time"

	"partsim/internal/plot/scatter/mappings"
	plotTemplate "partsim/internal/plot/scatter/templates/plot"
	wrapperTemplate "partsim/internal/plot/scatter/templates/wrapper"

	"github.com/sirupsen/logrus"
)

// LabeledPoint is one workload in the chart.
type LabeledPoint struct {
	Label string
	X     float64
	Y     float64
}

// Series holds the points of one algorithm.
// Series is one algorithm's points. StyleIndex selects the marker, cycling
// over the palette.
type Series struct {
	Algorithm  string
	StyleIndex int
	Points     []LabeledPoint
}

type PlotOptions struct {
	WorkloadsName string
	TotalWays     int
	MaxBandwidth  float64
	XLabel        string
	YLabel        string
	// PlotFileName is the name the wrapper \input{}s.
	PlotFileName string
	// Series are drawn in order; the marker of series i is style i modulo the
	// number of shapes.
	Series []Series
}

type ScatterPlotGenerator struct {
	logger *logrus.Logger
	now    func() time.Time
}

func NewScatterPlotGenerator(logger *logrus.Logger) *ScatterPlotGenerator {
	return &ScatterPlotGenerator{
		logger: logger,
		now:    time.Now,
	}
}

// Generate renders the chart and its figure wrapper.
func (g *ScatterPlotGenerator) Generate(opts PlotOptions) (string, string, error) {
	g.logger.WithFields(logrus.Fields{
		"workloads": opts.WorkloadsName,
		"series":    len(opts.Series),
	}).Info("Generating scatter plot")

	if len(opts.Series) == 0 {
		return "", "", fmt.Errorf("no series to plot")
	}

	plotOutput, err := g.renderPlot(g.preparePlotData(opts))
	if err != nil {
		return "", "", fmt.Errorf("failed to render plot: %w", err)
	}

	wrapperOutput, err := g.renderWrapper(g.prepareWrapperData(opts))
	if err != nil {
		return "", "", fmt.Errorf("failed to render wrapper: %w", err)
	}

	g.logger.Debug("Scatter plot generated successfully")
	return plotOutput, wrapperOutput, nil
}

func (g *ScatterPlotGenerator) preparePlotData(opts PlotOptions) *plotTemplate.PlotData {
	series := make([]plotTemplate.Series, 0, len(opts.Series))
	for _, s := range opts.Series {
		points := make([]plotTemplate.Point, len(s.Points))
		for j, p := range s.Points {
			points[j] = plotTemplate.Point{Label: p.Label, X: p.X, Y: p.Y}
		}
		series = append(series, plotTemplate.Series{
			Algorithm: s.Algorithm,
			Style:     mappings.GetAlgorithmStyle(s.StyleIndex).ToTikzOptions(),
			Points:    points,
		})
	}

	maxBW := "unlimited"
	if !math.IsInf(opts.MaxBandwidth, 1) {
		maxBW = fmt.Sprintf("%.2f", opts.MaxBandwidth)
	}

	return &plotTemplate.PlotData{
		GeneratedDate: g.now().Format("2006-01-02 15:04:05"),
		WorkloadsName: opts.WorkloadsName,
		TotalWays:     opts.TotalWays,
		MaxBandwidth:  maxBW,
		XLabel:        opts.XLabel,
		YLabel:        opts.YLabel,
		Series:        series,
	}
}

func (g *ScatterPlotGenerator) prepareWrapperData(opts PlotOptions) *wrapperTemplate.WrapperData {
	algorithms := make([]string, len(opts.Series))
	for i, s := range opts.Series {
		algorithms[i] = s.Algorithm
	}

	return &wrapperTemplate.WrapperData{
		GeneratedDate: g.now().Format("2006-01-02 15:04:05"),
		WorkloadsName: opts.WorkloadsName,
		PlotFileName:  opts.PlotFileName,
		ShortCaption:  fmt.Sprintf("%s vs %s (%s)", opts.XLabel, opts.YLabel, opts.WorkloadsName),
		Caption:       fmt.Sprintf("%s and %s per workload of \\texttt{%s} for %s.", opts.XLabel, opts.YLabel, opts.WorkloadsName, strings.Join(algorithms, ", ")),
		LabelID:       g.generateLabelID(opts.WorkloadsName, algorithms),
	}
}

func (g *ScatterPlotGenerator) generateLabelID(name string, algorithms []string) string {
	input := name + ":" + strings.Join(algorithms, "-")
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("%x", hash[:6])
}

func (g *ScatterPlotGenerator) renderPlot(data *plotTemplate.PlotData) (string, error) {
	tmpl, err := template.New("plot").Parse(plotTemplate.PlotTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse plot template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute plot template: %w", err)
	}

	return buf.String(), nil
}

func (g *ScatterPlotGenerator) renderWrapper(data *wrapperTemplate.WrapperData) (string, error) {
	tmpl, err := template.New("wrapper").Parse(wrapperTemplate.WrapperTemplate)
	if err != nil {
		return "", fmt.Errorf("failed to parse wrapper template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute wrapper template: %w", err)
	}

	return buf.String(), nil
}
