package output

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"partsim/internal/config"
	"partsim/internal/dispatch"
)

// Format selects how rows are rendered.
type Format string

const (
	FormatSimple         Format = "simple"
	FormatFull           Format = "full"
	FormatTable          Format = "table"
	FormatCluster        Format = "cluster"
	FormatHarness        Format = "harness"
	FormatHarnessCluster Format = "harness-cluster"
	FormatHarnessDebussy Format = "harness-debussy"
	FormatQuiet          Format = "quiet"
)

var knownFormats = map[Format]bool{
	FormatSimple:         true,
	FormatFull:           true,
	FormatTable:          true,
	FormatCluster:        true,
	FormatHarness:        true,
	FormatHarnessCluster: true,
	FormatHarnessDebussy: true,
	FormatQuiet:          true,
}

// Formats lists the accepted format names.
func Formats() []string {
	names := make([]string, 0, len(knownFormats))
	for f := range knownFormats {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// ParseFormat validates a format name. "full" is an alias of "simple".
func ParseFormat(s string) (Format, error) {
	f := Format(strings.TrimSpace(s))
	if !knownFormats[f] {
		return "", fmt.Errorf("%w: unknown output format %q (known: %s)", config.ErrConfiguration, s, strings.Join(Formats(), ", "))
	}
	if f == FormatFull {
		f = FormatSimple
	}
	return f, nil
}

// NewSink returns the row sink rendering f to w.
func NewSink(f Format, w io.Writer, maxBW float64) (dispatch.RowSink, error) {
	f, err := ParseFormat(string(f))
	if err != nil {
		return nil, err
	}
	switch f {
	case FormatSimple:
		return &simpleSink{w: w, maxBW: maxBW}, nil
	case FormatTable:
		return &tableSink{w: w, maxBW: maxBW}, nil
	case FormatCluster:
		return &clusterSink{w: w, masks: false}, nil
	case FormatHarnessCluster:
		return &clusterSink{w: w, masks: true}, nil
	case FormatHarness:
		return &harnessSink{w: w}, nil
	case FormatHarnessDebussy:
		return &debussySink{w: w}, nil
	default:
		return Discard, nil
	}
}

// Discard drops every row.
var Discard dispatch.RowSink = discardSink{}

type discardSink struct{}

func (discardSink) Emit(dispatch.Row) error { return nil }

// Tee forwards each row to every sink in order, stopping at the first error.
func Tee(sinks ...dispatch.RowSink) dispatch.RowSink {
	return teeSink(sinks)
}

type teeSink []dispatch.RowSink

func (t teeSink) Emit(row dispatch.Row) error {
	for _, s := range t {
		if s == nil {
			continue
		}
		if err := s.Emit(row); err != nil {
			return err
		}
	}
	return nil
}
