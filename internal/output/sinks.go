package output

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"partsim/internal/allocation"
	"partsim/internal/dispatch"
	"partsim/internal/partition"
)

// simpleSink prints one line per application followed by the workload
// metrics. The header precedes the first algorithm of every workload.
type simpleSink struct {
	w     io.Writer
	maxBW float64
}

const (
	simpleHeaderFmt = "%-5s %-12s %-3s %-16s %4s %-12s %9s %9s\n"
	simpleRowFmt    = "%-5s %-12s %-3d %-16s %4d %-12s %9.3f %9.3f\n"
	simpleTotalFmt  = "%-5s %-12s STP=%.3f ANTT=%.3f Unfairness=%.3f BW=%.3f\n"
)

func (s *simpleSink) Emit(row dispatch.Row) error {
	sol := row.Solution
	wname := workloadName(row)
	if row.Key.Algorithm == 0 {
		if _, err := fmt.Fprintf(s.w, simpleHeaderFmt, "W#", "Algorithm", "ID", "App", "Ways", "Mask", "Slowdown", "BW"); err != nil {
			return err
		}
	}
	for i, app := range sol.Apps {
		if _, err := fmt.Fprintf(s.w, simpleRowFmt, wname, row.Algorithm, i, app.Name, app.Ways, app.Mask, app.Slowdown, app.Bandwidth); err != nil {
			return err
		}
	}
	m := partition.ComputeBasicMetrics(sol, s.maxBW)
	_, err := fmt.Fprintf(s.w, simpleTotalFmt, wname, row.Algorithm, m.STP, m.ANTT, m.Unfairness, m.Bandwidth)
	return err
}

// tableSink prints one line per (workload, algorithm) with a single header
// for the whole batch.
type tableSink struct {
	w     io.Writer
	maxBW float64
}

const (
	tableHeaderFmt = "%-5s %-12s %8s %8s %10s %9s %s\n"
	tableRowFmt    = "%-5s %-12s %8.3f %8.3f %10.3f %9.3f %s\n"
)

func (s *tableSink) Emit(row dispatch.Row) error {
	if row.First {
		if _, err := fmt.Fprintf(s.w, tableHeaderFmt, "W#", "Algorithm", "STP", "ANTT", "Unfairness", "BW", "Ways"); err != nil {
			return err
		}
	}
	sol := row.Solution
	ways := make([]int, len(sol.Apps))
	for i, app := range sol.Apps {
		ways[i] = app.Ways
	}
	m := partition.ComputeBasicMetrics(sol, s.maxBW)
	_, err := fmt.Fprintf(s.w, tableRowFmt, workloadName(row), row.Algorithm, m.STP, m.ANTT, m.Unfairness, m.Bandwidth, joinInts(ways))
	return err
}

// clusterSink prints "W<i> <alg> <ids>;<ways>", the user assignment line
// reproducing the solution, optionally followed by ";<cluster masks>".
type clusterSink struct {
	w     io.Writer
	masks bool
}

func (s *clusterSink) Emit(row dispatch.Row) error {
	ids, ways, masks := row.Solution.Clusters()
	line := fmt.Sprintf("%s %s %s;%s", workloadName(row), row.Algorithm, joinInts(ids), joinInts(ways))
	if s.masks {
		line += ";" + joinMasks(masks, allocation.Bitmask.String)
	}
	_, err := fmt.Fprintln(s.w, line)
	return err
}

// harnessSink prints the per-application masks of a solution.
type harnessSink struct {
	w io.Writer
}

func (s *harnessSink) Emit(row dispatch.Row) error {
	_, err := fmt.Fprintf(s.w, "%s %s %s\n", workloadName(row), row.Algorithm, joinMasks(row.Solution.Masks(), allocation.Bitmask.String))
	return err
}

// debussySink prints one "<idx> <app> <mask> <ways>" line per application
// after a "# W<i> <alg>" marker line.
type debussySink struct {
	w io.Writer
}

func (s *debussySink) Emit(row dispatch.Row) error {
	if _, err := fmt.Fprintf(s.w, "# %s %s\n", workloadName(row), row.Algorithm); err != nil {
		return err
	}
	for i, app := range row.Solution.Apps {
		if _, err := fmt.Fprintf(s.w, "%d %s %s %d\n", i, app.Name, app.Mask.Hex(), app.Ways); err != nil {
			return err
		}
	}
	return nil
}

func workloadName(row dispatch.Row) string {
	return "W" + strconv.Itoa(row.Ordinal)
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func joinMasks(masks []allocation.Bitmask, format func(allocation.Bitmask) string) string {
	parts := make([]string, len(masks))
	for i, m := range masks {
		parts[i] = format(m)
	}
	return strings.Join(parts, ",")
}
