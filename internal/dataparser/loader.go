package dataparser

import (
	"bytes"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"strings"

	"partsim/internal/logging"
	"partsim/internal/workload"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Summary column names, matched case-insensitively.
const (
	ColBench   = "BENCH"
	ColWays    = "WAYS"
	ColIPC     = "IPC"
	ColBW      = "BW"
	ColLLCMPKI = "LLCMPKI"
)

// Summary is the offline profile of every benchmark, keyed by name.
type Summary struct {
	Apps      map[string]*workload.Application
	TotalWays int
}

// LoadSummary reads the per-way profile of every benchmark. Every benchmark
// must cover ways 1..N, where N is the largest way count in the file.
func LoadSummary(fs afero.Fs, path string, sep rune) (*Summary, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read summary file %s", path)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sep
	r.TrimLeadingSpace = true
	r.Comment = '#'
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read header of %s", path)
	}
	cols, err := summaryColumns(header)
	if err != nil {
		return nil, errors.Wrapf(err, "summary file %s", path)
	}

	byName := make(map[string]map[int]workload.WayMetrics)
	order := []string{}
	maxWays := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "summary file %s", path)
		}
		line, _ := r.FieldPos(0)

		name, m, err := parseSummaryRecord(record, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "summary file %s line %d", path, line)
		}
		if _, ok := byName[name]; !ok {
			byName[name] = make(map[int]workload.WayMetrics)
			order = append(order, name)
		}
		if _, dup := byName[name][m.Ways]; dup {
			return nil, errors.Errorf("summary file %s line %d: duplicate entry for %s with %d ways", path, line, name, m.Ways)
		}
		byName[name][m.Ways] = m
		if m.Ways > maxWays {
			maxWays = m.Ways
		}
	}
	if len(order) == 0 {
		return nil, errors.Errorf("summary file %s has no benchmarks", path)
	}

	summary := &Summary{
		Apps:      make(map[string]*workload.Application, len(order)),
		TotalWays: maxWays,
	}
	for _, name := range order {
		app := &workload.Application{Name: name, Metrics: make([]workload.WayMetrics, maxWays)}
		for w := 1; w <= maxWays; w++ {
			m, ok := byName[name][w]
			if !ok {
				return nil, errors.Errorf("summary file %s: benchmark %s has no sample for %d ways", path, name, w)
			}
			app.Metrics[w-1] = m
		}
		summary.Apps[name] = app
	}

	logging.GetLogger().WithFields(logrus.Fields{
		"file":       path,
		"benchmarks": len(order),
		"ways":       maxWays,
	}).Debug("Summary file loaded")
	return summary, nil
}

type summaryIndex struct {
	bench, ways, ipc, bw, mpki int
}

func summaryColumns(header []string) (summaryIndex, error) {
	idx := summaryIndex{bench: -1, ways: -1, ipc: -1, bw: -1, mpki: -1}
	for i, h := range header {
		switch strings.ToUpper(strings.TrimSpace(h)) {
		case ColBench:
			idx.bench = i
		case ColWays:
			idx.ways = i
		case ColIPC:
			idx.ipc = i
		case ColBW:
			idx.bw = i
		case ColLLCMPKI:
			idx.mpki = i
		}
	}
	missing := []string{}
	if idx.bench < 0 {
		missing = append(missing, ColBench)
	}
	if idx.ways < 0 {
		missing = append(missing, ColWays)
	}
	if idx.ipc < 0 {
		missing = append(missing, ColIPC)
	}
	if idx.bw < 0 {
		missing = append(missing, ColBW)
	}
	if len(missing) > 0 {
		return idx, errors.Errorf("missing columns %s", strings.Join(missing, ","))
	}
	return idx, nil
}

func parseSummaryRecord(record []string, cols summaryIndex) (string, workload.WayMetrics, error) {
	field := func(i int) (string, error) {
		if i >= len(record) {
			return "", errors.Errorf("expected at least %d fields, got %d", i+1, len(record))
		}
		return strings.TrimSpace(record[i]), nil
	}
	float := func(i int, what string) (float64, error) {
		s, err := field(i)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, errors.Wrapf(err, "invalid %s", what)
		}
		return v, nil
	}

	name, err := field(cols.bench)
	if err != nil {
		return "", workload.WayMetrics{}, err
	}
	if name == "" {
		return "", workload.WayMetrics{}, errors.New("empty benchmark name")
	}
	waysStr, err := field(cols.ways)
	if err != nil {
		return "", workload.WayMetrics{}, err
	}
	ways, err := strconv.Atoi(waysStr)
	if err != nil {
		return "", workload.WayMetrics{}, errors.Wrap(err, "invalid ways")
	}
	if ways < 1 {
		return "", workload.WayMetrics{}, errors.Errorf("invalid way count %d", ways)
	}

	m := workload.WayMetrics{Ways: ways}
	if m.IPC, err = float(cols.ipc, ColIPC); err != nil {
		return "", workload.WayMetrics{}, err
	}
	if m.Bandwidth, err = float(cols.bw, ColBW); err != nil {
		return "", workload.WayMetrics{}, err
	}
	if cols.mpki >= 0 {
		if m.LLCMPKI, err = float(cols.mpki, ColLLCMPKI); err != nil {
			return "", workload.WayMetrics{}, err
		}
	}
	return name, m, nil
}

// ReadWorkloadFile returns one benchmark list per line. Blank lines and lines
// starting with '#' are ignored.
func ReadWorkloadFile(fs afero.Fs, path string, sep rune) ([][]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read workload file %s", path)
	}

	var lists [][]string
	for n, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, string(sep))
		names := make([]string, 0, len(fields))
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if f == "" {
				return nil, errors.Errorf("workload file %s line %d: empty benchmark name", path, n+1)
			}
			names = append(names, f)
		}
		lists = append(lists, names)
	}
	return lists, nil
}

// LoadWorkloadsFromCSV builds the workload table from a summary file and a
// workload file.
func LoadWorkloadsFromCSV(fs afero.Fs, summaryPath, workloadPath string, sep rune) (*workload.Table, error) {
	lists, err := ReadWorkloadFile(fs, workloadPath, sep)
	if err != nil {
		return nil, err
	}
	return LoadWorkloadsFromList(fs, summaryPath, lists, sep)
}

// LoadWorkloadsFromList builds the workload table from a summary file and
// in-memory benchmark lists. Workload ordinals start at 1.
func LoadWorkloadsFromList(fs afero.Fs, summaryPath string, lists [][]string, sep rune) (*workload.Table, error) {
	summary, err := LoadSummary(fs, summaryPath, sep)
	if err != nil {
		return nil, err
	}

	table := &workload.Table{TotalWays: summary.TotalWays}
	for i, names := range lists {
		wl := &workload.Workload{Ordinal: i + 1}
		for _, name := range names {
			app, ok := summary.Apps[name]
			if !ok {
				return nil, errors.Errorf("workload W%d: benchmark %s not found in %s (known: %s)",
					i+1, name, summaryPath, strings.Join(knownBenchmarks(summary), ","))
			}
			wl.Apps = append(wl.Apps, app)
		}
		table.Workloads = append(table.Workloads, wl)
	}
	return table, nil
}

func knownBenchmarks(s *Summary) []string {
	names := make([]string, 0, len(s.Apps))
	for name := range s.Apps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type harnessFile struct {
	Benchmarks []string `yaml:"benchmarks"`
}

// ParseHarnessFile returns the benchmark list of a harness file.
func ParseHarnessFile(fs afero.Fs, path string) ([]string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read harness file %s", path)
	}

	var h harnessFile
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, errors.Wrapf(err, "failed to parse harness file %s", path)
	}
	if len(h.Benchmarks) == 0 {
		return nil, errors.Errorf("harness file %s lists no benchmarks", path)
	}
	for i, b := range h.Benchmarks {
		h.Benchmarks[i] = strings.TrimSpace(b)
		if h.Benchmarks[i] == "" {
			return nil, errors.Errorf("harness file %s: empty benchmark name at position %d", path, i)
		}
	}
	return h.Benchmarks, nil
}

// WorkloadsName derives the experiment name from the workload file path: its
// base name without extension.
func WorkloadsName(path string) string {
	base := path
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndex(base, "."); i > 0 {
		base = base[:i]
	}
	return base
}
