package dataparser

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const summaryCSV = `BENCH,WAYS,IPC,BW,LLCMPKI
mcf,1,0.20,9.0,30.0
mcf,2,0.30,8.0,24.0
mcf,3,0.35,7.5,20.0
lbm,1,0.80,12.0,10.0
lbm,2,0.81,12.0,10.0
lbm,3,0.82,12.0,9.5
gcc,3,1.30,1.0,0.5
gcc,1,1.00,2.0,2.0
gcc,2,1.20,1.5,1.0
`

func newFs(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestLoadSummary(t *testing.T) {
	fs := newFs(t, map[string]string{"/data/summary.csv": summaryCSV})

	s, err := LoadSummary(fs, "/data/summary.csv", ',')
	require.NoError(t, err)
	assert.Equal(t, 3, s.TotalWays)
	require.Len(t, s.Apps, 3)

	gcc := s.Apps["gcc"]
	require.NotNil(t, gcc)
	require.Len(t, gcc.Metrics, 3)
	// Rows are reordered by way count.
	assert.Equal(t, 1, gcc.Metrics[0].Ways)
	assert.Equal(t, 1.0, gcc.Metrics[0].IPC)
	assert.Equal(t, 1.3, gcc.Alone().IPC)
	assert.Equal(t, 24.0, s.Apps["mcf"].Metrics[1].LLCMPKI)
}

func TestLoadSummary_OptionalMissCurve(t *testing.T) {
	fs := newFs(t, map[string]string{"/s.csv": "bench;ways;ipc;bw\nx;1;1.0;2.0\nx;2;1.5;2.5\n"})

	s, err := LoadSummary(fs, "/s.csv", ';')
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalWays)
	assert.Equal(t, 0.0, s.Apps["x"].Metrics[1].LLCMPKI)
}

func TestLoadSummary_Errors(t *testing.T) {
	tests := map[string]string{
		"missing column": "BENCH,WAYS,IPC\nx,1,1.0\n",
		"bad float":      "BENCH,WAYS,IPC,BW\nx,1,fast,2\n",
		"bad ways":       "BENCH,WAYS,IPC,BW\nx,one,1,2\n",
		"zero ways":      "BENCH,WAYS,IPC,BW\nx,0,1,2\n",
		"duplicate":      "BENCH,WAYS,IPC,BW\nx,1,1,2\nx,1,1,2\n",
		"gap":            "BENCH,WAYS,IPC,BW\nx,1,1,2\nx,3,1,2\n",
		"short coverage": "BENCH,WAYS,IPC,BW\nx,1,1,2\nx,2,1,2\ny,1,1,2\n",
		"empty":          "BENCH,WAYS,IPC,BW\n",
		"short row":      "BENCH,WAYS,IPC,BW\nx,1\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			fs := newFs(t, map[string]string{"/s.csv": content})
			_, err := LoadSummary(fs, "/s.csv", ',')
			assert.Error(t, err)
		})
	}

	_, err := LoadSummary(afero.NewMemMapFs(), "/nope.csv", ',')
	assert.Error(t, err)
}

func TestLoadWorkloadsFromCSV(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/data/summary.csv": summaryCSV,
		"/data/mixes.csv":   "# workload mixes\nmcf,lbm\n\n gcc , mcf ,lbm\n",
	})

	table, err := LoadWorkloadsFromCSV(fs, "/data/summary.csv", "/data/mixes.csv", ',')
	require.NoError(t, err)
	assert.Equal(t, 3, table.TotalWays)
	require.Equal(t, 2, table.Len())

	assert.Equal(t, "W1", table.Workloads[0].Name())
	assert.Equal(t, []string{"mcf", "lbm"}, table.Workloads[0].AppNames())
	assert.Equal(t, "W2", table.Workloads[1].Name())
	assert.Equal(t, []string{"gcc", "mcf", "lbm"}, table.Workloads[1].AppNames())
	assert.Same(t, table.Workloads[0].Apps[0], table.Workloads[1].Apps[1], "applications are shared read-only")
}

func TestLoadWorkloadsFromCSV_UnknownBenchmark(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/data/summary.csv": summaryCSV,
		"/data/mixes.csv":   "mcf,povray\n",
	})

	_, err := LoadWorkloadsFromCSV(fs, "/data/summary.csv", "/data/mixes.csv", ',')
	require.Error(t, err)
	assert.Contains(t, err.Error(), "povray")
	assert.Contains(t, err.Error(), "W1")
}

func TestReadWorkloadFile_EmptyName(t *testing.T) {
	fs := newFs(t, map[string]string{"/w.csv": "mcf,,lbm\n"})
	_, err := ReadWorkloadFile(fs, "/w.csv", ',')
	assert.Error(t, err)
}

func TestParseHarnessFile(t *testing.T) {
	fs := newFs(t, map[string]string{
		"/h.yml":     "benchmarks:\n  - mcf\n  - gcc\n",
		"/empty.yml": "benchmarks: []\n",
		"/bad.yml":   "benchmarks: [mcf\n",
	})

	benchs, err := ParseHarnessFile(fs, "/h.yml")
	require.NoError(t, err)
	assert.Equal(t, []string{"mcf", "gcc"}, benchs)

	_, err = ParseHarnessFile(fs, "/empty.yml")
	assert.Error(t, err)
	_, err = ParseHarnessFile(fs, "/bad.yml")
	assert.Error(t, err)

	fs = newFs(t, map[string]string{"/data/summary.csv": summaryCSV})
	table, err := LoadWorkloadsFromList(fs, "/data/summary.csv", [][]string{benchs}, ',')
	require.NoError(t, err)
	require.Equal(t, 1, table.Len())
	assert.Equal(t, []string{"mcf", "gcc"}, table.Workloads[0].AppNames())
}

func TestWorkloadsName(t *testing.T) {
	assert.Equal(t, "mixes", WorkloadsName("data/mixes.csv"))
	assert.Equal(t, "mixes.v2", WorkloadsName("/abs/mixes.v2.csv"))
	assert.Equal(t, "mixes", WorkloadsName("mixes"))
}
