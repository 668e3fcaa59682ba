package database

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"partsim/internal/dispatch"
	"partsim/internal/partition"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	calls  int
	points []*write.Point
	err    error
}

func (f *fakeWriter) WritePoint(_ context.Context, point ...*write.Point) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	f.points = append(f.points, point...)
	return nil
}

func testRow() dispatch.Row {
	return dispatch.Row{
		Key:       dispatch.Key{Workload: 2, Algorithm: 1},
		Ordinal:   3,
		Algorithm: "ucp",
		Solution: &partition.Solution{
			Algorithm: "ucp",
			TotalWays: 8,
			Elapsed:   1500 * time.Microsecond,
			Apps: []partition.AppResult{
				{Name: "mcf", Ways: 6, Mask: 0xfc, ClusterID: 0, IPC: 0.5, IPCAlone: 1, Slowdown: 2, Bandwidth: 3},
				{Name: "gcc", Ways: 2, Mask: 0x03, ClusterID: 1, IPC: 1, IPCAlone: 1, Slowdown: 1, Bandwidth: 1},
			},
		},
	}
}

func TestInfluxExporter_EmitAndFlush(t *testing.T) {
	w := &fakeWriter{}
	e := NewInfluxExporter(w, "mixes", "abc123", math.Inf(1))

	require.NoError(t, e.Emit(testRow()))
	assert.Equal(t, 3, e.Pending())
	assert.Zero(t, w.calls)

	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 1, w.calls)
	require.Len(t, w.points, 3)
	assert.Zero(t, e.Pending())

	result := write.PointToLineProtocol(w.points[0], time.Second)
	assert.True(t, strings.HasPrefix(result, measurementResult+","), result)
	assert.Contains(t, result, "algorithm=ucp")
	assert.Contains(t, result, "workload=W3")
	assert.Contains(t, result, "stp=1.5")
	assert.Contains(t, result, `ways="6,2"`)

	app := write.PointToLineProtocol(w.points[1], time.Second)
	assert.Contains(t, app, "app=mcf")
	assert.Contains(t, app, `mask="0xfc"`)

	// Nothing pending, nothing written.
	require.NoError(t, e.Flush(context.Background()))
	assert.Equal(t, 1, w.calls)
}

func TestInfluxExporter_FlushError(t *testing.T) {
	w := &fakeWriter{err: errors.New("unavailable")}
	e := NewInfluxExporter(w, "mixes", "", 10)
	require.NoError(t, e.Emit(testRow()))

	err := e.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 3, e.Pending())
}

func TestInfluxExporter_WriteMetadata(t *testing.T) {
	w := &fakeWriter{}
	e := NewInfluxExporter(w, "mixes", "abc123", math.Inf(1))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, e.WriteMetadata(context.Background(), RunMetadata{
		WorkloadsName: "mixes",
		Algorithms:    []string{"ucp", "opt-stp"},
		Mode:          dispatch.ModeParallel,
		MaxBandwidth:  math.Inf(1),
		Started:       start,
		Finished:      start.Add(2 * time.Second),
	}))
	require.Len(t, w.points, 1)
	line := write.PointToLineProtocol(w.points[0], time.Second)
	assert.Contains(t, line, `algorithms="ucp,opt-stp"`)
	assert.NotContains(t, line, "max_bw")
}

func TestSpoolRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	spool := NewResultSpool("mixes", "abc123", "mixes", []string{"ucp"}, 8, math.Inf(1))
	require.NoError(t, spool.Emit(testRow()))

	path, err := WriteSpoolArtifact(fs, "/spool", spool.Artifact())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(path, "/spool/partsim_mixes_"))
	assert.True(t, strings.HasSuffix(path, "_abc123.json.gz"))

	entries, err := afero.ReadDir(fs, "/spool")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")

	got, err := ReadSpoolArtifact(fs, path)
	require.NoError(t, err)
	assert.Nil(t, got.MaxBandwidth)
	require.Len(t, got.Results, 1)
	res := got.Results[0]
	assert.Equal(t, 3, res.Ordinal)
	assert.Equal(t, 1.5, res.Metrics.STP)
	assert.Equal(t, testRow().Solution.Masks(), res.Solution.Masks())
}

func TestWriteSpoolArtifact_Nil(t *testing.T) {
	_, err := WriteSpoolArtifact(afero.NewMemMapFs(), "/spool", nil)
	require.Error(t, err)
}
