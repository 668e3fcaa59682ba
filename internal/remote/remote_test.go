package remote

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"partsim/internal/config"
	"partsim/internal/dispatch"
	"partsim/internal/partition"
	"partsim/internal/workload"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEmbeddedNATS(t *testing.T) *nats.Conn {
	t.Helper()

	ns, err := server.NewServer(&server.Options{
		Host:  "127.0.0.1",
		Port:  -1,
		NoLog: true,
	})
	require.NoError(t, err)
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		t.Fatal("embedded NATS server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL(), nats.Timeout(2*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("connect to embedded NATS: %v", err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func app(name string, base, step float64) *workload.Application {
	a := &workload.Application{Name: name}
	for w := 1; w <= 8; w++ {
		a.Metrics = append(a.Metrics, workload.WayMetrics{
			Ways:      w,
			IPC:       base + step*float64(w),
			Bandwidth: 10 / float64(w),
			LLCMPKI:   20 / float64(w),
		})
	}
	return a
}

func batch(algorithms ...string) dispatch.Batch {
	return dispatch.Batch{
		Workloads: []*workload.Workload{
			{Ordinal: 1, Apps: []*workload.Application{app("mcf", 0.2, 0.1), app("gcc", 1, 0.01)}},
			{Ordinal: 2, Apps: []*workload.Application{app("lbm", 0.5, 0.02), app("xz", 0.7, 0.08), app("gcc", 1, 0.01)}},
		},
		Algorithms:   algorithms,
		Range:        []int{0, 1},
		TotalWays:    8,
		MaxBandwidth: 12,
		Params:       partition.Params{Options: config.DefaultOptions()},
		ParSim:       true,
	}
}

func TestNATSPool_MatchesLocalPool(t *testing.T) {
	nc := startEmbeddedNATS(t)
	w := NewWorker(nc, "test.tasks")
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	tasks := dispatch.Tasks(batch("ucp", "opt-stp", "equal-part"))
	ctx := context.Background()

	remote, err := NewNATSPool(nc, "test.tasks", 5*time.Second, 2).Gather(ctx, tasks)
	require.NoError(t, err)
	local, err := dispatch.NewLocalPool(0).Gather(ctx, tasks)
	require.NoError(t, err)

	want := make(map[dispatch.Key]*partition.Solution, len(local))
	for _, o := range local {
		want[o.Key] = o.Solution
	}
	require.Len(t, remote, len(tasks))
	for _, o := range remote {
		require.NotNil(t, o.Solution, o.Key.String())
		assert.Equal(t, want[o.Key].Apps, o.Solution.Apps, o.Key.String())
	}
}

func TestNATSPool_UnlimitedBandwidth(t *testing.T) {
	nc := startEmbeddedNATS(t)
	w := NewWorker(nc, "test.tasks")
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	b := batch("ucp")
	b.MaxBandwidth = math.Inf(1)
	out, err := NewNATSPool(nc, "test.tasks", 5*time.Second, 0).Gather(context.Background(), dispatch.Tasks(b))
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestNATSPool_WorkerFailure(t *testing.T) {
	nc := startEmbeddedNATS(t)
	w := NewWorker(nc, "test.tasks")
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Stop() })

	// The user algorithm fails without an assignment.
	_, err := NewNATSPool(nc, "test.tasks", 5*time.Second, 1).Gather(context.Background(), dispatch.Tasks(batch("user")))
	require.Error(t, err)

	var terr *dispatch.TaskError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, "user", terr.Algorithm)
	var werr *WorkerError
	assert.True(t, errors.As(err, &werr))
}

func TestNATSPool_NoWorkers(t *testing.T) {
	nc := startEmbeddedNATS(t)

	_, err := NewNATSPool(nc, "nobody.home", time.Second, 0).Gather(context.Background(), dispatch.Tasks(batch("ucp")))
	require.Error(t, err)
	assert.True(t, errors.Is(err, nats.ErrNoResponders))
}

type rowCollector struct {
	rows []dispatch.Row
}

func (c *rowCollector) Emit(row dispatch.Row) error {
	c.rows = append(c.rows, row)
	return nil
}

func TestDispatcherOverNATS(t *testing.T) {
	nc := startEmbeddedNATS(t)
	for i := 0; i < 2; i++ {
		w := NewWorker(nc, "test.tasks")
		require.NoError(t, w.Start())
		t.Cleanup(func() { _ = w.Stop() })
	}

	b := batch("opt-unf", "ucp")
	var seq, par rowCollector
	sequential := b
	sequential.ParSim = false
	require.NoError(t, dispatch.New(nil).Evaluate(context.Background(), sequential, &seq))
	require.NoError(t, dispatch.New(NewNATSPool(nc, "test.tasks", 5*time.Second, 0)).Evaluate(context.Background(), b, &par))

	require.Len(t, par.rows, len(seq.rows))
	for i := range seq.rows {
		assert.Equal(t, seq.rows[i].Key, par.rows[i].Key)
		assert.Equal(t, seq.rows[i].Solution.Apps, par.rows[i].Solution.Apps)
	}
}
