package partition

import (
	"errors"
	"math"
	"testing"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/workload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp(name string, ipc, bw, mpki []float64) *workload.Application {
	app := &workload.Application{Name: name}
	for i := range ipc {
		m := workload.WayMetrics{Ways: i + 1, IPC: ipc[i]}
		if bw != nil {
			m.Bandwidth = bw[i]
		}
		if mpki != nil {
			m.LLCMPKI = mpki[i]
		}
		app.Metrics = append(app.Metrics, m)
	}
	return app
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func linear(from, step float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = from + step*float64(i)
	}
	return out
}

func defaultParams() Params {
	return Params{Options: config.DefaultOptions()}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"equal-part", "ucp", "opt-stp", "opt-unf", "user"}, Names())
	for _, name := range Names() {
		k, err := ParseKind(name)
		require.NoError(t, err)
		assert.Equal(t, name, k.String())
	}
}

func TestResolveAll_UnknownAlgorithm(t *testing.T) {
	_, err := ResolveAll([]string{"ucp", "whirlpool", "opt-stp"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
	assert.True(t, errors.Is(err, config.ErrConfiguration))
	assert.Contains(t, err.Error(), "whirlpool")

	algs, err := ResolveAll([]string{"opt-unf", "ucp"})
	require.NoError(t, err)
	assert.Equal(t, KindOptUnfairness, algs[0].Kind())
	assert.Equal(t, KindUCP, algs[1].Kind())
}

func TestApply_UnknownAlgorithm(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{newApp("a", flat(1, 4), nil, nil)}}
	_, err := Apply("nope", wl, 4, math.Inf(1), defaultParams())
	assert.True(t, errors.Is(err, ErrUnknownAlgorithm))
}

func TestEqualPart(t *testing.T) {
	wl := &workload.Workload{Ordinal: 2, Apps: []*workload.Application{
		newApp("a", linear(1, 0.1, 20), nil, nil),
		newApp("b", linear(1, 0.1, 20), nil, nil),
		newApp("c", linear(1, 0.1, 20), nil, nil),
	}}

	sol, err := Apply("equal-part", wl, 20, math.Inf(1), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, "equal-part", sol.Algorithm)
	assert.Equal(t, "W2", sol.WorkloadName)
	assert.Equal(t, 20, sol.TotalWays)

	ways := []int{sol.Apps[0].Ways, sol.Apps[1].Ways, sol.Apps[2].Ways}
	assert.Equal(t, []int{7, 7, 6}, ways)
	assert.Equal(t, []allocation.Bitmask{0xfe000, 0x01fc0, 0x0003f}, sol.Masks())
	assert.Equal(t, 1, sol.Apps[1].ClusterID)
}

func TestEqualPart_NotEnoughWays(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("a", flat(1, 4), nil, nil),
		newApp("b", flat(1, 4), nil, nil),
	}}
	p := defaultParams()
	p.Options.MinWays = 3
	_, err := Apply("equal-part", wl, 4, math.Inf(1), p)
	assert.Error(t, err)
}

func TestUCP_FavoursSteepMissCurve(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("hungry", linear(1, 0.2, 8), nil, []float64{40, 30, 20, 10, 5, 4, 3, 2}),
		newApp("flat", flat(1, 8), nil, flat(5, 8)),
	}}

	sol, err := Apply("ucp", wl, 8, math.Inf(1), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, 7, sol.Apps[0].Ways)
	assert.Equal(t, 1, sol.Apps[1].Ways)
}

func TestUCP_FallsBackToIPC(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("flat", flat(1, 6), nil, nil),
		newApp("scaling", linear(1, 0.5, 6), nil, nil),
	}}

	sol, err := Apply("ucp", wl, 6, math.Inf(1), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, 1, sol.Apps[0].Ways)
	assert.Equal(t, 5, sol.Apps[1].Ways)
}

func twoAppWorkload() *workload.Workload {
	return &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("a", []float64{1, 2, 3, 4}, nil, nil),
		newApp("b", []float64{1, 1.8, 1.9, 2.0}, nil, nil),
	}}
}

func TestOptimal_STPAndUnfairness(t *testing.T) {
	sol, err := Apply("opt-stp", twoAppWorkload(), 4, math.Inf(1), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, 2, sol.Apps[0].Ways)
	assert.Equal(t, 2, sol.Apps[1].Ways)

	sol, err = Apply("opt-unf", twoAppWorkload(), 4, math.Inf(1), defaultParams())
	require.NoError(t, err)
	assert.Equal(t, 3, sol.Apps[0].Ways)
	assert.Equal(t, 1, sol.Apps[1].Ways)
}

func TestOptimal_ParallelMatchesSequential(t *testing.T) {
	wl := &workload.Workload{Ordinal: 4, Apps: []*workload.Application{
		newApp("a", []float64{0.5, 0.9, 1.2, 1.4, 1.5, 1.55, 1.6, 1.6, 1.6, 1.6}, linear(4, -0.2, 10), nil),
		newApp("b", linear(1, 0.05, 10), linear(2, 0, 10), nil),
		newApp("c", []float64{0.3, 0.6, 0.8, 1.0, 1.1, 1.2, 1.25, 1.3, 1.3, 1.3}, linear(6, -0.4, 10), nil),
	}}

	for _, name := range []string{"opt-stp", "opt-unf"} {
		seq, err := Apply(name, wl, 10, 9, defaultParams())
		require.NoError(t, err)

		p := defaultParams()
		p.Parallel = true
		p.Options.SearchWorkers = 2
		par, err := Apply(name, wl, 10, 9, p)
		require.NoError(t, err)

		for i := range seq.Apps {
			assert.Equal(t, seq.Apps[i].Ways, par.Apps[i].Ways, "%s app %d", name, i)
		}
		assert.Equal(t, seq.Masks(), par.Masks())
	}
}

func TestUser(t *testing.T) {
	wl := &workload.Workload{Ordinal: 3, Apps: []*workload.Application{
		newApp("a", linear(1, 0.1, 12), nil, nil),
		newApp("b", linear(1, 0.1, 12), nil, nil),
		newApp("c", linear(1, 0.1, 12), nil, nil),
	}}
	decoded, err := allocation.DecodeUserAssignment("0,1,0;4,8", allocation.NewPackedMaskGenerator(12))
	require.NoError(t, err)

	p := defaultParams()
	p.UserAssignment = &decoded[0]
	sol, err := Apply("user", wl, 12, math.Inf(1), p)
	require.NoError(t, err)

	ids, ways, masks := sol.Clusters()
	assert.Equal(t, []int{0, 1, 0}, ids)
	assert.Equal(t, []int{4, 8}, ways)
	assert.Equal(t, []allocation.Bitmask{0xf00, 0x0ff}, masks)
	assert.Equal(t, 4, sol.Apps[2].Ways)
}

func TestUser_UnreferencedClusterKeepsItsWays(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("a", linear(1, 0.1, 12), nil, nil),
		newApp("b", linear(1, 0.1, 12), nil, nil),
	}}
	decoded, err := allocation.DecodeUserAssignment("0,2;4,4,4", allocation.NewPackedMaskGenerator(12))
	require.NoError(t, err)

	p := defaultParams()
	p.UserAssignment = &decoded[0]
	sol, err := Apply("user", wl, 12, math.Inf(1), p)
	require.NoError(t, err)

	ids, ways, masks := sol.Clusters()
	assert.Equal(t, []int{0, 2}, ids)
	assert.Equal(t, []int{4, 4, 4}, ways)
	assert.Equal(t, []allocation.Bitmask{0xf00, 0x0f0, 0x00f}, masks)
}

func TestClusters_OnePerApplicationForBuiltinAlgorithms(t *testing.T) {
	sol, err := Apply("equal-part", twoAppWorkload(), 4, math.Inf(1), defaultParams())
	require.NoError(t, err)

	ids, ways, masks := sol.Clusters()
	assert.Equal(t, []int{0, 1}, ids)
	assert.Equal(t, []int{2, 2}, ways)
	assert.Equal(t, sol.Masks(), masks)
}

func TestUser_Errors(t *testing.T) {
	wl := twoAppWorkload()

	_, err := Apply("user", wl, 4, math.Inf(1), defaultParams())
	assert.Error(t, err, "missing assignment")

	p := defaultParams()
	p.UserAssignment = &allocation.UserAssignment{Ways: []int{4}, Masks: []allocation.Bitmask{0xf}, ClusterIDs: []int{0}}
	_, err = Apply("user", wl, 4, math.Inf(1), p)
	assert.Error(t, err, "application count mismatch")
}

func TestEstimate_BandwidthModel(t *testing.T) {
	wl := &workload.Workload{Ordinal: 1, Apps: []*workload.Application{
		newApp("a", flat(2, 4), flat(6, 4), nil),
		newApp("b", flat(1, 4), flat(6, 4), nil),
	}}

	apps, err := estimate(wl, []int{2, 2}, 8, config.BWModelSimple)
	require.NoError(t, err)
	assert.InDelta(t, 4.0/3.0, apps[0].IPC, 1e-9)
	assert.InDelta(t, 4.0, apps[0].Bandwidth, 1e-9)
	assert.InDelta(t, 1.5, apps[0].Slowdown, 1e-9)

	apps, err = estimate(wl, []int{2, 2}, 8, config.BWModelNone)
	require.NoError(t, err)
	assert.Equal(t, 2.0, apps[0].IPC)
	assert.Equal(t, 1.0, apps[0].Slowdown)

	_, err = estimate(wl, []int{2}, 8, config.BWModelSimple)
	assert.Error(t, err)
}

func TestComputeBasicMetrics(t *testing.T) {
	sol := &Solution{Apps: []AppResult{
		{Name: "a", Slowdown: 2, Bandwidth: 5},
		{Name: "b", Slowdown: 1, Bandwidth: 7},
	}}

	m := ComputeBasicMetrics(sol, math.Inf(1))
	assert.InDelta(t, 1.5, m.STP, 1e-12)
	assert.InDelta(t, 1.5, m.ANTT, 1e-12)
	assert.InDelta(t, 2.0, m.Unfairness, 1e-12)
	assert.InDelta(t, 12.0, m.Bandwidth, 1e-12)

	assert.InDelta(t, 10.0, ComputeBasicMetrics(sol, 10).Bandwidth, 1e-12)
	assert.Equal(t, BasicMetrics{}, ComputeBasicMetrics(nil, 10))
}
