package partition

import (
	"fmt"
	"math"

	"partsim/internal/workload"

	"github.com/sourcegraph/conc/pool"
)

func minWaysOf(p Params) int {
	if p.Options.MinWays < 1 {
		return 1
	}
	return p.Options.MinWays
}

func checkCapacity(wl *workload.Workload, totalWays, minWays int) error {
	if need := wl.Len() * minWays; totalWays < need {
		return fmt.Errorf("%d applications need at least %d ways, cache has %d", wl.Len(), need, totalWays)
	}
	return nil
}

// equalPart splits the cache evenly, handing the remainder to the first
// applications.
type equalPart struct{}

func (equalPart) Kind() Kind { return KindEqualPart }

func (equalPart) Partition(wl *workload.Workload, totalWays int, _ float64, p Params) (Allocation, error) {
	if err := checkCapacity(wl, totalWays, minWaysOf(p)); err != nil {
		return Allocation{}, err
	}
	n := wl.Len()
	ways := make([]int, n)
	for i := range ways {
		ways[i] = totalWays / n
		if i < totalWays%n {
			ways[i]++
		}
	}
	return Allocation{Ways: ways}, nil
}

// ucp is utility-based cache partitioning with the lookahead allocator.
// Utility is the reduction in LLC misses per kilo-instruction; applications
// profiled without miss counts fall back to normalized IPC gain.
type ucp struct{}

func (ucp) Kind() Kind { return KindUCP }

func (ucp) Partition(wl *workload.Workload, totalWays int, _ float64, p Params) (Allocation, error) {
	minWays := minWaysOf(p)
	if err := checkCapacity(wl, totalWays, minWays); err != nil {
		return Allocation{}, err
	}

	ways := make([]int, wl.Len())
	for i := range ways {
		ways[i] = minWays
	}

	balance := totalWays - wl.Len()*minWays
	for balance > 0 {
		winner, winnerWays := -1, 0
		bestMU := math.Inf(-1)
		for i, app := range wl.Apps {
			for k := 1; k <= balance; k++ {
				u, err := utility(app, ways[i], ways[i]+k)
				if err != nil {
					return Allocation{}, err
				}
				if mu := u / float64(k); mu > bestMU {
					winner, winnerWays, bestMU = i, k, mu
				}
			}
		}
		ways[winner] += winnerWays
		balance -= winnerWays
	}
	return Allocation{Ways: ways}, nil
}

func utility(app *workload.Application, from, to int) (float64, error) {
	a, err := app.At(from)
	if err != nil {
		return 0, err
	}
	b, err := app.At(to)
	if err != nil {
		return 0, err
	}
	if hasMissCurve(app) {
		return a.LLCMPKI - b.LLCMPKI, nil
	}
	alone := app.Alone().IPC
	if alone <= 0 {
		return 0, nil
	}
	return (b.IPC - a.IPC) / alone, nil
}

func hasMissCurve(app *workload.Application) bool {
	for _, m := range app.Metrics {
		if m.LLCMPKI > 0 {
			return true
		}
	}
	return false
}

// optimal exhaustively searches every distribution of the whole cache and
// keeps the first one no other distribution beats.
type optimal struct {
	kind   Kind
	better func(a, b BasicMetrics) bool
}

func higherSTP(a, b BasicMetrics) bool {
	return a.STP > b.STP
}

func lowerUnfairness(a, b BasicMetrics) bool {
	if a.Unfairness != b.Unfairness {
		return a.Unfairness < b.Unfairness
	}
	return a.STP > b.STP
}

type candidate struct {
	ways    []int
	metrics BasicMetrics
	found   bool
}

func (o optimal) Kind() Kind { return o.kind }

func (o optimal) Partition(wl *workload.Workload, totalWays int, maxBW float64, p Params) (Allocation, error) {
	minWays := minWaysOf(p)
	if err := checkCapacity(wl, totalWays, minWays); err != nil {
		return Allocation{}, err
	}

	s := &searcher{
		wl:      wl,
		maxBW:   maxBW,
		bwModel: p.Options.BWModel,
		minWays: minWays,
		better:  o.better,
	}

	var best candidate
	var err error
	if p.Parallel && wl.Len() > 1 {
		best, err = s.searchParallel(totalWays, p.Options.SearchWorkers)
	} else {
		err = s.search(nil, wl.Len(), totalWays, &best)
	}
	if err != nil {
		return Allocation{}, err
	}
	if !best.found {
		return Allocation{}, fmt.Errorf("no feasible distribution of %d ways", totalWays)
	}
	return Allocation{Ways: best.ways}, nil
}

type searcher struct {
	wl      *workload.Workload
	maxBW   float64
	bwModel string
	minWays int
	better  func(a, b BasicMetrics) bool
}

// search enumerates distributions in lexicographic order of way counts.
func (s *searcher) search(prefix []int, apps, ways int, best *candidate) error {
	if apps == 1 {
		dist := append(append([]int(nil), prefix...), ways)
		results, err := estimate(s.wl, dist, s.maxBW, s.bwModel)
		if err != nil {
			return err
		}
		m := metricsOf(results, s.maxBW)
		if !best.found || s.better(m, best.metrics) {
			*best = candidate{ways: dist, metrics: m, found: true}
		}
		return nil
	}

	for w := s.minWays; w <= ways-(apps-1)*s.minWays; w++ {
		if err := s.search(append(prefix, w), apps-1, ways-w, best); err != nil {
			return err
		}
	}
	return nil
}

// searchParallel splits the search on the ways of the first application and
// reduces the branch winners in branch order, so the result matches search.
func (s *searcher) searchParallel(totalWays, workers int) (candidate, error) {
	apps := s.wl.Len()
	maxFirst := totalWays - (apps-1)*s.minWays
	branches := make([]candidate, maxFirst-s.minWays+1)
	if workers <= 0 {
		workers = len(branches)
	}

	p := pool.New().WithErrors().WithFirstError().WithMaxGoroutines(workers)
	for i := range branches {
		i := i
		first := s.minWays + i
		p.Go(func() error {
			return s.search([]int{first}, apps-1, totalWays-first, &branches[i])
		})
	}
	if err := p.Wait(); err != nil {
		return candidate{}, err
	}

	var best candidate
	for _, c := range branches {
		if c.found && (!best.found || s.better(c.metrics, best.metrics)) {
			best = c
		}
	}
	return best, nil
}

// userDefined replays the decoded user assignment of the workload.
type userDefined struct{}

func (userDefined) Kind() Kind { return KindUser }

func (userDefined) Partition(wl *workload.Workload, _ int, _ float64, p Params) (Allocation, error) {
	ua := p.UserAssignment
	if ua == nil {
		return Allocation{}, fmt.Errorf("no user assignment for workload %s", p.WorkloadName)
	}
	if ua.Len() != wl.Len() {
		return Allocation{}, fmt.Errorf("user assignment covers %d applications, workload has %d", ua.Len(), wl.Len())
	}
	return Allocation{
		Ways:         append([]int(nil), ua.Ways...),
		Masks:        append(ua.Masks[:0:0], ua.Masks...),
		ClusterIDs:   append([]int(nil), ua.ClusterIDs...),
		ClusterWays:  append([]int(nil), ua.ClusterWays...),
		ClusterMasks: append(ua.ClusterMasks[:0:0], ua.ClusterMasks...),
	}, nil
}
