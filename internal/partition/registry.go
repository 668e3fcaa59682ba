package partition

import (
	"fmt"
	"time"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/logging"
	"partsim/internal/workload"

	"github.com/sirupsen/logrus"
)

// ErrUnknownAlgorithm is returned for names outside the registered set.
var ErrUnknownAlgorithm = fmt.Errorf("%w: unknown partitioning algorithm", config.ErrConfiguration)

// Kind identifies one of the registered partitioning algorithms.
type Kind int

const (
	KindEqualPart Kind = iota
	KindUCP
	KindOptSTP
	KindOptUnfairness
	KindUser
	numKinds
)

var kindNames = [numKinds]string{
	KindEqualPart:     "equal-part",
	KindUCP:           "ucp",
	KindOptSTP:        "opt-stp",
	KindOptUnfairness: "opt-unf",
	KindUser:          "user",
}

func (k Kind) String() string {
	if k < 0 || k >= numKinds {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind resolves an algorithm name.
func ParseKind(name string) (Kind, error) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
}

// Params are the evaluation settings shared by every algorithm.
type Params struct {
	// Parallel enables intra-algorithm parallelism where supported.
	Parallel     bool
	Debugging    bool
	Options      config.Options
	WorkloadName string
	// UserAssignment is the decoded user partition for this workload, used by
	// the user algorithm only.
	UserAssignment *allocation.UserAssignment
}

// Allocation is the way distribution an algorithm decides on. Masks and
// ClusterIDs are optional; when absent every application forms its own
// cluster and masks are packed in application order. ClusterWays and
// ClusterMasks describe every cluster by id when ClusterIDs is set.
type Allocation struct {
	Ways         []int
	Masks        []allocation.Bitmask
	ClusterIDs   []int
	ClusterWays  []int
	ClusterMasks []allocation.Bitmask
}

// Algorithm is a partitioning policy.
type Algorithm interface {
	Kind() Kind
	Partition(wl *workload.Workload, totalWays int, maxBW float64, p Params) (Allocation, error)
}

var registry [numKinds]Algorithm

func register(a Algorithm) {
	registry[a.Kind()] = a
}

func init() {
	register(equalPart{})
	register(ucp{})
	register(optimal{kind: KindOptSTP, better: higherSTP})
	register(optimal{kind: KindOptUnfairness, better: lowerUnfairness})
	register(userDefined{})
}

// Names lists the registered algorithms.
func Names() []string {
	names := make([]string, 0, numKinds)
	for _, a := range registry {
		if a != nil {
			names = append(names, a.Kind().String())
		}
	}
	return names
}

// Lookup returns the algorithm registered under name.
func Lookup(name string) (Algorithm, error) {
	k, err := ParseKind(name)
	if err != nil {
		return nil, err
	}
	a := registry[k]
	if a == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return a, nil
}

// ResolveAll checks every name before anything is evaluated.
func ResolveAll(names []string) ([]Algorithm, error) {
	algs := make([]Algorithm, len(names))
	for i, name := range names {
		a, err := Lookup(name)
		if err != nil {
			return nil, err
		}
		algs[i] = a
	}
	return algs, nil
}

// Apply evaluates the named algorithm on a workload.
func Apply(name string, wl *workload.Workload, totalWays int, maxBW float64, p Params) (*Solution, error) {
	a, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return Run(a, wl, totalWays, maxBW, p)
}

// Run evaluates a resolved algorithm on a workload.
func Run(a Algorithm, wl *workload.Workload, totalWays int, maxBW float64, p Params) (*Solution, error) {
	logger := logging.GetLogger()
	if wl == nil || wl.Len() == 0 {
		return nil, fmt.Errorf("%s: empty workload", a.Kind())
	}
	if p.WorkloadName == "" {
		p.WorkloadName = wl.Name()
	}

	start := time.Now()
	alloc, err := a.Partition(wl, totalWays, maxBW, p)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", a.Kind(), p.WorkloadName, err)
	}

	apps, clusters, err := realize(wl, totalWays, maxBW, p.Options.BWModel, alloc)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", a.Kind(), p.WorkloadName, err)
	}

	sol := &Solution{
		Algorithm:    a.Kind().String(),
		WorkloadName: p.WorkloadName,
		TotalWays:    totalWays,
		Apps:         apps,
		ClusterWays:  clusters.ClusterWays,
		ClusterMasks: clusters.ClusterMasks,
		Elapsed:      time.Since(start),
	}

	if p.Debugging {
		logger.WithFields(logrus.Fields{
			"workload":  p.WorkloadName,
			"algorithm": sol.Algorithm,
			"ways":      alloc.Ways,
			"elapsed":   sol.Elapsed,
		}).Debug("Partition computed")
	}
	return sol, nil
}

// realize attaches masks and cluster ids to an allocation and evaluates it
// with the performance model. The returned allocation carries the ways and
// mask of every cluster.
func realize(wl *workload.Workload, totalWays int, maxBW float64, bwModel string, alloc Allocation) ([]AppResult, Allocation, error) {
	apps, err := estimate(wl, alloc.Ways, maxBW, bwModel)
	if err != nil {
		return nil, Allocation{}, err
	}

	masks := alloc.Masks
	if masks == nil {
		masks, err = allocation.NewPackedMaskGenerator(totalWays)(alloc.Ways)
		if err != nil {
			return nil, Allocation{}, err
		}
	}
	if len(masks) != len(apps) {
		return nil, Allocation{}, fmt.Errorf("got %d masks for %d applications", len(masks), len(apps))
	}
	if alloc.ClusterIDs != nil && len(alloc.ClusterIDs) != len(apps) {
		return nil, Allocation{}, fmt.Errorf("got %d cluster ids for %d applications", len(alloc.ClusterIDs), len(apps))
	}
	if len(alloc.ClusterWays) != len(alloc.ClusterMasks) {
		return nil, Allocation{}, fmt.Errorf("got %d cluster masks for %d clusters", len(alloc.ClusterMasks), len(alloc.ClusterWays))
	}

	for i := range apps {
		apps[i].Mask = masks[i]
		if alloc.ClusterIDs != nil {
			if alloc.ClusterIDs[i] < 0 {
				return nil, Allocation{}, fmt.Errorf("application %s: negative cluster id %d", apps[i].Name, alloc.ClusterIDs[i])
			}
			apps[i].ClusterID = alloc.ClusterIDs[i]
		}
	}

	clusters := Allocation{
		ClusterWays:  append([]int(nil), alloc.ClusterWays...),
		ClusterMasks: append([]allocation.Bitmask(nil), alloc.ClusterMasks...),
	}
	if alloc.ClusterWays == nil {
		n := 0
		for _, app := range apps {
			if app.ClusterID+1 > n {
				n = app.ClusterID + 1
			}
		}
		clusters.ClusterWays = make([]int, n)
		clusters.ClusterMasks = make([]allocation.Bitmask, n)
		for _, app := range apps {
			clusters.ClusterWays[app.ClusterID] = app.Ways
			clusters.ClusterMasks[app.ClusterID] = app.Mask
		}
	}
	for _, app := range apps {
		if app.ClusterID >= len(clusters.ClusterWays) {
			return nil, Allocation{}, fmt.Errorf("application %s: cluster id %d out of range [0, %d)", app.Name, app.ClusterID, len(clusters.ClusterWays))
		}
	}
	return apps, clusters, nil
}
