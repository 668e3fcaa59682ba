package allocation

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"partsim/internal/logging"

	"github.com/intel/goresctrl/pkg/rdt"
	"github.com/sirupsen/logrus"
)

// goresctrl's rdt control is not safe for concurrent use.
var rdtMu sync.Mutex

type rdtClassConfig = struct {
	L2Allocation rdt.CatConfig         `json:"l2Allocation"`
	L3Allocation rdt.CatConfig         `json:"l3Allocation"`
	MBAllocation rdt.MbaConfig         `json:"mbAllocation"`
	Kubernetes   rdt.KubernetesOptions `json:"kubernetes"`
}

// ResctrlBackend implements RDTBackend using goresctrl.
type ResctrlBackend struct {
	logger      *logrus.Logger
	cacheIDs    []string
	initialized bool
	managed     map[string]*SocketAllocation
}

// NewResctrlBackend programs the given L3 cache ids; nil means all of them.
func NewResctrlBackend(cacheIDs []string) *ResctrlBackend {
	return &ResctrlBackend{
		logger:   logging.GetLogger(),
		cacheIDs: cacheIDs,
		managed:  make(map[string]*SocketAllocation),
	}
}

func (b *ResctrlBackend) Initialize() error {
	rdtMu.Lock()
	defer rdtMu.Unlock()

	if err := rdt.Initialize(""); err != nil {
		return fmt.Errorf("failed to initialize RDT: %w", err)
	}
	b.logger.Info("Initializing RDT backend")
	b.initialized = true
	return nil
}

func (b *ResctrlBackend) CreateAllRDTClasses(classes map[string]*SocketAllocation) error {
	if !b.initialized {
		return fmt.Errorf("RDT backend not initialized")
	}

	rdtMu.Lock()
	defer rdtMu.Unlock()

	b.managed = make(map[string]*SocketAllocation, len(classes))
	for name, alloc := range classes {
		b.managed[name] = alloc
	}
	return b.applyManagedConfigLocked(false)
}

func (b *ResctrlBackend) AssignPIDToClass(pid int, className string) error {
	if !b.initialized {
		return fmt.Errorf("RDT backend not initialized")
	}

	rdtMu.Lock()
	defer rdtMu.Unlock()

	ctrlGroup, exists := rdt.GetClass(className)
	if !exists {
		return fmt.Errorf("RDT class %s not found", className)
	}
	if err := ctrlGroup.AddPids(strconv.Itoa(pid)); err != nil {
		return fmt.Errorf("failed to assign PID %d to RDT class %s: %w", pid, className, err)
	}

	b.logger.WithFields(logrus.Fields{
		"pid":   pid,
		"class": className,
	}).Debug("PID assigned to RDT class")
	return nil
}

func (b *ResctrlBackend) Cleanup() error {
	if !b.initialized {
		return nil
	}

	rdtMu.Lock()
	defer rdtMu.Unlock()

	b.managed = make(map[string]*SocketAllocation)
	if err := b.applyManagedConfigLocked(true); err != nil {
		return fmt.Errorf("failed to reset RDT config: %w", err)
	}
	b.initialized = false
	b.logger.Debug("RDT backend cleanup completed")
	return nil
}

func (b *ResctrlBackend) applyManagedConfigLocked(force bool) error {
	config := buildRDTConfig(b.managed, b.cacheIDs)
	if err := rdt.SetConfig(config, force); err != nil {
		return fmt.Errorf("failed to apply RDT classes: %w", err)
	}
	b.logger.WithField("classes", len(b.managed)).Debug("RDT configuration applied")
	return nil
}

// buildRDTConfig builds a single-partition goresctrl config holding every
// managed class.
func buildRDTConfig(classes map[string]*SocketAllocation, cacheIDs []string) *rdt.Config {
	if len(cacheIDs) == 0 {
		cacheIDs = []string{rdt.CacheIdAll}
	}

	configClasses := make(map[string]rdtClassConfig, len(classes))
	for name, alloc := range classes {
		l3 := rdt.CatConfig{}
		mb := rdt.MbaConfig{}
		if alloc != nil {
			for _, id := range cacheIDs {
				if alloc.L3Bitmask != "" {
					l3[id] = rdt.CacheIdCatConfig{Unified: rdt.CacheProportion(alloc.L3Bitmask)}
				}
				if alloc.MemBandwidth > 0 {
					mb[id] = rdt.CacheIdMbaConfig{rdt.MbProportion(fmt.Sprintf("%.0f%%", alloc.MemBandwidth))}
				}
			}
		}
		configClasses[name] = rdtClassConfig{L3Allocation: l3, MBAllocation: mb}
	}

	return &rdt.Config{
		Partitions: map[string]struct {
			L2Allocation rdt.CatConfig `json:"l2Allocation"`
			L3Allocation rdt.CatConfig `json:"l3Allocation"`
			MBAllocation rdt.MbaConfig `json:"mbAllocation"`
			Classes      map[string]struct {
				L2Allocation rdt.CatConfig         `json:"l2Allocation"`
				L3Allocation rdt.CatConfig         `json:"l3Allocation"`
				MBAllocation rdt.MbaConfig         `json:"mbAllocation"`
				Kubernetes   rdt.KubernetesOptions `json:"kubernetes"`
			} `json:"classes"`
		}{
			"": {
				L3Allocation: rdt.CatConfig{
					rdt.CacheIdAll: rdt.CacheIdCatConfig{Unified: rdt.CacheProportion("100%")},
				},
				MBAllocation: rdt.MbaConfig{
					rdt.CacheIdAll: rdt.CacheIdMbaConfig{rdt.MbProportion("100%")},
				},
				Classes: configClasses,
			},
		},
	}
}

// BuildClassPlan groups applications by cluster and derives one class per
// cluster, named <prefix>_c<cluster>. Applications without a cluster id get
// a class of their own.
func BuildClassPlan(prefix string, apps []string, masks []Bitmask, clusterIDs []int) ([]ClassAllocation, error) {
	if len(apps) != len(masks) {
		return nil, fmt.Errorf("got %d masks for %d applications", len(masks), len(apps))
	}
	if clusterIDs != nil && len(clusterIDs) != len(apps) {
		return nil, fmt.Errorf("got %d cluster ids for %d applications", len(clusterIDs), len(apps))
	}

	byCluster := make(map[int]*ClassAllocation)
	for i, app := range apps {
		id := i
		if clusterIDs != nil {
			id = clusterIDs[i]
		}
		class, ok := byCluster[id]
		if !ok {
			class = &ClassAllocation{
				Name: fmt.Sprintf("%s_c%d", sanitizeName(prefix), id),
				Mask: masks[i],
			}
			byCluster[id] = class
		} else if class.Mask != masks[i] {
			return nil, fmt.Errorf("cluster %d: application %s has mask %s, class has %s", id, app, masks[i], class.Mask)
		}
		if masks[i] == 0 || !masks[i].Contiguous() {
			return nil, fmt.Errorf("application %s: mask %s is not a contiguous non-empty mask", app, masks[i])
		}
		class.Apps = append(class.Apps, app)
	}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	plan := make([]ClassAllocation, 0, len(ids))
	for _, id := range ids {
		plan = append(plan, *byCluster[id])
	}
	return plan, nil
}

// Enforcer programs class plans through an RDTBackend.
type Enforcer struct {
	backend RDTBackend
	logger  *logrus.Logger
	classOf map[string]string
}

func NewEnforcer(backend RDTBackend) *Enforcer {
	return &Enforcer{
		backend: backend,
		logger:  logging.GetLogger(),
		classOf: make(map[string]string),
	}
}

// Apply initializes the backend and creates every class of the plan in a
// single configuration update.
func (e *Enforcer) Apply(plan []ClassAllocation) error {
	if err := e.backend.Initialize(); err != nil {
		return err
	}

	classes := make(map[string]*SocketAllocation, len(plan))
	for _, class := range plan {
		classes[class.Name] = &SocketAllocation{L3Bitmask: class.Mask.Hex()}
		for _, app := range class.Apps {
			e.classOf[app] = class.Name
		}
	}
	if err := e.backend.CreateAllRDTClasses(classes); err != nil {
		return fmt.Errorf("failed to create RDT classes: %w", err)
	}

	e.logger.WithField("classes", len(plan)).Info("RDT classes created")
	return nil
}

// Bind moves each PID into the class of the named application.
func (e *Enforcer) Bind(pids map[string]int) error {
	names := make([]string, 0, len(pids))
	for app := range pids {
		names = append(names, app)
	}
	sort.Strings(names)

	for _, app := range names {
		className, ok := e.classOf[app]
		if !ok {
			return fmt.Errorf("application %s is not part of the applied plan", app)
		}
		if err := e.backend.AssignPIDToClass(pids[app], className); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup removes every class created by Apply.
func (e *Enforcer) Cleanup() error {
	e.classOf = make(map[string]string)
	return e.backend.Cleanup()
}

// sanitizeName sanitizes a string for use in resctrl class names.
func sanitizeName(s string) string {
	result := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(c >= '0' && c <= '9') || c == '_' || c == '-' || c == '.' {
			result = append(result, c)
		} else {
			result = append(result, '_')
		}
	}
	return string(result)
}
