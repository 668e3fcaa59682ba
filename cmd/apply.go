package cmd

import (
	"fmt"
	"io"
	"math"
	"strings"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/dataparser"
	"partsim/internal/host"
	"partsim/internal/logging"
	"partsim/internal/partition"
	"partsim/internal/workload"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type applyFlags struct {
	workloadFile string
	summaryFile  string
	harness      bool
	algorithm    string
	workload     int
	forceWays    int
	maxBandwidth float64
	bwModel      string
	options      []string
	pids         map[string]int
	cacheIDs     []string
	dryRun       bool
	reset        bool
}

func newApplyCmd() *cobra.Command {
	f := &applyFlags{}
	defaults := config.DefaultExperimentConfig()

	applyCmd := &cobra.Command{
		Use:   "apply WORKLOAD_FILE",
		Short: "Program the partition of one workload into RDT classes",
		Long:  "Evaluates one algorithm on one workload and programs the resulting way masks as resctrl classes, one class per cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.workloadFile = args[0]
			return runApply(afero.NewOsFs(), cmd.OutOrStdout(), allocation.NewResctrlBackend(f.cacheIDs), f)
		},
	}

	flags := applyCmd.Flags()
	flags.StringVarP(&f.summaryFile, "summary-file", "s", defaults.Simulation.SummaryFile, "File with the data collected offline for every benchmark")
	flags.BoolVarP(&f.harness, "harness", "H", false, "Use harness workload file as input")
	flags.StringVarP(&f.algorithm, "algorithm", "a", "ucp", "Partitioning algorithm")
	flags.IntVar(&f.workload, "workload", 1, "Workload to apply (1-based)")
	flags.IntVarP(&f.forceWays, "force-ways", "w", 0, "Force number of ways of the cache")
	flags.Float64VarP(&f.maxBandwidth, "max-bandwidth", "b", math.Inf(1), "Max bandwidth observed for the target machine")
	flags.StringVarP(&f.bwModel, "bw-model", "m", defaults.Simulation.BWModel, "Bandwidth model to apply (simple, none)")
	flags.StringArrayVarP(&f.options, "option", "O", nil, "Algorithm-specific option key=val (repeatable)")
	flags.StringToIntVar(&f.pids, "pid", nil, "Bind a process to the class of an application (app=pid, repeatable)")
	flags.StringSliceVar(&f.cacheIDs, "cache-ids", nil, "L3 cache ids to program (default all)")
	flags.BoolVar(&f.dryRun, "dry-run", false, "Print the class plan without touching resctrl")
	flags.BoolVar(&f.reset, "reset", false, "Remove the classes created by a previous apply")
	return applyCmd
}

func runApply(fs afero.Fs, w io.Writer, backend allocation.RDTBackend, f *applyFlags) error {
	logger := logging.GetLogger()
	enforcer := allocation.NewEnforcer(backend)

	if f.reset {
		if err := backend.Initialize(); err != nil {
			return err
		}
		if err := enforcer.Cleanup(); err != nil {
			return err
		}
		logger.Info("RDT classes removed")
		return nil
	}

	opts, err := config.ParseOptions(append(append([]string(nil), f.options...), "bw_model="+f.bwModel))
	if err != nil {
		return err
	}

	var table *workload.Table
	if f.harness {
		benchs, err := dataparser.ParseHarnessFile(fs, f.workloadFile)
		if err != nil {
			return err
		}
		table, err = dataparser.LoadWorkloadsFromList(fs, f.summaryFile, [][]string{benchs}, ',')
		if err != nil {
			return err
		}
	} else {
		table, err = dataparser.LoadWorkloadsFromCSV(fs, f.summaryFile, f.workloadFile, ',')
		if err != nil {
			return err
		}
	}

	idx, err := config.ParseRange(fmt.Sprintf("%d", f.workload), table.Len())
	if err != nil {
		return err
	}
	wl := table.Workloads[idx[0]]

	sim := config.SimulationConfig{ForceWays: f.forceWays}
	totalWays := sim.EffectiveWays(table.TotalWays)
	params := partition.Params{Options: opts, WorkloadName: wl.Name()}
	if f.algorithm == partition.KindUser.String() {
		if opts.UserFile == "" {
			return fmt.Errorf("%w: algorithm \"user\" requires the user_file option", config.ErrConfiguration)
		}
		assignments, err := allocation.LoadUserAssignment(fs, opts.UserFile, allocation.NewPackedMaskGenerator(totalWays))
		if err != nil {
			return err
		}
		if idx[0] >= len(assignments) {
			return fmt.Errorf("%w: %s has no assignment for %s", config.ErrConfiguration, opts.UserFile, wl.Name())
		}
		params.UserAssignment = &assignments[idx[0]]
	}

	sol, err := partition.Apply(f.algorithm, wl, totalWays, f.maxBandwidth, params)
	if err != nil {
		return err
	}

	ids, _, _ := sol.Clusters()
	plan, err := allocation.BuildClassPlan("partsim_"+wl.Name(), wl.AppNames(), sol.Masks(), ids)
	if err != nil {
		return err
	}
	for _, class := range plan {
		if _, err := fmt.Fprintf(w, "%s %s %s\n", class.Name, class.Mask, strings.Join(class.Apps, ",")); err != nil {
			return err
		}
	}

	if f.dryRun {
		return nil
	}
	if err := checkHostCache(fs, totalWays, plan); err != nil {
		return err
	}
	if err := enforcer.Apply(plan); err != nil {
		return err
	}
	if err := enforcer.Bind(f.pids); err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"workload":  wl.Name(),
		"algorithm": f.algorithm,
		"classes":   len(plan),
		"pids":      len(f.pids),
	}).Info("Partition applied")
	return nil
}

// checkHostCache rejects plans the host L3 cannot hold. Hosts without a
// readable resctrl geometry are left to the backend to reject.
func checkHostCache(fs afero.Fs, totalWays int, plan []allocation.ClassAllocation) error {
	l3, err := host.DetectL3Cache(fs)
	if err != nil {
		logging.GetLogger().WithError(err).Warn("Could not detect L3 geometry, skipping capacity check")
		return nil
	}
	minWays := totalWays
	for _, class := range plan {
		if class.Mask.Ways() < minWays {
			minWays = class.Mask.Ways()
		}
	}
	if err := l3.Fits(totalWays, minWays); err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfiguration, err)
	}
	logging.GetLogger().WithFields(logrus.Fields{
		"l3_ways":       l3.Ways,
		"bytes_per_way": l3.BytesPerWay,
	}).Debug("L3 capacity check passed")
	return nil
}
