package cmd

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"partsim/internal/allocation"
	"partsim/internal/config"
	"partsim/internal/database"
	"partsim/internal/dataparser"
	"partsim/internal/dispatch"
	"partsim/internal/logging"
	"partsim/internal/metrics"
	"partsim/internal/output"
	"partsim/internal/partition"
	"partsim/internal/plot"
	"partsim/internal/remote"
	"partsim/internal/workload"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

type runFlags struct {
	configFile     string
	summaryFile    string
	maxBandwidth   float64
	parallel       bool
	parsim         bool
	harness        bool
	chart          bool
	listAlgorithms bool
	bwModel        string
	algorithms     string
	format         string
	debugging      bool
	useRange       string
	forceWays      int
	options        []string
	workers        int
	pool           string
	natsURL        string
	spoolDir       string
	metricsFile    string
	influx         bool
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}

	runCmd := &cobra.Command{
		Use:   "run [WORKLOAD_FILE]",
		Short: "Evaluate partitioning algorithms on a set of workloads",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.listAlgorithms {
				return listAlgorithms(cmd.OutOrStdout())
			}

			cfg, content, err := buildExperimentConfig(cmd, f, args)
			if err != nil {
				return err
			}
			if f.configFile != "" && cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
				if err := logging.SetLogLevel(cfg.LogLevel); err != nil {
					logging.GetLogger().WithField("log_level", cfg.LogLevel).WithError(err).Warn("Invalid log level in config, using INFO")
				}
				if level, _ := cmd.Flags().GetString("dispatch-log-level"); level != "" {
					_ = logging.SetDispatchLogLevel(level)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runExperiment(ctx, afero.NewOsFs(), cmd.OutOrStdout(), cfg, content)
		},
	}

	bindRunFlags(runCmd, f)
	return runCmd
}

func bindRunFlags(cmd *cobra.Command, f *runFlags) {
	defaults := config.DefaultExperimentConfig()
	flags := cmd.Flags()
	flags.StringVar(&f.configFile, "config", "", "Experiment configuration file (flags set explicitly take precedence)")
	flags.StringVarP(&f.summaryFile, "summary-file", "s", defaults.Simulation.SummaryFile, "File with the data collected offline for every benchmark")
	flags.Float64VarP(&f.maxBandwidth, "max-bandwidth", "b", math.Inf(1), "Max bandwidth observed for the target machine")
	flags.BoolVarP(&f.parallel, "parallel", "p", false, "Enable parallel search for the optimal")
	flags.BoolVarP(&f.parsim, "parsim", "P", false, "Launch all simulations in parallel")
	flags.BoolVarP(&f.harness, "harness", "H", false, "Use harness workload file as input")
	flags.BoolVarP(&f.chart, "generate-chart", "C", false, "Enable the STP-vs-UNF chart generator")
	flags.BoolVarP(&f.listAlgorithms, "list-algorithms", "L", false, "List available partitioning algorithms")
	flags.StringVarP(&f.bwModel, "bw-model", "m", defaults.Simulation.BWModel, "Bandwidth model to apply (simple, none)")
	flags.StringVarP(&f.algorithms, "algorithms", "a", strings.Join(defaults.Simulation.Algorithms, ","), "Comma-separated algorithms")
	flags.StringVarP(&f.format, "format", "f", defaults.Simulation.Format, "Output format ("+strings.Join(output.Formats(), ", ")+")")
	flags.BoolVarP(&f.debugging, "debugging", "d", false, "Enable debugging mode")
	flags.StringVarP(&f.useRange, "use-range", "r", defaults.Simulation.Range, "Pick selected workloads only by specifying a range")
	flags.IntVarP(&f.forceWays, "force-ways", "w", 0, "Force number of ways of the cache")
	flags.StringArrayVarP(&f.options, "option", "O", nil, "Algorithm-specific option key=val (repeatable)")
	flags.IntVar(&f.workers, "workers", 0, "Concurrent tasks for --parsim (0 = all at once)")
	flags.StringVar(&f.pool, "pool", config.PoolLocal, "Pool used by --parsim (local, nats)")
	flags.StringVar(&f.natsURL, "nats-url", envOrDefault("PARTSIM_NATS_URL", nats.DefaultURL), "NATS server for --pool nats")
	flags.StringVar(&f.spoolDir, "spool-dir", os.Getenv("PARTSIM_SPOOL_DIR"), "Write a gzip JSON artifact of the results to this directory")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics of the run to this file")
	flags.BoolVar(&f.influx, "influx", false, "Export results to InfluxDB (INFLUXDB_HOST, INFLUXDB_TOKEN, INFLUXDB_ORG, INFLUXDB_BUCKET)")
}

// buildExperimentConfig merges the optional experiment file with the flags.
// Without a file every flag applies; with one, only flags set explicitly.
func buildExperimentConfig(cmd *cobra.Command, f *runFlags, args []string) (*config.ExperimentConfig, string, error) {
	cfg := config.DefaultExperimentConfig()
	content := ""
	if f.configFile != "" {
		data, err := os.ReadFile(f.configFile)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read config: %w", err)
		}
		content = string(data)
		if cfg, err = config.DecodeConfig(content); err != nil {
			return nil, "", fmt.Errorf("failed to parse config %s: %w", f.configFile, err)
		}
	}

	set := func(name string) bool {
		return f.configFile == "" || cmd.Flags().Changed(name)
	}
	sim := &cfg.Simulation
	if set("summary-file") {
		sim.SummaryFile = f.summaryFile
	}
	if set("max-bandwidth") {
		sim.MaxBandwidth = nil
		if !math.IsInf(f.maxBandwidth, 1) {
			bw := f.maxBandwidth
			sim.MaxBandwidth = &bw
		}
	}
	if set("parallel") {
		sim.Parallel = f.parallel
	}
	if set("parsim") {
		sim.ParSim = f.parsim
	}
	if set("harness") {
		sim.Harness = f.harness
	}
	if set("generate-chart") {
		sim.Chart = f.chart
	}
	if set("bw-model") {
		sim.BWModel = f.bwModel
	}
	if set("algorithms") {
		sim.Algorithms = splitList(f.algorithms)
	}
	if set("format") {
		sim.Format = f.format
	}
	if set("debugging") {
		sim.Debugging = f.debugging
	}
	if set("use-range") {
		sim.Range = f.useRange
	}
	if set("force-ways") {
		sim.ForceWays = f.forceWays
	}
	if set("workers") {
		cfg.Pool.Workers = f.workers
	}
	if set("pool") {
		cfg.Pool.Kind = f.pool
	}
	if set("nats-url") || cfg.Pool.NATS.URL == "" {
		cfg.Pool.NATS.URL = f.natsURL
	}
	if set("spool-dir") {
		cfg.Export.SpoolDir = f.spoolDir
	}
	if set("metrics-file") {
		cfg.Export.MetricsFile = f.metricsFile
	}
	if f.influx {
		cfg.Export.Influx = &config.InfluxConfig{
			Host:   os.Getenv("INFLUXDB_HOST"),
			Token:  os.Getenv("INFLUXDB_TOKEN"),
			Org:    os.Getenv("INFLUXDB_ORG"),
			Bucket: os.Getenv("INFLUXDB_BUCKET"),
		}
	}

	for _, token := range f.options {
		if err := mergeOption(cfg, token); err != nil {
			return nil, "", err
		}
	}

	if len(args) == 1 {
		sim.WorkloadFile = args[0]
	}
	if sim.WorkloadFile == "" {
		return nil, "", fmt.Errorf("%w: a workload file is required", config.ErrConfiguration)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, "", err
	}
	return cfg, content, nil
}

// mergeOption records a -O token in the option map. A bare key stands for
// key=true.
func mergeOption(cfg *config.ExperimentConfig, token string) error {
	probe := config.DefaultOptions()
	if err := probe.Set(token); err != nil {
		return err
	}
	key, val, hasValue := strings.Cut(strings.TrimSpace(token), "=")
	if !hasValue {
		val = "true"
	}
	if cfg.Options == nil {
		cfg.Options = make(map[string]string)
	}
	cfg.Options[strings.TrimSpace(key)] = strings.TrimSpace(val)
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func listAlgorithms(w io.Writer) error {
	for _, name := range partition.Names() {
		if _, err := fmt.Fprintln(w, name); err != nil {
			return err
		}
	}
	return nil
}

func runExperiment(ctx context.Context, fs afero.Fs, stdout io.Writer, cfg *config.ExperimentConfig, content string) error {
	logger := logging.GetLogger()
	sim := cfg.Simulation

	tokens := config.OptionTokens(cfg.Options)
	if sim.BWModel != "" {
		tokens = append(tokens, "bw_model="+sim.BWModel)
	}
	opts, err := config.ParseOptions(tokens)
	if err != nil {
		return err
	}
	format, err := output.ParseFormat(sim.Format)
	if err != nil {
		return err
	}
	if _, err := partition.ResolveAll(sim.Algorithms); err != nil {
		return err
	}

	var table *workload.Table
	if sim.Harness {
		benchs, err := dataparser.ParseHarnessFile(fs, sim.WorkloadFile)
		if err != nil {
			return err
		}
		table, err = dataparser.LoadWorkloadsFromList(fs, sim.SummaryFile, [][]string{benchs}, ',')
		if err != nil {
			return err
		}
	} else {
		table, err = dataparser.LoadWorkloadsFromCSV(fs, sim.SummaryFile, sim.WorkloadFile, ',')
		if err != nil {
			return err
		}
	}

	totalWays := sim.EffectiveWays(table.TotalWays)
	if totalWays > table.TotalWays {
		logger.WithFields(logrus.Fields{
			"ways":     totalWays,
			"measured": table.TotalWays,
		}).Warn("Forced way count exceeds the profiled range, metrics saturate at the last sample")
	}
	maxBW := sim.GetMaxBandwidth()
	workloadsName := dataparser.WorkloadsName(sim.WorkloadFile)

	rng, err := config.ParseRange(sim.Range, table.Len())
	if err != nil {
		return err
	}

	var assignments []allocation.UserAssignment
	for _, name := range sim.Algorithms {
		if name != partition.KindUser.String() {
			continue
		}
		assignments, err = allocation.LoadUserAssignment(fs, opts.UserFile, allocation.NewPackedMaskGenerator(totalWays))
		if err != nil {
			return err
		}
		break
	}

	checksum, err := config.ExperimentChecksum(cfg)
	if err != nil {
		return fmt.Errorf("failed to compute experiment checksum: %w", err)
	}

	logger.WithFields(logrus.Fields{
		"workloads":  table.Len(),
		"selected":   len(rng),
		"total_ways": totalWays,
		"max_bw":     maxBW,
		"algorithms": strings.Join(sim.Algorithms, ","),
		"checksum":   checksum,
	}).Info("Workloads loaded")

	text, err := output.NewSink(format, stdout, maxBW)
	if err != nil {
		return err
	}
	sinks := []dispatch.RowSink{text}

	var chart *plot.ChartCollector
	if sim.Chart {
		chart = plot.NewChartCollector(workloadsName, sim.Algorithms, totalWays, maxBW)
		sinks = append(sinks, chart)
	}
	var spool *database.ResultSpool
	if cfg.Export.SpoolDir != "" {
		spool = database.NewResultSpool(workloadsName, checksum, workloadsName, sim.Algorithms, totalWays, maxBW)
		spool.SetConfigContent(content)
		sinks = append(sinks, spool)
	}
	var influx *database.InfluxExporter
	if cfg.Export.Influx != nil {
		influx, err = database.NewInfluxDBClient(*cfg.Export.Influx, workloadsName, checksum, maxBW)
		if err != nil {
			return fmt.Errorf("failed to create database client: %w", err)
		}
		defer influx.Close()
		sinks = append(sinks, influx)
	}

	dispatchOpts := []dispatch.Option{}
	var recorder *metrics.PrometheusRecorder
	if cfg.Export.MetricsFile != "" {
		recorder = metrics.NewPrometheus("")
		dispatchOpts = append(dispatchOpts, dispatch.WithRecorder(recorder))
	}

	var pool dispatch.Pool
	if sim.ParSim {
		p, closePool, err := newPool(cfg.Pool)
		if err != nil {
			return err
		}
		defer closePool()
		pool = p
	}

	batch := dispatch.Batch{
		Workloads:    table.Workloads,
		Algorithms:   sim.Algorithms,
		Range:        rng,
		TotalWays:    totalWays,
		MaxBandwidth: maxBW,
		Params: partition.Params{
			Parallel:  sim.Parallel,
			Debugging: sim.Debugging,
			Options:   opts,
		},
		UserAssignments: assignments,
		ParSim:          sim.ParSim,
	}

	started := time.Now()
	evalErr := dispatch.New(pool, dispatchOpts...).Evaluate(ctx, batch, output.Tee(sinks...))
	finished := time.Now()

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.Export.MetricsFile); err != nil {
			logger.WithError(err).Warn("Failed to write metrics file")
		}
	}
	if evalErr != nil {
		return evalErr
	}

	if chart != nil {
		logger.WithField("chart", workloadsName+plot.PlotExtension).Info("Generating chart")
		if _, _, err := chart.Write(fs, ""); err != nil {
			return fmt.Errorf("failed to generate chart: %w", err)
		}
	}
	if spool != nil {
		path, err := database.WriteSpoolArtifact(fs, cfg.Export.SpoolDir, spool.Artifact())
		if err != nil {
			return fmt.Errorf("failed to write spool artifact: %w", err)
		}
		logger.WithField("path", path).Info("Results spooled")
	}
	if influx != nil {
		if err := influx.Flush(ctx); err != nil {
			return err
		}
		mode := dispatch.ModeSequential
		if sim.ParSim {
			mode = dispatch.ModeParallel
		}
		if err := influx.WriteMetadata(ctx, database.RunMetadata{
			Experiment:    workloadsName,
			Checksum:      checksum,
			WorkloadsName: workloadsName,
			Algorithms:    sim.Algorithms,
			Mode:          mode,
			TotalWays:     totalWays,
			MaxBandwidth:  maxBW,
			Rows:          len(rng) * len(sim.Algorithms),
			Started:       started,
			Finished:      finished,
		}); err != nil {
			return err
		}
	}
	return nil
}

// newPool returns the pool for --parsim and a function releasing it.
func newPool(cfg config.PoolConfig) (dispatch.Pool, func(), error) {
	switch cfg.Kind {
	case config.PoolNATS:
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name("partsim"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		logging.GetDispatchLogger().WithFields(logrus.Fields{
			"url":     cfg.NATS.URL,
			"subject": cfg.NATS.GetSubject(),
		}).Info("Dispatching tasks over NATS")
		return remote.NewNATSPool(nc, cfg.NATS.GetSubject(), cfg.NATS.GetTimeout(), cfg.Workers), nc.Close, nil
	default:
		return dispatch.NewLocalPool(cfg.Workers), func() {}, nil
	}
}
