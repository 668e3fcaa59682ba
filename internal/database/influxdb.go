package database

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"partsim/internal/config"
	"partsim/internal/dispatch"
	"partsim/internal/logging"
	"partsim/internal/partition"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"
)

const (
	measurementResult = "partition_result"
	measurementApp    = "partition_app"
	measurementRun    = "partition_run"
)

// PointWriter is the subset of the blocking write API the exporter needs.
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// RunMetadata describes one evaluation run.
type RunMetadata struct {
	Experiment    string
	Checksum      string
	WorkloadsName string
	Algorithms    []string
	Mode          string
	TotalWays     int
	MaxBandwidth  float64
	Rows          int
	Started       time.Time
	Finished      time.Time
}

// SystemInfo contains host system information
type SystemInfo struct {
	Hostname      string
	OSInfo        string
	KernelVersion string
	CPUVendor     string
	CPUModel      string
	CPUThreads    int
}

// collectSystemInfo gathers host system information
func collectSystemInfo() *SystemInfo {
	info := &SystemInfo{
		OSInfo:        runtime.GOOS + "/" + runtime.GOARCH,
		KernelVersion: "unknown",
		CPUVendor:     "unknown",
		CPUModel:      "unknown",
		CPUThreads:    runtime.NumCPU(),
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	info.Hostname = hostname

	if data, err := os.ReadFile("/proc/version"); err == nil {
		parts := strings.Fields(string(data))
		if len(parts) >= 3 {
			info.KernelVersion = parts[2]
		}
	}

	if data, err := os.ReadFile("/proc/cpuinfo"); err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			key, value, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			switch strings.TrimSpace(key) {
			case "vendor_id":
				info.CPUVendor = strings.TrimSpace(value)
			case "model name":
				info.CPUModel = strings.TrimSpace(value)
			}
		}
	}
	return info
}

// InfluxExporter is a row sink buffering one result point per
// (workload, algorithm) and one point per application. Points are written
// by Flush.
type InfluxExporter struct {
	client     influxdb2.Client
	writeAPI   PointWriter
	experiment string
	checksum   string
	maxBW      float64
	runAt      time.Time
	pending    []*write.Point
	logger     *logrus.Logger
}

// NewInfluxDBClient connects to InfluxDB and checks its health.
func NewInfluxDBClient(cfg config.InfluxConfig, experiment, checksum string, maxBW float64) (*InfluxExporter, error) {
	logger := logging.GetLogger()

	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		logger.WithField("host", cfg.Host).WithError(err).Error("Failed to connect to InfluxDB")
		client.Close()
		return nil, err
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		logger.WithFields(logrus.Fields{
			"host":    cfg.Host,
			"status":  health.Status,
			"message": msg,
		}).Error("InfluxDB health check failed")
		client.Close()
		return nil, fmt.Errorf("influxdb at %s is not healthy: %s", cfg.Host, health.Status)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")

	e := NewInfluxExporter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), experiment, checksum, maxBW)
	e.client = client
	return e, nil
}

// NewInfluxExporter writes through w without owning a client.
func NewInfluxExporter(w PointWriter, experiment, checksum string, maxBW float64) *InfluxExporter {
	return &InfluxExporter{
		writeAPI:   w,
		experiment: experiment,
		checksum:   checksum,
		maxBW:      maxBW,
		runAt:      time.Now(),
		logger:     logging.GetLogger(),
	}
}

func (e *InfluxExporter) tags(extra map[string]string) map[string]string {
	tags := map[string]string{
		"experiment": e.experiment,
		"checksum":   e.checksum,
	}
	for k, v := range extra {
		tags[k] = v
	}
	return tags
}

func (e *InfluxExporter) Emit(row dispatch.Row) error {
	sol := row.Solution
	if sol == nil {
		return fmt.Errorf("row %s has no solution", row.Key)
	}
	m := partition.ComputeBasicMetrics(sol, e.maxBW)
	workload := fmt.Sprintf("W%d", row.Ordinal)

	ways := make([]string, len(sol.Apps))
	for i, app := range sol.Apps {
		ways[i] = strconv.Itoa(app.Ways)
	}
	e.pending = append(e.pending, influxdb2.NewPoint(measurementResult,
		e.tags(map[string]string{
			"workload":  workload,
			"algorithm": row.Algorithm,
		}),
		map[string]interface{}{
			"stp":        m.STP,
			"antt":       m.ANTT,
			"unfairness": m.Unfairness,
			"bw":         m.Bandwidth,
			"ways":       strings.Join(ways, ","),
			"apps":       len(sol.Apps),
			"elapsed_us": sol.Elapsed.Microseconds(),
		},
		e.runAt))

	for i, app := range sol.Apps {
		e.pending = append(e.pending, influxdb2.NewPoint(measurementApp,
			e.tags(map[string]string{
				"workload":  workload,
				"algorithm": row.Algorithm,
				"app":       app.Name,
				"app_index": strconv.Itoa(i),
			}),
			map[string]interface{}{
				"ways":       app.Ways,
				"mask":       app.Mask.String(),
				"cluster_id": app.ClusterID,
				"ipc":        app.IPC,
				"ipc_alone":  app.IPCAlone,
				"slowdown":   app.Slowdown,
				"bw":         app.Bandwidth,
			},
			e.runAt))
	}
	return nil
}

// Pending returns the number of buffered points.
func (e *InfluxExporter) Pending() int {
	return len(e.pending)
}

// Flush writes every buffered point in a single request.
func (e *InfluxExporter) Flush(ctx context.Context) error {
	if len(e.pending) == 0 {
		return nil
	}
	if err := e.writeAPI.WritePoint(ctx, e.pending...); err != nil {
		return fmt.Errorf("failed to write data points: %w", err)
	}
	e.logger.WithField("points", len(e.pending)).Debug("Wrote result points to InfluxDB")
	e.pending = nil
	return nil
}

// WriteMetadata writes the run description together with host information.
func (e *InfluxExporter) WriteMetadata(ctx context.Context, meta RunMetadata) error {
	sys := collectSystemInfo()
	fields := map[string]interface{}{
		"workloads_name":   meta.WorkloadsName,
		"algorithms":       strings.Join(meta.Algorithms, ","),
		"mode":             meta.Mode,
		"total_ways":       meta.TotalWays,
		"rows":             meta.Rows,
		"duration_seconds": meta.Finished.Sub(meta.Started).Seconds(),
		"started":          meta.Started.Format(time.RFC3339),
		"finished":         meta.Finished.Format(time.RFC3339),
		"hostname":         sys.Hostname,
		"os_info":          sys.OSInfo,
		"kernel_version":   sys.KernelVersion,
		"cpu_vendor":       sys.CPUVendor,
		"cpu_model":        sys.CPUModel,
		"cpu_threads":      sys.CPUThreads,
	}
	// +Inf cannot be stored as a field value.
	if !isInf(meta.MaxBandwidth) {
		fields["max_bw"] = meta.MaxBandwidth
	}

	point := influxdb2.NewPoint(measurementRun, e.tags(nil), fields, e.runAt)
	if err := e.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

func (e *InfluxExporter) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
