package host

import (
	"fmt"
	"strconv"
	"strings"

	"partsim/internal/allocation"

	"github.com/spf13/afero"
)

const (
	ResctrlCBMMaskPath = "/sys/fs/resctrl/info/L3/cbm_mask"
	ResctrlMinBitsPath = "/sys/fs/resctrl/info/L3/min_cbm_bits"
)

// cachePaths are tried in order for the L3 size; some systems expose the
// L3 as index2.
var cachePaths = []string{
	"/sys/devices/system/cpu/cpu0/cache/index3/size",
	"/sys/devices/system/cpu/cpu0/cache/index2/size",
}

// L3CacheConfig describes the allocatable last-level cache of the host.
type L3CacheConfig struct {
	TotalSizeBytes int64
	// Ways is the number of bits in the resctrl capacity bitmask.
	Ways        int
	MinWays     int
	BytesPerWay int64
	MaxBitmask  allocation.Bitmask
}

// DetectL3Cache reads the L3 geometry from resctrl and sysfs. The cache size
// is optional; the capacity bitmask is not.
func DetectL3Cache(fs afero.Fs) (*L3CacheConfig, error) {
	data, err := afero.ReadFile(fs, ResctrlCBMMaskPath)
	if err != nil {
		return nil, fmt.Errorf("resctrl L3 allocation not available: %w", err)
	}
	mask, err := allocation.ParseBitmask(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ResctrlCBMMaskPath, err)
	}
	if mask == 0 || !mask.Contiguous() {
		return nil, fmt.Errorf("unexpected L3 capacity bitmask %s", mask)
	}

	cfg := &L3CacheConfig{
		Ways:       mask.Ways(),
		MinWays:    1,
		MaxBitmask: mask,
	}
	if data, err := afero.ReadFile(fs, ResctrlMinBitsPath); err == nil {
		if v, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && v > 0 {
			cfg.MinWays = v
		}
	}
	if size, err := l3CacheSize(fs); err == nil {
		cfg.TotalSizeBytes = size
		cfg.BytesPerWay = size / int64(cfg.Ways)
	}
	return cfg, nil
}

// Fits reports whether a partition of totalWays, with no cluster smaller
// than minWays, can be programmed on this cache.
func (c *L3CacheConfig) Fits(totalWays, minWays int) error {
	if totalWays > c.Ways {
		return fmt.Errorf("partition uses %d ways, the L3 cache has %d", totalWays, c.Ways)
	}
	if minWays < c.MinWays {
		return fmt.Errorf("partition has a class of %d ways, resctrl requires at least %d", minWays, c.MinWays)
	}
	return nil
}

func l3CacheSize(fs afero.Fs) (int64, error) {
	for _, path := range cachePaths {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			continue
		}
		if size, err := parseCacheSize(strings.TrimSpace(string(data))); err == nil {
			return size, nil
		}
	}
	return 0, fmt.Errorf("could not determine L3 cache size")
}

// parseCacheSize accepts sysfs sizes such as "8192K", "32M" or plain bytes.
func parseCacheSize(s string) (int64, error) {
	unit := int64(1)
	switch {
	case strings.HasSuffix(s, "K"):
		unit, s = 1024, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		unit, s = 1024*1024, strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return v * unit, nil
}
