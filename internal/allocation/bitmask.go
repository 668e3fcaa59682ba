package allocation

import (
	"fmt"
	"strconv"
	"strings"
)

// MaxWays is the widest cache a Bitmask can describe.
const MaxWays = 64

// Bitmask is a capacity bitmask over cache ways; way i is bit i.
type Bitmask uint64

func (m Bitmask) String() string {
	return fmt.Sprintf("0x%x", uint64(m))
}

// Hex renders the mask without the 0x prefix, as resctrl schemata expect.
func (m Bitmask) Hex() string {
	return strconv.FormatUint(uint64(m), 16)
}

// Ways returns the number of ways granted by the mask.
func (m Bitmask) Ways() int {
	return countBits(uint64(m))
}

// Contiguous reports whether the set bits form a single run.
func (m Bitmask) Contiguous() bool {
	if m == 0 {
		return false
	}
	v := uint64(m)
	for v&1 == 0 {
		v >>= 1
	}
	return v&(v+1) == 0
}

// ParseBitmask accepts both "0xff" and "ff".
func ParseBitmask(s string) (Bitmask, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bitmask %q: %w", s, err)
	}
	return Bitmask(v), nil
}

// LowMask creates a contiguous bitmask of n bits starting from bit 0.
func LowMask(n int) Bitmask {
	if n <= 0 {
		return 0
	}
	if n >= MaxWays {
		return Bitmask(^uint64(0))
	}
	return Bitmask((uint64(1) << n) - 1)
}

// MaskGenerator translates a way count per cluster into one bitmask per
// cluster.
type MaskGenerator func(waysPerCluster []int) ([]Bitmask, error)

// NewPackedMaskGenerator packs clusters contiguously from the high end of a
// cache with totalWays ways, the first cluster taking the highest ways.
func NewPackedMaskGenerator(totalWays int) MaskGenerator {
	return func(waysPerCluster []int) ([]Bitmask, error) {
		if totalWays <= 0 || totalWays > MaxWays {
			return nil, fmt.Errorf("invalid total ways %d", totalWays)
		}

		masks := make([]Bitmask, len(waysPerCluster))
		next := totalWays
		for i, ways := range waysPerCluster {
			if ways <= 0 {
				return nil, fmt.Errorf("cluster %d: ways must be > 0, got %d", i, ways)
			}
			if ways > next {
				return nil, fmt.Errorf("cluster %d: %d ways requested but only %d of %d left", i, ways, next, totalWays)
			}
			next -= ways
			masks[i] = LowMask(ways) << next
		}
		return masks, nil
	}
}

func countBits(mask uint64) int {
	count := 0
	for mask != 0 {
		count += int(mask & 1)
		mask >>= 1
	}
	return count
}
