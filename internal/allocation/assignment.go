package allocation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// UserAssignment is the decoded partition of one workload: per application,
// the ways and mask of the cluster it belongs to. ClusterWays and
// ClusterMasks keep every declared cluster, including ones no application
// references.
type UserAssignment struct {
	Ways         []int     `json:"ways"`
	Masks        []Bitmask `json:"masks"`
	ClusterIDs   []int     `json:"cluster_ids"`
	ClusterWays  []int     `json:"cluster_ways,omitempty"`
	ClusterMasks []Bitmask `json:"cluster_masks,omitempty"`
}

// Len returns the number of applications covered by the assignment.
func (u *UserAssignment) Len() int {
	return len(u.ClusterIDs)
}

// Clusters returns the number of distinct clusters referenced.
func (u *UserAssignment) Clusters() int {
	n := 0
	for _, id := range u.ClusterIDs {
		if id+1 > n {
			n = id + 1
		}
	}
	return n
}

// ParseError reports a malformed line of a user assignment file.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("user assignment line %d %q: %v", e.Line, e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// DecodeUserAssignment parses "ids;ways" lines into one UserAssignment per
// line. Lines without ';' are skipped. gen is called once per line with the
// per-cluster way counts.
func DecodeUserAssignment(text string, gen MaskGenerator) ([]UserAssignment, error) {
	if gen == nil {
		return nil, fmt.Errorf("no mask generator")
	}

	var out []UserAssignment
	for n, line := range strings.Split(text, "\n") {
		if !strings.Contains(line, ";") {
			continue
		}
		ua, err := decodeLine(line, gen)
		if err != nil {
			return nil, &ParseError{Line: n + 1, Text: strings.TrimSpace(line), Err: err}
		}
		out = append(out, ua)
	}
	return out, nil
}

// LoadUserAssignment reads and decodes a user assignment file.
func LoadUserAssignment(fs afero.Fs, path string, gen MaskGenerator) ([]UserAssignment, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read user assignment %s: %w", path, err)
	}
	assignments, err := DecodeUserAssignment(string(data), gen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return assignments, nil
}

func decodeLine(line string, gen MaskGenerator) (UserAssignment, error) {
	parts := strings.Split(strings.TrimSpace(line), ";")
	if len(parts) != 2 {
		return UserAssignment{}, fmt.Errorf("expected exactly one ';', got %d", len(parts)-1)
	}

	clusterIDs, err := parseIntList(parts[0])
	if err != nil {
		return UserAssignment{}, fmt.Errorf("cluster ids: %w", err)
	}
	clusterWays, err := parseIntList(parts[1])
	if err != nil {
		return UserAssignment{}, fmt.Errorf("cluster ways: %w", err)
	}

	masks, err := gen(clusterWays)
	if err != nil {
		return UserAssignment{}, fmt.Errorf("mask generation: %w", err)
	}
	if len(masks) != len(clusterWays) {
		return UserAssignment{}, fmt.Errorf("mask generator returned %d masks for %d clusters", len(masks), len(clusterWays))
	}

	ua := UserAssignment{
		Ways:         make([]int, len(clusterIDs)),
		Masks:        make([]Bitmask, len(clusterIDs)),
		ClusterIDs:   clusterIDs,
		ClusterWays:  clusterWays,
		ClusterMasks: masks,
	}
	for i, id := range clusterIDs {
		if id < 0 || id >= len(clusterWays) {
			return UserAssignment{}, fmt.Errorf("application %d: cluster id %d out of range [0, %d)", i, id, len(clusterWays))
		}
		ua.Ways[i] = clusterWays[id]
		ua.Masks[i] = masks[id]
	}
	return ua, nil
}

func parseIntList(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
