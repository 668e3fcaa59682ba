package allocation

import (
	"errors"
	"strconv"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedMasks returns a generator that hands out masks[i] for cluster i and
// records the way counts it was called with.
func fixedMasks(masks []Bitmask, calls *[][]int) MaskGenerator {
	return func(ways []int) ([]Bitmask, error) {
		*calls = append(*calls, append([]int(nil), ways...))
		return masks[:len(ways)], nil
	}
}

func TestDecodeUserAssignment_RoundTrip(t *testing.T) {
	m0, m1 := Bitmask(0xf00), Bitmask(0x0ff)
	var calls [][]int

	got, err := DecodeUserAssignment("0,1,0;4,8", fixedMasks([]Bitmask{m0, m1}, &calls))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, []int{4, 8, 4}, got[0].Ways)
	assert.Equal(t, []Bitmask{m0, m1, m0}, got[0].Masks)
	assert.Equal(t, []int{0, 1, 0}, got[0].ClusterIDs)
	assert.Equal(t, [][]int{{4, 8}}, calls, "generator is called once per line with the cluster ways")
	assert.Equal(t, 3, got[0].Len())
	assert.Equal(t, 2, got[0].Clusters())
	assert.Equal(t, []int{4, 8}, got[0].ClusterWays)
	assert.Equal(t, []Bitmask{m0, m1}, got[0].ClusterMasks)
}

func TestDecodeUserAssignment_KeepsUnreferencedClusters(t *testing.T) {
	got, err := DecodeUserAssignment("0,2;4,4,4", NewPackedMaskGenerator(12))
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, []int{4, 4}, got[0].Ways)
	assert.Equal(t, []int{4, 4, 4}, got[0].ClusterWays)
	assert.Equal(t, []Bitmask{0xf00, 0x0f0, 0x00f}, got[0].ClusterMasks)
	assert.Equal(t, []Bitmask{0xf00, 0x00f}, got[0].Masks)
}

func TestDecodeUserAssignment_SkipsLinesWithoutSeparator(t *testing.T) {
	text := "# cluster ids, cluster ways\n" +
		"\n" +
		"0,1;10,10\n" +
		"this line is ignored\n" +
		"   \n" +
		"0,0,1,2;6,7,7\n" +
		"\n"

	got, err := DecodeUserAssignment(text, NewPackedMaskGenerator(20))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, []int{10, 10}, got[0].Ways)
	assert.Equal(t, []Bitmask{0xffc00, 0x003ff}, got[0].Masks)

	assert.Equal(t, []int{6, 6, 7, 7}, got[1].Ways)
	assert.Equal(t, []int{0, 0, 1, 2}, got[1].ClusterIDs)
	assert.Equal(t, got[1].Masks[0], got[1].Masks[1])
}

func TestDecodeUserAssignment_Empty(t *testing.T) {
	got, err := DecodeUserAssignment("\n\nno separators here\n", NewPackedMaskGenerator(20))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDecodeUserAssignment_Errors(t *testing.T) {
	tests := []struct {
		name string
		text string
		line int
	}{
		{name: "cluster id out of bounds", text: "0,1;4,8\n0,2;4,8", line: 2},
		{name: "negative cluster id", text: "-1;4", line: 1},
		{name: "malformed id", text: "\n0,x;4", line: 2},
		{name: "malformed ways", text: "0;four", line: 1},
		{name: "two separators", text: "0;4;8", line: 1},
		{name: "empty ways", text: "0;", line: 1},
		{name: "generator rejects", text: "0,1;16,16", line: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeUserAssignment(tt.text, NewPackedMaskGenerator(20))
			require.Error(t, err)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected ParseError, got %v", err)
			assert.Equal(t, tt.line, perr.Line)
		})
	}

	_, err := DecodeUserAssignment("0,x;4", NewPackedMaskGenerator(20))
	var numErr *strconv.NumError
	assert.True(t, errors.As(err, &numErr), "expected the invalid literal to be reported")
}

func TestDecodeUserAssignment_RequiresGenerator(t *testing.T) {
	_, err := DecodeUserAssignment("0;4", nil)
	assert.Error(t, err)
}

func TestLoadUserAssignment(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/user.csv", []byte("0,1,0;4,8\n"), 0o644))

	got, err := LoadUserAssignment(fs, "/data/user.csv", NewPackedMaskGenerator(12))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []Bitmask{0xf00, 0x0ff, 0xf00}, got[0].Masks)

	_, err = LoadUserAssignment(fs, "/data/missing.csv", NewPackedMaskGenerator(12))
	assert.Error(t, err)
}
