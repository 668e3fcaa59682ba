package config

import (
	"errors"
	"strconv"
	"strings"
)

var errEmptyToken = errors.New("empty sub-range")

// ParseRange resolves a workload selector into zero-based workload indices.
//
// The selector is a comma-separated list of 1-based sub-ranges: "k", "a-b",
// "a-" (up to the last workload) and "-b" (from the first workload). An empty
// selector, "-" or "*" selects every workload. Sub-ranges are concatenated in
// the order given; overlapping sub-ranges repeat indices on purpose.
func ParseRange(spec string, n int) ([]int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" || spec == "-" || spec == "*" {
		return indices(0, n-1), nil
	}

	items := make([]int, 0, n)
	for _, token := range strings.Split(spec, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			return nil, &ParseError{Token: token, Err: errEmptyToken}
		}

		switch {
		case strings.HasSuffix(token, "-"):
			left, err := parseBound(token, token[:len(token)-1], n)
			if err != nil {
				return nil, err
			}
			items = append(items, indices(left-1, n-1)...)
		case strings.HasPrefix(token, "-"):
			right, err := parseBound(token, token[1:], n)
			if err != nil {
				return nil, err
			}
			items = append(items, indices(0, right-1)...)
		case strings.Contains(token, "-"):
			limits := strings.SplitN(token, "-", 2)
			left, err := parseBound(token, limits[0], n)
			if err != nil {
				return nil, err
			}
			right, err := parseBound(token, limits[1], n)
			if err != nil {
				return nil, err
			}
			items = append(items, indices(left-1, right-1)...)
		default:
			num, err := parseBound(token, token, n)
			if err != nil {
				return nil, err
			}
			items = append(items, num-1)
		}
	}

	return items, nil
}

// parseBound parses one 1-based limit of a sub-range and checks it against n.
func parseBound(token, literal string, n int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(literal))
	if err != nil {
		return 0, &ParseError{Token: token, Err: err}
	}
	if v < 1 || v > n {
		return 0, &RangeError{Token: token, Value: v, Limit: n}
	}
	return v, nil
}

// indices returns lo..hi inclusive, or an empty slice when lo > hi.
func indices(lo, hi int) []int {
	if hi < lo {
		return []int{}
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}
