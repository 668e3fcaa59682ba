package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	BWModelSimple = "simple"
	BWModelNone   = "none"
)

// Options holds the algorithm-specific settings passed with -O key=val.
type Options struct {
	// UserFile points to the user-defined assignment consumed by the "user" algorithm.
	UserFile string `json:"user_file,omitempty"`
	// PrintTimes prints a banner per (workload, algorithm) pair on stderr.
	PrintTimes bool `json:"print_times,omitempty"`
	// BWModel selects how aggregate memory bandwidth throttles IPC.
	BWModel string `json:"bw_model"`
	// MinWays is the minimum number of ways any application may receive.
	MinWays int `json:"min_ways"`
	// SearchWorkers bounds goroutines used by exhaustive searches when
	// intra-algorithm parallelism is enabled. 0 means one per first-level branch.
	SearchWorkers int `json:"search_workers,omitempty"`
}

func DefaultOptions() Options {
	return Options{
		BWModel: BWModelSimple,
		MinWays: 1,
	}
}

// ParseOptions builds Options from key=val tokens on top of the defaults.
// A bare key sets a boolean option to true. Unknown keys are rejected.
func ParseOptions(tokens []string) (Options, error) {
	opts := DefaultOptions()
	for _, token := range tokens {
		if err := opts.Set(token); err != nil {
			return Options{}, err
		}
	}
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Set applies a single key=val token.
func (o *Options) Set(token string) error {
	key, val, hasValue := strings.Cut(strings.TrimSpace(token), "=")
	key = strings.TrimSpace(key)
	val = strings.TrimSpace(val)

	switch key {
	case "user_file":
		if !hasValue {
			return fmt.Errorf("%w: option %q requires a value", ErrConfiguration, key)
		}
		o.UserFile = noneAsEmpty(val)
	case "bw_model":
		if !hasValue {
			return fmt.Errorf("%w: option %q requires a value", ErrConfiguration, key)
		}
		o.BWModel = noneAsEmpty(val)
	case "print_times":
		b, err := parseBoolOption(key, val, hasValue)
		if err != nil {
			return err
		}
		o.PrintTimes = b
	case "min_ways":
		v, err := parseIntOption(key, val, hasValue)
		if err != nil {
			return err
		}
		o.MinWays = v
	case "search_workers":
		v, err := parseIntOption(key, val, hasValue)
		if err != nil {
			return err
		}
		o.SearchWorkers = v
	default:
		return fmt.Errorf("%w: unknown option %q", ErrConfiguration, key)
	}
	return nil
}

func (o *Options) Validate() error {
	switch o.BWModel {
	case BWModelSimple, BWModelNone:
	default:
		return fmt.Errorf("%w: unknown bandwidth model %q", ErrConfiguration, o.BWModel)
	}
	if o.MinWays < 1 {
		return fmt.Errorf("%w: min_ways must be >= 1", ErrConfiguration)
	}
	if o.SearchWorkers < 0 {
		return fmt.Errorf("%w: search_workers must be >= 0", ErrConfiguration)
	}
	return nil
}

// OptionTokens flattens a key/value map into sorted key=val tokens.
func OptionTokens(m map[string]string) []string {
	tokens := make([]string, 0, len(m))
	for k, v := range m {
		tokens = append(tokens, k+"="+v)
	}
	sort.Strings(tokens)
	return tokens
}

func parseBoolOption(key, val string, hasValue bool) (bool, error) {
	if !hasValue {
		return true, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%w: option %q expects a boolean, got %q", ErrConfiguration, key, val)
	}
	return b, nil
}

func parseIntOption(key, val string, hasValue bool) (int, error) {
	if !hasValue {
		return 0, fmt.Errorf("%w: option %q requires a value", ErrConfiguration, key)
	}
	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: option %q expects an integer, got %q", ErrConfiguration, key, val)
	}
	return v, nil
}

func noneAsEmpty(val string) string {
	if val == "None" {
		return ""
	}
	return val
}
