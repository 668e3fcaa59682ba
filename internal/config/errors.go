package config

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks fatal, pre-evaluation configuration problems:
// unknown options, unresolvable range bounds, missing inputs.
var ErrConfiguration = errors.New("configuration error")

// RangeError reports a workload selector bound outside [1, n].
type RangeError struct {
	Token string
	Value int
	Limit int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("range token %q: workload %d out of bounds [1, %d]", e.Token, e.Value, e.Limit)
}

func (e *RangeError) Unwrap() error {
	return ErrConfiguration
}

// ParseError reports a malformed workload selector token.
type ParseError struct {
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid range token %q: %v", e.Token, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
