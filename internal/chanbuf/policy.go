package chanbuf

import (
	"fmt"
	"strings"
)

// Policy decides when a consumer that ran dry may resume consuming.
type Policy int

const (
	// PolicyImmediate never gates the consumer.
	PolicyImmediate Policy = iota
	// PolicyWhenFull gates the consumer until every block is committed.
	PolicyWhenFull
	// PolicyHalfFull gates the consumer until half the blocks are committed.
	PolicyHalfFull
)

func (p Policy) String() string {
	switch p {
	case PolicyImmediate:
		return "immediate"
	case PolicyWhenFull:
		return "when_full"
	case PolicyHalfFull:
		return "half_full"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	return p >= PolicyImmediate && p <= PolicyHalfFull
}

// ParsePolicy maps a configuration name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "immediate":
		return PolicyImmediate, nil
	case "when_full", "whenfull", "full":
		return PolicyWhenFull, nil
	case "half_full", "halffull", "half":
		return PolicyHalfFull, nil
	}
	return PolicyImmediate, fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}
