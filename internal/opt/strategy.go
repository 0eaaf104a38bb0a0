package opt

import (
	"fmt"
	"strings"
)

// Strategy selects how pending orders are ordered and grouped before matching.
type Strategy string

const (
	PriorityFirst        Strategy = "priority_first"
	CapacityOptimization Strategy = "capacity_optimization"
	DistanceOptimization Strategy = "distance_optimization"
	BalancedOptimization Strategy = "balanced_optimization"
)

// Strategies lists every strategy in a stable order.
func Strategies() []Strategy {
	return []Strategy{PriorityFirst, CapacityOptimization, DistanceOptimization, BalancedOptimization}
}

func (s Strategy) Valid() bool {
	switch s {
	case PriorityFirst, CapacityOptimization, DistanceOptimization, BalancedOptimization:
		return true
	}
	return false
}

func (s Strategy) String() string { return string(s) }

// ParseStrategy accepts full names and the short forms priority, capacity,
// distance and balanced. The empty string maps to BalancedOptimization.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "balanced", string(BalancedOptimization):
		return BalancedOptimization, nil
	case "priority", string(PriorityFirst):
		return PriorityFirst, nil
	case "capacity", string(CapacityOptimization):
		return CapacityOptimization, nil
	case "distance", string(DistanceOptimization):
		return DistanceOptimization, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}
