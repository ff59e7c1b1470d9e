package rules

import (
	"fmt"
	"math"
)

// Direction selects how a value is compared against a threshold.
type Direction string

const (
	// Absolute compares the magnitude: |v| >= T.
	Absolute Direction = "absolute"
	// Minimum only fires on growth: v >= T.
	Minimum Direction = "minimum"
	// Dual is used for ratios: v >= T or v <= 1/T.
	Dual Direction = "dual"
)

// ParseDirection maps a configured name onto a Direction. An empty name
// yields def.
func ParseDirection(name string, def Direction) (Direction, error) {
	switch Direction(name) {
	case "":
		return def, nil
	case Absolute, Minimum, Dual:
		return Direction(name), nil
	default:
		return "", fmt.Errorf("unknown threshold direction %q", name)
	}
}

// Threshold is a trigger value plus its comparison direction. A zero Value
// disables the rule.
type Threshold struct {
	Value     float64
	Direction Direction
}

// Enabled reports whether the rule is active.
func (t Threshold) Enabled() bool {
	return t.Value > 0
}

// Passes reports whether v crosses the threshold.
func (t Threshold) Passes(v float64) bool {
	if !t.Enabled() {
		return false
	}
	switch t.Direction {
	case Minimum:
		return v >= t.Value
	case Dual:
		return v >= t.Value || v <= 1/t.Value
	default:
		return math.Abs(v) >= t.Value
	}
}

// Match controls how the conditions of a window combine.
type Match string

const (
	MatchAll Match = "all"
	MatchAny Match = "any"
)

// Window holds the per-window price and open-interest thresholds. Windows are
// evaluated independently of each other and of the short-window rules.
type Window struct {
	Name     string
	Price    Threshold
	OIGrowth Threshold
	Match    Match
}

// Thresholds is the full rule configuration of one monitor.
type Thresholds struct {
	OIGrowth       Threshold
	PriceChange    Threshold
	FundingExtreme float64
	FundingWatch   float64
	TakerTrend     Threshold
	DepthImbalance Threshold
	Composite      bool
	Windows        []Window
}
