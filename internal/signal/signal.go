// Package signal derives percentage changes, ratios and trend deltas from
// raw market samples. Every function is pure.
package signal

import (
	"math"

	"github.com/shopspring/decimal"
)

// Change is the percentage move between the first and last sample of a
// series together with the last sample.
type Change struct {
	Percent float64
	Last    float64
}

// Trend is the absolute difference between the two most recent samples.
type Trend struct {
	Last  float64
	Delta float64
}

// Reading is a derived value that may be undefined. The zero Reading is
// undefined.
type Reading struct {
	Value float64
	Valid bool
}

// Of returns a defined Reading holding v.
func Of(v float64) Reading {
	return Reading{Value: v, Valid: true}
}

// Level is one price level of an order book side.
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// PercentChange returns (last-first)/first*100. A zero first value yields 0
// rather than an undefined result.
func PercentChange(first, last float64) float64 {
	if first == 0 {
		return 0
	}
	return (last - first) / first * 100
}

// SeriesChange compares the first and last values of a series. Fewer than two
// samples produce a zero Change.
func SeriesChange(values []float64) Change {
	if len(values) < 2 {
		return Change{}
	}
	first, last := values[0], values[len(values)-1]
	return Change{Percent: PercentChange(first, last), Last: last}
}

// SeriesTrend returns last minus previous for ratio-like series. Fewer than
// two samples produce a zero Trend.
func SeriesTrend(values []float64) Trend {
	if len(values) < 2 {
		return Trend{}
	}
	last := values[len(values)-1]
	return Trend{Last: last, Delta: last - values[len(values)-2]}
}

// Notional sums price*quantity over the levels.
func Notional(levels []Level) decimal.Decimal {
	total := decimal.Zero
	for _, l := range levels {
		total = total.Add(l.Price.Mul(l.Quantity))
	}
	return total
}

// Imbalance returns bid notional over ask notional. The result is undefined
// when either side sums to zero.
func Imbalance(bids, asks []Level) Reading {
	bid, _ := Notional(bids).Float64()
	ask, _ := Notional(asks).Float64()
	return Ratio(bid, ask)
}

// Ratio divides a by b, undefined when either operand is zero.
func Ratio(a, b float64) Reading {
	if a == 0 || b == 0 {
		return Reading{}
	}
	return Of(a / b)
}

// InterRoundChange compares the current value against the value stored in a
// previous round. Without a usable previous value the change is 0.
func InterRoundChange(previous Reading, current float64) float64 {
	if !previous.Valid {
		return 0
	}
	return PercentChange(previous.Value, current)
}

// Abs is math.Abs on a Reading's value; undefined readings yield 0.
func (r Reading) Abs() float64 {
	if !r.Valid {
		return 0
	}
	return math.Abs(r.Value)
}
