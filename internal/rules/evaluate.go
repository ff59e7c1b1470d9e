// Package rules turns derived signals into alert fragments.
package rules

import (
	"fmt"
	"math"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/signal"
)

// Rule names carried by emitted fragments.
const (
	RuleOIGrowth    = "oi_growth"
	RulePriceChange = "price_change"
	RuleFunding     = "funding"
	RuleTakerTrend  = "taker_trend"
	RuleDepth       = "depth_imbalance"
	RuleComposite   = "composite"
	RuleWindowPrice = "window_price"
	RuleWindowOI    = "window_oi"
)

// WindowSignals are the price and open-interest changes over one window.
type WindowSignals struct {
	Price signal.Reading
	OI    signal.Reading
}

// Signals are the derived values of one instrument in one round. Readings a
// monitor does not fetch stay undefined and their rules are skipped.
type Signals struct {
	LastPrice   float64
	PriceChange signal.Reading
	OIChange    signal.Reading
	OILast      float64
	Funding     signal.Reading
	NextFunding string
	TakerRatio  float64
	TakerTrend  signal.Reading
	Depth       signal.Reading
	Windows     map[string]WindowSignals
}

// Evaluate applies every configured rule to s in a fixed order and returns
// the fragments that fired. It has no side effects.
func Evaluate(instrumentID string, s Signals, t Thresholds) []models.AlertFragment {
	var out []models.AlertFragment
	add := func(rule, format string, args ...interface{}) {
		out = append(out, models.AlertFragment{Rule: rule, Text: fmt.Sprintf(format, args...)})
	}

	if s.OIChange.Valid && t.OIGrowth.Passes(s.OIChange.Value) {
		add(RuleOIGrowth, "OI %+.2f%% to %.2f, fresh positions opening", s.OIChange.Value, s.OILast)
	}

	if s.PriceChange.Valid && t.PriceChange.Passes(s.PriceChange.Value) {
		add(RulePriceChange, "Price %s %+.2f%% to %.4f", direction(s.PriceChange.Value, "up", "down"), s.PriceChange.Value, s.LastPrice)
	}

	if s.Funding.Valid {
		rate := s.Funding.Value
		switch {
		case t.FundingExtreme > 0 && math.Abs(rate) >= t.FundingExtreme:
			next := s.NextFunding
			if next == "" {
				next = "N/A"
			}
			add(RuleFunding, "Funding extreme %+.4f, positioning overheated, next funding %s", rate, next)
		case t.FundingWatch > 0 && math.Abs(rate) >= t.FundingWatch:
			add(RuleFunding, "Funding watch %+.4f, crowded positioning building", rate)
		}
	}

	if s.TakerTrend.Valid && t.TakerTrend.Passes(s.TakerTrend.Value) {
		add(RuleTakerTrend, "Taker buy/sell ratio %.2f (%s aggressive, delta %+.2f)", s.TakerRatio, direction(s.TakerTrend.Value, "buyers", "sellers"), s.TakerTrend.Value)
	}

	if s.Depth.Valid && t.DepthImbalance.Enabled() {
		ratio, limit := s.Depth.Value, t.DepthImbalance.Value
		switch {
		case ratio >= limit:
			add(RuleDepth, "Bid depth %.2fx asks, upward pressure", ratio)
		case ratio <= 1/limit:
			add(RuleDepth, "Ask depth %.2fx bids, heavy selling", 1/ratio)
		}
	}

	if t.Composite && compositeFires(s, t) {
		add(RuleComposite, "Flat price with OI and taker flow aligned, watch for a breakout")
	}

	for _, w := range t.Windows {
		out = append(out, evaluateWindow(w, s.Windows[w.Name])...)
	}
	return out
}

// compositeFires flags accumulation without price confirmation.
func compositeFires(s Signals, t Thresholds) bool {
	if !s.PriceChange.Valid || !s.OIChange.Valid || !s.TakerTrend.Valid {
		return false
	}
	if !t.PriceChange.Enabled() || !t.OIGrowth.Enabled() || !t.TakerTrend.Enabled() {
		return false
	}
	return math.Abs(s.PriceChange.Value) < t.PriceChange.Value &&
		t.OIGrowth.Passes(s.OIChange.Value) &&
		t.TakerTrend.Passes(s.TakerTrend.Value)
}

func evaluateWindow(w Window, ws WindowSignals) []models.AlertFragment {
	var (
		frags  []models.AlertFragment
		conds  int
		passed int
	)
	if w.Price.Enabled() {
		conds++
		if ws.Price.Valid && w.Price.Passes(ws.Price.Value) {
			passed++
			frags = append(frags, models.AlertFragment{
				Rule: RuleWindowPrice + ":" + w.Name,
				Text: fmt.Sprintf("%s price change %+.2f%%", w.Name, ws.Price.Value),
			})
		}
	}
	if w.OIGrowth.Enabled() {
		conds++
		if ws.OI.Valid && w.OIGrowth.Passes(ws.OI.Value) {
			passed++
			frags = append(frags, models.AlertFragment{
				Rule: RuleWindowOI + ":" + w.Name,
				Text: fmt.Sprintf("%s OI change %+.2f%%", w.Name, ws.OI.Value),
			})
		}
	}
	if conds == 0 || passed == 0 {
		return nil
	}
	if w.Match == MatchAny || passed == conds {
		return frags
	}
	return nil
}

func direction(v float64, up, down string) string {
	if v > 0 {
		return up
	}
	return down
}
