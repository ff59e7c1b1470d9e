package rules

import (
	"strings"
	"testing"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/signal"
)

func futuresThresholds() Thresholds {
	return Thresholds{
		OIGrowth:       Threshold{Value: 3, Direction: Minimum},
		PriceChange:    Threshold{Value: 2, Direction: Absolute},
		FundingExtreme: 0.01,
		FundingWatch:   0.005,
		TakerTrend:     Threshold{Value: 0.2, Direction: Absolute},
		DepthImbalance: Threshold{Value: 1.8, Direction: Dual},
		Composite:      true,
	}
}

func rulesOf(frags []models.AlertFragment) []string {
	out := make([]string, 0, len(frags))
	for _, f := range frags {
		out = append(out, f.Rule)
	}
	return out
}

func TestFundingExtremeWins(t *testing.T) {
	frags := Evaluate("BTCUSDT", Signals{Funding: signal.Of(0.012), NextFunding: "2024-01-01 08:00:00 UTC+8"}, futuresThresholds())
	if len(frags) != 1 {
		t.Fatalf("expected exactly one fragment, got %v", frags)
	}
	if !strings.Contains(frags[0].Text, "extreme") || strings.Contains(frags[0].Text, "watch") {
		t.Errorf("expected extreme fragment, got %q", frags[0].Text)
	}
	if !strings.Contains(frags[0].Text, "2024-01-01 08:00:00 UTC+8") {
		t.Errorf("next funding time missing: %q", frags[0].Text)
	}
}

func TestFundingLevels(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.001, ""},
		{-0.004, ""},
		{0.006, "watch"},
		{-0.007, "watch"},
		{-0.02, "extreme"},
	}
	for _, tt := range tests {
		frags := Evaluate("X", Signals{Funding: signal.Of(tt.rate)}, futuresThresholds())
		if tt.want == "" {
			if len(frags) != 0 {
				t.Errorf("rate %v: expected no fragments, got %v", tt.rate, frags)
			}
			continue
		}
		if len(frags) != 1 || !strings.Contains(frags[0].Text, tt.want) {
			t.Errorf("rate %v: expected %s fragment, got %v", tt.rate, tt.want, frags)
		}
	}
}

func TestFundingExtremeWithoutNextTime(t *testing.T) {
	frags := Evaluate("X", Signals{Funding: signal.Of(0.05)}, futuresThresholds())
	if len(frags) != 1 || !strings.Contains(frags[0].Text, "N/A") {
		t.Fatalf("expected N/A next funding, got %v", frags)
	}
}

func TestOIGrowthIsOneSided(t *testing.T) {
	th := futuresThresholds()
	if frags := Evaluate("X", Signals{OIChange: signal.Of(-10)}, th); len(frags) != 0 {
		t.Errorf("shrinking OI must not fire: %v", frags)
	}
	frags := Evaluate("X", Signals{OIChange: signal.Of(4), OILast: 1000}, th)
	if len(frags) != 1 || frags[0].Rule != RuleOIGrowth {
		t.Fatalf("expected oi fragment, got %v", frags)
	}
}

func TestPriceChangeIsTwoSided(t *testing.T) {
	th := futuresThresholds()
	up := Evaluate("X", Signals{PriceChange: signal.Of(2.5), LastPrice: 10}, th)
	down := Evaluate("X", Signals{PriceChange: signal.Of(-2.5), LastPrice: 10}, th)
	if len(up) != 1 || !strings.Contains(up[0].Text, "up") {
		t.Errorf("expected up fragment, got %v", up)
	}
	if len(down) != 1 || !strings.Contains(down[0].Text, "down") {
		t.Errorf("expected down fragment, got %v", down)
	}
	th.PriceChange.Direction = Minimum
	if frags := Evaluate("X", Signals{PriceChange: signal.Of(-2.5)}, th); len(frags) != 0 {
		t.Errorf("minimum direction must ignore drops: %v", frags)
	}
}

func TestTakerTrendRecordsDirection(t *testing.T) {
	frags := Evaluate("X", Signals{TakerRatio: 0.7, TakerTrend: signal.Of(-0.3)}, futuresThresholds())
	if len(frags) != 1 || !strings.Contains(frags[0].Text, "sellers") {
		t.Fatalf("expected sellers fragment, got %v", frags)
	}
}

func TestConfiguredDirectionIsHonored(t *testing.T) {
	th := futuresThresholds()
	th.TakerTrend.Direction = Minimum
	if frags := Evaluate("X", Signals{TakerRatio: 0.6, TakerTrend: signal.Of(-0.5)}, th); len(frags) != 0 {
		t.Errorf("minimum taker threshold must ignore a falling ratio: %v", frags)
	}
	if frags := Evaluate("X", Signals{TakerRatio: 1.4, TakerTrend: signal.Of(0.5)}, th); len(frags) != 1 || frags[0].Rule != RuleTakerTrend {
		t.Errorf("expected taker fragment, got %v", frags)
	}

	th.OIGrowth.Direction = Absolute
	frags := Evaluate("X", Signals{OIChange: signal.Of(-4), OILast: 900}, th)
	if len(frags) != 1 || frags[0].Rule != RuleOIGrowth {
		t.Errorf("absolute oi threshold should fire on a drop, got %v", frags)
	}
}

func TestDepthImbalance(t *testing.T) {
	th := futuresThresholds()
	tests := []struct {
		depth signal.Reading
		want  string
	}{
		{signal.Of(2.0), "Bid depth"},
		{signal.Of(0.5), "Ask depth 2.00x"},
		{signal.Of(1.0), ""},
		{signal.Reading{}, ""},
	}
	for _, tt := range tests {
		frags := Evaluate("X", Signals{Depth: tt.depth}, th)
		if tt.want == "" {
			if len(frags) != 0 {
				t.Errorf("depth %+v: expected nothing, got %v", tt.depth, frags)
			}
			continue
		}
		if len(frags) != 1 || !strings.Contains(frags[0].Text, tt.want) {
			t.Errorf("depth %+v: expected %q, got %v", tt.depth, tt.want, frags)
		}
	}
}

func TestCompositeRule(t *testing.T) {
	s := Signals{
		PriceChange: signal.Of(0.5),
		OIChange:    signal.Of(5),
		TakerTrend:  signal.Of(0.25),
	}
	got := rulesOf(Evaluate("X", s, futuresThresholds()))
	want := []string{RuleOIGrowth, RuleTakerTrend, RuleComposite}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("rules=%v want %v", got, want)
	}

	s.PriceChange = signal.Of(3)
	for _, r := range rulesOf(Evaluate("X", s, futuresThresholds())) {
		if r == RuleComposite {
			t.Fatalf("composite must not fire when price moved")
		}
	}
}

func TestNoSignalsNoFragments(t *testing.T) {
	if frags := Evaluate("X", Signals{}, futuresThresholds()); len(frags) != 0 {
		t.Fatalf("expected no fragments, got %v", frags)
	}
}

func TestWindowsAreIndependent(t *testing.T) {
	th := Thresholds{Windows: []Window{
		{Name: "15m", Price: Threshold{Value: 8, Direction: Absolute}, OIGrowth: Threshold{Value: 8, Direction: Minimum}, Match: MatchAll},
		{Name: "1h", Price: Threshold{Value: 10, Direction: Absolute}, OIGrowth: Threshold{Value: 10, Direction: Minimum}, Match: MatchAll},
	}}
	s := Signals{Windows: map[string]WindowSignals{
		"15m": {Price: signal.Of(9), OI: signal.Of(9)},
		"1h":  {Price: signal.Of(-12), OI: signal.Of(15)},
	}}
	got := rulesOf(Evaluate("X", s, th))
	want := []string{"window_price:15m", "window_oi:15m", "window_price:1h", "window_oi:1h"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("rules=%v want %v", got, want)
	}
}

func TestWindowMatch(t *testing.T) {
	w := Window{Name: "1h", Price: Threshold{Value: 10, Direction: Absolute}, OIGrowth: Threshold{Value: 10, Direction: Minimum}}
	s := Signals{Windows: map[string]WindowSignals{"1h": {Price: signal.Of(-12), OI: signal.Of(5)}}}

	w.Match = MatchAll
	if frags := Evaluate("X", s, Thresholds{Windows: []Window{w}}); len(frags) != 0 {
		t.Errorf("all: expected nothing when OI misses, got %v", frags)
	}
	w.Match = MatchAny
	frags := Evaluate("X", s, Thresholds{Windows: []Window{w}})
	if len(frags) != 1 || frags[0].Rule != "window_price:1h" {
		t.Errorf("any: expected price fragment, got %v", frags)
	}
	if !strings.Contains(frags[0].Text, "-12.00%") {
		t.Errorf("direction missing from text: %q", frags[0].Text)
	}
}

func TestThresholdPasses(t *testing.T) {
	tests := []struct {
		th   Threshold
		v    float64
		want bool
	}{
		{Threshold{Value: 10, Direction: Absolute}, -10, true},
		{Threshold{Value: 10, Direction: Absolute}, 9.99, false},
		{Threshold{Value: 10, Direction: Minimum}, -20, false},
		{Threshold{Value: 2, Direction: Dual}, 0.5, true},
		{Threshold{Value: 2, Direction: Dual}, 1.5, false},
		{Threshold{Value: 0, Direction: Absolute}, 100, false},
	}
	for _, tt := range tests {
		if got := tt.th.Passes(tt.v); got != tt.want {
			t.Errorf("%+v.Passes(%v)=%v want %v", tt.th, tt.v, got, tt.want)
		}
	}
}

func TestParseDirection(t *testing.T) {
	if d, err := ParseDirection("", Minimum); err != nil || d != Minimum {
		t.Errorf("empty name: got %v, %v", d, err)
	}
	if d, err := ParseDirection("dual", Absolute); err != nil || d != Dual {
		t.Errorf("dual: got %v, %v", d, err)
	}
	if _, err := ParseDirection("sideways", Absolute); err == nil {
		t.Errorf("expected error for unknown direction")
	}
}
