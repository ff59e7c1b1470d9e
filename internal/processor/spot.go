package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/rules"
	"github.com/DIY-6/web3-script/internal/signal"
)

const (
	keyNotifiedPrice = "notified_price"

	// RuleMonitorStarted marks the first observation of a spot symbol.
	RuleMonitorStarted = "monitor_started"
)

// SpotSource fetches spot prices.
type SpotSource interface {
	SpotPrice(ctx context.Context, symbol string) (float64, error)
}

// SpotConfig configures the spot scanner.
type SpotConfig struct {
	Thresholds rules.Thresholds
	Location   *time.Location
}

// SpotScanner compares each spot price with the price at the last
// notification. The reference only moves when an alert is sent, so slow
// drifts still add up to an alert.
type SpotScanner struct {
	src      SpotSource
	universe []models.Instrument
	cfg      SpotConfig
}

// NewSpotScanner creates a spot scanner over the given symbols.
func NewSpotScanner(src SpotSource, universe []models.Instrument, cfg SpotConfig) *SpotScanner {
	return &SpotScanner{src: src, universe: universe, cfg: cfg}
}

func (s *SpotScanner) Name() string { return "spot" }

func (s *SpotScanner) Instruments() []models.Instrument { return s.universe }

func (s *SpotScanner) Prepare(context.Context, time.Time) error { return nil }

func (s *SpotScanner) Scan(ctx context.Context, inst models.Instrument, state State, now time.Time) (Result, error) {
	sym := inst.Symbol
	price, err := s.src.SpotPrice(ctx, sym)
	if err != nil {
		return Result{}, err
	}

	var frags []models.AlertFragment
	prev := state.Reading(sym, keyNotifiedPrice)
	if !prev.Valid {
		frags = []models.AlertFragment{{
			Rule: RuleMonitorStarted,
			Text: fmt.Sprintf("Monitor started, current price %.4f", price),
		}}
	} else {
		sig := rules.Signals{LastPrice: price, PriceChange: signal.Of(signal.PercentChange(prev.Value, price))}
		frags = rules.Evaluate(sym, sig, rules.Thresholds{PriceChange: s.cfg.Thresholds.PriceChange})
	}
	if len(frags) == 0 {
		return Result{}, nil
	}

	return Result{
		Block: &models.AlertBlock{
			Symbol:    sym,
			Time:      now,
			Header:    []string{fmt.Sprintf("[%s] %s %.4f", stamp(now, s.cfg.Location), sym, price)},
			Fragments: frags,
		},
		Updates: []Update{{Symbol: sym, Key: keyNotifiedPrice, Value: price}},
	}, nil
}

func (s *SpotScanner) RoundHeader(time.Time) string { return "" }

func (s *SpotScanner) Announcement(now time.Time) string {
	syms := models.Symbols(s.universe)
	return strings.Join([]string{
		fmt.Sprintf("Spot monitor started at %s", stamp(now, s.cfg.Location)),
		"Symbols: " + strings.Join(syms, ", "),
		fmt.Sprintf("|Price change| >= %.2f%% since last alert", s.cfg.Thresholds.PriceChange.Value),
	}, "\n")
}
