package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/reader/binance"
	"github.com/DIY-6/web3-script/internal/rules"
	"github.com/DIY-6/web3-script/internal/signal"
	"github.com/DIY-6/web3-script/logger"
)

// OISource is the subset of the Binance client the open interest scanner
// uses.
type OISource interface {
	Tickers24h(ctx context.Context) (map[string]binance.Ticker, error)
	KlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
	OpenInterestHistory(ctx context.Context, symbol, period string, limit int, field binance.OIField) ([]float64, error)
}

// MarketCaps is the market cap cache consulted per symbol.
type MarketCaps interface {
	Refresh(ctx context.Context, now time.Time) (bool, error)
	Get(symbol string) (float64, bool)
}

// WindowSpec says how the price and open interest changes of one window are
// fetched.
type WindowSpec struct {
	Name          string
	KlineInterval string
	KlineLimit    int
	OIPeriod      string
	OILimit       int
}

// OIConfig configures the open interest scanner.
type OIConfig struct {
	Windows []WindowSpec
	// HeadlineWindow names the window whose last price and open interest
	// fill the block header. Empty means 1h when configured, else the first.
	HeadlineWindow   string
	MinQuoteVolume   float64
	RequireMarketCap bool
	Thresholds       rules.Thresholds
	Location         *time.Location
}

// OIScanner looks for joint price and open interest moves over one or more
// windows on liquid perpetuals, reporting the OI to market cap ratio.
type OIScanner struct {
	src      OISource
	caps     MarketCaps
	universe []models.Instrument
	cfg      OIConfig
	headline int

	// tickers is replaced by Prepare and only read by Scan.
	tickers map[string]binance.Ticker
}

// NewOIScanner creates an open interest scanner. caps may be nil, in which
// case the 24h quote volume stands in for market cap.
func NewOIScanner(src OISource, caps MarketCaps, universe []models.Instrument, cfg OIConfig) *OIScanner {
	for i := range cfg.Windows {
		w := &cfg.Windows[i]
		if w.KlineInterval == "" {
			w.KlineInterval = w.Name
		}
		if w.OIPeriod == "" {
			w.OIPeriod = w.Name
		}
		if w.KlineLimit < 2 {
			w.KlineLimit = 2
		}
		if w.OILimit < 2 {
			w.OILimit = 2
		}
	}
	return &OIScanner{src: src, caps: caps, universe: universe, cfg: cfg, headline: headlineIndex(cfg), tickers: map[string]binance.Ticker{}}
}

func headlineIndex(cfg OIConfig) int {
	name := cfg.HeadlineWindow
	if name == "" {
		name = "1h"
	}
	for i, w := range cfg.Windows {
		if w.Name == name {
			return i
		}
	}
	return 0
}

func (s *OIScanner) Name() string { return "oi" }

func (s *OIScanner) Instruments() []models.Instrument { return s.universe }

// Prepare refreshes market caps when due and loads the 24h tickers of all
// symbols. A ticker failure leaves the round without tickers, so every
// instrument is skipped.
func (s *OIScanner) Prepare(ctx context.Context, now time.Time) error {
	var errs []error
	if s.caps != nil {
		if _, err := s.caps.Refresh(ctx, now); err != nil {
			errs = append(errs, fmt.Errorf("refresh market caps: %w", err))
		}
	}
	if wr, ok := s.src.(weightReporter); ok {
		wr.ReportUsedWeight()
	}
	tickers, err := s.src.Tickers24h(ctx)
	if err != nil {
		tickers = map[string]binance.Ticker{}
		errs = append(errs, fmt.Errorf("load 24h tickers: %w", err))
	}
	s.tickers = tickers
	logger.GetLogger().WithComponent("oi_scanner").WithFields(logger.Fields{"tickers": len(tickers)}).Debug("round prepared")
	return errors.Join(errs...)
}

func (s *OIScanner) Scan(ctx context.Context, inst models.Instrument, _ State, now time.Time) (Result, error) {
	sym := inst.Symbol
	t, ok := s.tickers[sym]
	if !ok {
		return Result{Skipped: "no 24h ticker"}, nil
	}
	if t.QuoteVolume < s.cfg.MinQuoteVolume {
		return Result{Skipped: "24h notional below minimum"}, nil
	}

	mc := t.QuoteVolume
	if s.caps != nil {
		if v, ok := s.caps.Get(sym); ok {
			mc = v
		} else if s.cfg.RequireMarketCap {
			return Result{Skipped: "no market cap"}, nil
		}
	}

	windows := make(map[string]rules.WindowSignals, len(s.cfg.Windows))
	changes := make([]signal.Change, 0, 2*len(s.cfg.Windows))
	var lastPrice, oiNotional float64
	for i, w := range s.cfg.Windows {
		closes, err := s.src.KlineCloses(ctx, sym, w.KlineInterval, w.KlineLimit)
		if err != nil {
			return Result{}, err
		}
		oiHist, err := s.src.OpenInterestHistory(ctx, sym, w.OIPeriod, w.OILimit, binance.OpenInterestValue)
		if err != nil {
			return Result{}, err
		}
		price := signal.SeriesChange(closes)
		oi := signal.SeriesChange(oiHist)
		windows[w.Name] = rules.WindowSignals{Price: signal.Of(price.Percent), OI: signal.Of(oi.Percent)}
		changes = append(changes, price, oi)
		if i == s.headline {
			lastPrice, oiNotional = price.Last, oi.Last
		}
	}

	frags := rules.Evaluate(sym, rules.Signals{Windows: windows}, s.cfg.Thresholds)
	if len(frags) == 0 {
		return Result{}, nil
	}

	ratio := signal.Ratio(oiNotional, mc)
	header := []string{
		fmt.Sprintf("%s  MC:$%s", sym, millions(mc)),
		"",
		fmt.Sprintf("Price: %.4f", lastPrice),
		fmt.Sprintf("OI:$%s", millions(oiNotional)),
		fmt.Sprintf("OI/MC:%.4f", ratio.Value),
	}
	for i, w := range s.cfg.Windows {
		header = append(header,
			fmt.Sprintf("%s price change:%+.2f%%", w.Name, changes[2*i].Percent),
			fmt.Sprintf("%s OI change:%+.2f%%", w.Name, changes[2*i+1].Percent),
		)
	}
	header = append(header, fmt.Sprintf("24H Price change:%+.2f%%", t.PriceChangePercent), "Signals:")

	return Result{Block: &models.AlertBlock{Symbol: sym, Time: now, Header: header, Fragments: frags}}, nil
}

func (s *OIScanner) RoundHeader(now time.Time) string {
	lines := []string{fmt.Sprintf("[%s] Price/OI movers", stamp(now, s.cfg.Location))}
	return strings.Join(append(lines, s.conditions()...), "\n")
}

func (s *OIScanner) Announcement(now time.Time) string {
	lines := []string{
		"Price/OI monitor started",
		fmt.Sprintf("Start time: %s", stamp(now, s.cfg.Location)),
		fmt.Sprintf("Tracking up to %d contracts, 24h notional >= %s", len(s.universe), millions(s.cfg.MinQuoteVolume)),
	}
	lines = append(lines, s.conditions()...)
	if s.caps != nil {
		lines = append(lines, "MC source: CoinGecko market_cap (USD); symbols without MC fall back to 24h notional unless required")
	} else {
		lines = append(lines, "MC source: 24h quote volume")
	}
	return strings.Join(lines, "\n")
}

func (s *OIScanner) conditions() []string {
	out := make([]string, 0, len(s.cfg.Thresholds.Windows))
	for _, w := range s.cfg.Thresholds.Windows {
		join := "and"
		if w.Match == rules.MatchAny {
			join = "or"
		}
		op := "|ΔP|"
		if w.Price.Direction == rules.Minimum {
			op = "ΔP"
		}
		out = append(out, fmt.Sprintf("%s: %s >= %.2f%% %s ΔOI >= %.2f%%", w.Name, op, w.Price.Value, join, w.OIGrowth.Value))
	}
	return out
}
