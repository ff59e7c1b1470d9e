package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/reader/binance"
	"github.com/DIY-6/web3-script/internal/rules"
	"github.com/DIY-6/web3-script/internal/signal"
)

const keyMarkPrice = "mark_price"

// FuturesSource is the subset of the Binance client the futures scanner uses.
type FuturesSource interface {
	PremiumIndex(ctx context.Context, symbol string) (binance.PremiumIndex, error)
	OpenInterestHistory(ctx context.Context, symbol, period string, limit int, field binance.OIField) ([]float64, error)
	TakerRatioHistory(ctx context.Context, symbol, period string, limit int) ([]float64, error)
	Depth(ctx context.Context, symbol string, limit int) (binance.Book, error)
}

// weightReporter is implemented by sources that track exchange request
// weight.
type weightReporter interface {
	ReportUsedWeight()
}

// FuturesConfig configures the futures scanner.
type FuturesConfig struct {
	OIPeriod    string
	OILimit     int
	TakerPeriod string
	TakerLimit  int
	DepthLimit  int
	Thresholds  rules.Thresholds
	Location    *time.Location
}

// FuturesScanner watches short-window open interest, funding, taker flow,
// book depth and the mark price move since the previous round.
type FuturesScanner struct {
	src      FuturesSource
	universe []models.Instrument
	cfg      FuturesConfig
}

// NewFuturesScanner creates a futures scanner over universe.
func NewFuturesScanner(src FuturesSource, universe []models.Instrument, cfg FuturesConfig) *FuturesScanner {
	if cfg.OIPeriod == "" {
		cfg.OIPeriod = "5m"
	}
	if cfg.OILimit <= 0 {
		cfg.OILimit = 3
	}
	if cfg.TakerPeriod == "" {
		cfg.TakerPeriod = "5m"
	}
	if cfg.TakerLimit <= 0 {
		cfg.TakerLimit = 2
	}
	if cfg.DepthLimit <= 0 {
		cfg.DepthLimit = 50
	}
	return &FuturesScanner{src: src, universe: universe, cfg: cfg}
}

func (s *FuturesScanner) Name() string { return "futures" }

func (s *FuturesScanner) Instruments() []models.Instrument { return s.universe }

func (s *FuturesScanner) Prepare(context.Context, time.Time) error {
	if wr, ok := s.src.(weightReporter); ok {
		wr.ReportUsedWeight()
	}
	return nil
}

func (s *FuturesScanner) Scan(ctx context.Context, inst models.Instrument, state State, now time.Time) (Result, error) {
	sym := inst.Symbol

	pi, err := s.src.PremiumIndex(ctx, sym)
	if err != nil {
		return Result{}, err
	}
	oiHist, err := s.src.OpenInterestHistory(ctx, sym, s.cfg.OIPeriod, s.cfg.OILimit, binance.OpenInterest)
	if err != nil {
		return Result{}, err
	}
	takerHist, err := s.src.TakerRatioHistory(ctx, sym, s.cfg.TakerPeriod, s.cfg.TakerLimit)
	if err != nil {
		return Result{}, err
	}
	book, err := s.src.Depth(ctx, sym, s.cfg.DepthLimit)
	if err != nil {
		return Result{}, err
	}

	oi := signal.SeriesChange(oiHist)
	taker := signal.SeriesTrend(takerHist)
	depth := signal.Imbalance(book.Bids, book.Asks)
	priceChange := signal.InterRoundChange(state.Reading(sym, keyMarkPrice), pi.MarkPrice)

	sig := rules.Signals{
		LastPrice:   pi.MarkPrice,
		PriceChange: signal.Of(priceChange),
		OIChange:    signal.Of(oi.Percent),
		OILast:      oi.Last,
		Funding:     signal.Of(pi.FundingRate),
		NextFunding: stamp(pi.NextFundingTime, s.cfg.Location),
		TakerRatio:  taker.Last,
		TakerTrend:  signal.Of(taker.Delta),
		Depth:       depth,
	}

	res := Result{Updates: []Update{{Symbol: sym, Key: keyMarkPrice, Value: pi.MarkPrice}}}
	frags := rules.Evaluate(sym, sig, s.cfg.Thresholds)
	if len(frags) == 0 {
		return res, nil
	}

	depthText := "N/A"
	if depth.Valid {
		depthText = fmt.Sprintf("%.2f", depth.Value)
	}
	res.Block = &models.AlertBlock{
		Symbol: sym,
		Time:   now,
		Header: []string{
			fmt.Sprintf("[%s] %s", stamp(now, s.cfg.Location), sym),
			fmt.Sprintf("Price %.4f USDT", pi.MarkPrice),
			fmt.Sprintf("Funding %+.4f", pi.FundingRate),
			"Depth bid/ask ratio " + depthText,
			"Signals:",
		},
		Fragments: frags,
	}
	return res, nil
}

func (s *FuturesScanner) RoundHeader(time.Time) string { return "" }

func (s *FuturesScanner) Announcement(now time.Time) string {
	t := s.cfg.Thresholds
	lines := []string{
		fmt.Sprintf("Futures monitor started at %s", stamp(now, s.cfg.Location)),
		fmt.Sprintf("Tracking %d USDT perpetuals", len(s.universe)),
		fmt.Sprintf("OI growth >= %.2f%% over %d x %s", t.OIGrowth.Value, s.cfg.OILimit, s.cfg.OIPeriod),
		fmt.Sprintf("|Price change| >= %.2f%% between rounds", t.PriceChange.Value),
		fmt.Sprintf("Funding extreme %.4f / watch %.4f", t.FundingExtreme, t.FundingWatch),
		fmt.Sprintf("Taker ratio trend >= %.2f, depth ratio >= %.2f", t.TakerTrend.Value, t.DepthImbalance.Value),
	}
	return strings.Join(lines, "\n")
}
