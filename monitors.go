package main

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/DIY-6/web3-script/config"
	"github.com/DIY-6/web3-script/internal/metrics"
	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/processor"
	"github.com/DIY-6/web3-script/internal/reader/binance"
	"github.com/DIY-6/web3-script/internal/reader/coingecko"
	"github.com/DIY-6/web3-script/internal/rules"
	"github.com/DIY-6/web3-script/internal/symbols"
	"github.com/DIY-6/web3-script/logger"
)

var perpetualFilter = binance.Filter{ContractType: "PERPETUAL", QuoteAsset: "USDT", Status: "TRADING"}

// buildMonitors loads the perpetual universe when a futures based monitor is
// enabled and wires every enabled monitor. A universe failure is returned as
// is and stops startup.
func buildMonitors(ctx context.Context, cfg *config.Config, client *binance.Client, httpClient *http.Client, dispatcher processor.Dispatcher, rec *metrics.Recorder) ([]*monitor, error) {
	log := logger.GetLogger().WithComponent("main")
	loc := cfg.Display.Location()
	mc := cfg.Monitors

	var listing []models.Instrument
	if mc.Futures.Enabled || mc.OI.Enabled {
		var err error
		listing, err = client.LoadUniverse(ctx, perpetualFilter, 0)
		if err != nil {
			return nil, fmt.Errorf("load instrument universe: %w", err)
		}
	}

	var out []*monitor
	add := func(sc processor.Scanner, opts processor.Options, announce bool) {
		rec.SetUniverseSize(sc.Name(), len(sc.Instruments()))
		log.WithFields(logger.Fields{"monitor": sc.Name(), "instruments": len(sc.Instruments())}).Info("monitor configured")
		out = append(out, &monitor{Monitor: processor.NewMonitor(sc, dispatcher, opts), announce: announce})
	}
	base := processor.Options{Concurrency: cfg.Reader.Concurrency, Recorder: rec}

	if mc.Futures.Enabled {
		th, err := futuresThresholds(mc.Futures.Thresholds)
		if err != nil {
			return nil, err
		}
		universe := binance.SelectUniverse(listing, perpetualFilter, mc.Futures.MaxSymbols)
		sc := processor.NewFuturesScanner(client, universe, processor.FuturesConfig{
			OIPeriod:    mc.Futures.OIPeriod,
			OILimit:     mc.Futures.OILimit,
			TakerPeriod: mc.Futures.TakerPeriod,
			TakerLimit:  mc.Futures.TakerLimit,
			DepthLimit:  mc.Futures.DepthLimit,
			Thresholds:  th,
			Location:    loc,
		})
		o := base
		o.Interval = mc.Futures.PollInterval
		add(sc, o, mc.Futures.Announce)
	}

	if mc.OI.Enabled {
		specs, windows, err := oiWindows(mc.OI.Windows)
		if err != nil {
			return nil, err
		}
		universe := binance.SelectUniverse(listing, perpetualFilter, mc.OI.MaxSymbols)

		var caps processor.MarketCaps
		if cfg.CoinGecko.Enabled {
			cg := coingecko.NewClient(cfg.CoinGecko.BaseURL, httpClient, cfg.CoinGecko.BatchSize)
			ids := symbols.CoinGeckoIDs(models.Symbols(universe), cfg.CoinGecko.IDs)
			caps = coingecko.NewCache(cg, ids, cfg.CoinGecko.RefreshInterval)
		}
		sc := processor.NewOIScanner(client, caps, universe, processor.OIConfig{
			Windows:          specs,
			HeadlineWindow:   mc.OI.HeadlineWindow,
			MinQuoteVolume:   mc.OI.MinNotional24h,
			RequireMarketCap: mc.OI.RequireMarketCap,
			Thresholds:       rules.Thresholds{Windows: windows},
			Location:         loc,
		})
		o := base
		o.Interval = mc.OI.PollInterval
		add(sc, o, mc.OI.Announce)
	}

	if mc.Spot.Enabled {
		pc, err := threshold("monitors.spot.price_change", mc.Spot.PriceChange, rules.Absolute, percentDirections)
		if err != nil {
			return nil, err
		}
		listed := make([]models.Instrument, 0, len(mc.Spot.Symbols))
		for _, s := range mc.Spot.Symbols {
			listed = append(listed, models.Instrument{Symbol: strings.ToUpper(strings.TrimSpace(s)), QuoteAsset: "USDT"})
		}
		sc := processor.NewSpotScanner(client, binance.SelectUniverse(listed, binance.Filter{}, 0), processor.SpotConfig{
			Thresholds: rules.Thresholds{PriceChange: pc},
			Location:   loc,
		})
		o := base
		o.Interval = mc.Spot.PollInterval
		add(sc, o, mc.Spot.Announce)
	}

	return out, nil
}

var (
	percentDirections = []rules.Direction{rules.Absolute, rules.Minimum}
	ratioDirections   = []rules.Direction{rules.Dual}
)

// threshold converts tc, defaulting to def, and rejects a direction the
// signal cannot be compared with.
func threshold(field string, tc config.ThresholdConfig, def rules.Direction, allowed []rules.Direction) (rules.Threshold, error) {
	dir, err := rules.ParseDirection(tc.Direction, def)
	if err != nil {
		return rules.Threshold{}, &config.ConfigError{Field: field, Reason: err.Error(), Err: err}
	}
	if !slices.Contains(allowed, dir) {
		return rules.Threshold{}, &config.ConfigError{Field: field, Reason: fmt.Sprintf("direction %q not supported, want one of %v", dir, allowed)}
	}
	return rules.Threshold{Value: tc.Value, Direction: dir}, nil
}

func futuresThresholds(ft config.FuturesThresholds) (rules.Thresholds, error) {
	out := rules.Thresholds{
		FundingExtreme: ft.FundingExtreme,
		FundingWatch:   ft.FundingWatch,
		Composite:      ft.Composite,
	}
	var err error
	if out.OIGrowth, err = threshold("oi_growth", ft.OIGrowth, rules.Minimum, percentDirections); err != nil {
		return out, err
	}
	if out.PriceChange, err = threshold("price_change", ft.PriceChange, rules.Absolute, percentDirections); err != nil {
		return out, err
	}
	if out.TakerTrend, err = threshold("taker_trend", ft.TakerTrend, rules.Absolute, percentDirections); err != nil {
		return out, err
	}
	if out.DepthImbalance, err = threshold("depth_imbalance", ft.DepthImbalance, rules.Dual, ratioDirections); err != nil {
		return out, err
	}
	return out, nil
}

func oiWindows(cfgs []config.WindowConfig) ([]processor.WindowSpec, []rules.Window, error) {
	specs := make([]processor.WindowSpec, 0, len(cfgs))
	windows := make([]rules.Window, 0, len(cfgs))
	for _, w := range cfgs {
		price, err := threshold("windows."+w.Name+".price", w.Price, rules.Absolute, percentDirections)
		if err != nil {
			return nil, nil, err
		}
		oi, err := threshold("windows."+w.Name+".oi_growth", w.OIGrowth, rules.Minimum, percentDirections)
		if err != nil {
			return nil, nil, err
		}
		match := rules.MatchAll
		if w.Match == string(rules.MatchAny) {
			match = rules.MatchAny
		}
		specs = append(specs, processor.WindowSpec{
			Name:          w.Name,
			KlineInterval: w.KlineInterval,
			KlineLimit:    w.KlineLimit,
			OIPeriod:      w.OIPeriod,
			OILimit:       w.OILimit,
		})
		windows = append(windows, rules.Window{Name: w.Name, Price: price, OIGrowth: oi, Match: match})
	}
	return specs, windows, nil
}
