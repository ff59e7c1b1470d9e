package binance

import (
	"context"
	"sort"

	futures "github.com/adshao/go-binance/v2/futures"

	"github.com/DIY-6/web3-script/internal/models"
	"github.com/DIY-6/web3-script/internal/reader"
	"github.com/DIY-6/web3-script/logger"
)

// Filter selects listed instruments. Empty fields match anything.
type Filter struct {
	ContractType string
	QuoteAsset   string
	Status       string
}

// Matches reports whether inst satisfies every set field of f.
func (f Filter) Matches(inst models.Instrument) bool {
	if f.ContractType != "" && inst.ContractType != f.ContractType {
		return false
	}
	if f.QuoteAsset != "" && inst.QuoteAsset != f.QuoteAsset {
		return false
	}
	if f.Status != "" && inst.Status != f.Status {
		return false
	}
	return true
}

// LoadUniverse fetches the futures exchange listing and returns the matching
// instruments, deduplicated and sorted by symbol, capped at maxCount when
// maxCount is positive. Any failure to obtain or decode the listing is a
// *reader.FetchError.
func (c *Client) LoadUniverse(ctx context.Context, filter Filter, maxCount int) ([]models.Instrument, error) {
	const endpoint = "/fapi/v1/exchangeInfo"

	info, err := c.futures.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, &reader.FetchError{Source: source, Endpoint: endpoint, Err: err}
	}

	c.weightLimit.Store(requestWeightLimit(info.RateLimits))

	listing := make([]models.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		listing = append(listing, models.Instrument{
			Symbol:       s.Symbol,
			BaseAsset:    s.BaseAsset,
			QuoteAsset:   s.QuoteAsset,
			ContractType: string(s.ContractType),
			Status:       s.Status,
		})
	}

	universe := SelectUniverse(listing, filter, maxCount)
	c.log.WithComponent("binance_reader").WithFields(logger.Fields{
		"listed":       len(listing),
		"selected":     len(universe),
		"max_count":    maxCount,
		"weight_limit": c.weightLimit.Load(),
	}).Info("instrument universe loaded")
	return universe, nil
}

// SelectUniverse applies filter, removes duplicate symbols, sorts
// lexicographically and truncates to maxCount when it is positive.
func SelectUniverse(listing []models.Instrument, filter Filter, maxCount int) []models.Instrument {
	seen := make(map[string]struct{}, len(listing))
	out := make([]models.Instrument, 0, len(listing))
	for _, inst := range listing {
		if inst.Symbol == "" || !filter.Matches(inst) {
			continue
		}
		if _, dup := seen[inst.Symbol]; dup {
			continue
		}
		seen[inst.Symbol] = struct{}{}
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	if maxCount > 0 && len(out) > maxCount {
		out = out[:maxCount]
	}
	return out
}

// requestWeightLimit extracts the per-minute REQUEST_WEIGHT limit, 0 when
// the listing does not carry one.
func requestWeightLimit(limits []futures.RateLimit) int64 {
	for _, rl := range limits {
		if rl.RateLimitType == "REQUEST_WEIGHT" && rl.Interval == "MINUTE" {
			return rl.Limit
		}
	}
	return 0
}
