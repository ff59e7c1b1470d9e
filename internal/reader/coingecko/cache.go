package coingecko

import (
	"context"
	"time"

	"github.com/DIY-6/web3-script/logger"
)

// Source is the lookup the cache refreshes from.
type Source interface {
	MarketCaps(ctx context.Context, ids []string) (map[string]float64, error)
}

// Cache keeps symbol market caps between refreshes. It is written only by
// Refresh and is not safe for use concurrent with Refresh.
type Cache struct {
	source   Source
	ids      map[string]string
	interval time.Duration

	values  map[string]float64
	updated time.Time
}

// NewCache creates a cache for the symbol -> coin id mapping, refreshed at
// most once per interval.
func NewCache(src Source, symbolIDs map[string]string, interval time.Duration) *Cache {
	return &Cache{
		source:   src,
		ids:      symbolIDs,
		interval: interval,
		values:   map[string]float64{},
	}
}

// Due reports whether a refresh should run at now.
func (c *Cache) Due(now time.Time) bool {
	return c.updated.IsZero() || now.Sub(c.updated) >= c.interval
}

// Refresh reloads market caps when the refresh interval elapsed. On failure
// the previous values are kept and the next call retries.
func (c *Cache) Refresh(ctx context.Context, now time.Time) (bool, error) {
	if !c.Due(now) {
		return false, nil
	}
	ids := make([]string, 0, len(c.ids))
	for _, id := range c.ids {
		ids = append(ids, id)
	}
	byID, err := c.source.MarketCaps(ctx, ids)
	if err != nil {
		return false, err
	}
	values := make(map[string]float64, len(c.ids))
	for sym, id := range c.ids {
		if mc, ok := byID[id]; ok && mc > 0 {
			values[sym] = mc
		}
	}
	c.values = values
	c.updated = now

	logger.GetLogger().WithComponent("coingecko").WithFields(logger.Fields{
		"symbols": len(values),
		"ids":     len(ids),
	}).Info("market caps refreshed")
	return true, nil
}

// Get returns the cached market cap of symbol.
func (c *Cache) Get(symbol string) (float64, bool) {
	v, ok := c.values[symbol]
	return v, ok
}

// Updated returns the time of the last successful refresh.
func (c *Cache) Updated() time.Time { return c.updated }
