// Package coingecko looks up market capitalisations from the CoinGecko
// simple price API.
package coingecko

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/DIY-6/web3-script/internal/reader"
	"github.com/DIY-6/web3-script/logger"
)

const (
	source           = "coingecko"
	defaultBaseURL   = "https://api.coingecko.com/api/v3"
	defaultBatchSize = 200
)

// Client fetches USD market caps by coin id.
type Client struct {
	rest      *reader.REST
	batchSize int
	log       *logger.Log
}

// NewClient returns a CoinGecko client. batchSize bounds the ids per
// request.
func NewClient(baseURL string, httpClient *http.Client, batchSize int) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Client{
		rest:      reader.NewREST(source, baseURL, httpClient),
		batchSize: batchSize,
		log:       logger.GetLogger(),
	}
}

// MarketCaps returns the positive USD market caps of ids. Ids are requested
// in batches; a failing batch is logged and skipped. An error is returned
// only when every batch failed.
func (c *Client) MarketCaps(ctx context.Context, ids []string) (map[string]float64, error) {
	unique := dedupe(ids)
	out := make(map[string]float64, len(unique))
	if len(unique) == 0 {
		return out, nil
	}

	log := c.log.WithComponent("coingecko")
	var (
		lastErr error
		failed  int
		batches int
	)
	for start := 0; start < len(unique); start += c.batchSize {
		end := start + c.batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batches++
		params := url.Values{
			"ids":                {strings.Join(unique[start:end], ",")},
			"vs_currencies":      {"usd"},
			"include_market_cap": {"true"},
		}
		res, err := c.rest.GetObject(ctx, "/simple/price", params, "")
		if err != nil {
			failed++
			lastErr = err
			log.WithError(err).WithFields(logger.Fields{"batch_start": start, "batch_size": end - start}).Warn("market cap batch failed")
			continue
		}
		res.ForEach(func(key, value gjson.Result) bool {
			if mc := value.Get("usd_market_cap").Float(); mc > 0 {
				out[key.String()] = mc
			}
			return true
		})
	}
	if failed == batches {
		return nil, lastErr
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
