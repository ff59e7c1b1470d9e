package binance

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/DIY-6/web3-script/internal/signal"
)

// OIField selects which openInterestHist column is read.
type OIField string

const (
	// OpenInterest is the contract quantity.
	OpenInterest OIField = "sumOpenInterest"
	// OpenInterestValue is the notional value in USDT.
	OpenInterestValue OIField = "sumOpenInterestValue"
)

// PremiumIndex holds the mark price and funding data of a perpetual.
type PremiumIndex struct {
	Symbol          string
	MarkPrice       float64
	FundingRate     float64
	NextFundingTime time.Time
}

// Ticker is the 24h rolling statistic of one symbol.
type Ticker struct {
	Symbol             string
	LastPrice          float64
	PriceChangePercent float64
	QuoteVolume        float64
}

// Book is an order book snapshot.
type Book struct {
	Bids []signal.Level
	Asks []signal.Level
}

// PremiumIndex fetches mark price, last funding rate and next funding time.
func (c *Client) PremiumIndex(ctx context.Context, symbol string) (PremiumIndex, error) {
	res, err := c.rest.GetObject(ctx, "/fapi/v1/premiumIndex", url.Values{"symbol": {symbol}}, symbol)
	if err != nil {
		return PremiumIndex{}, err
	}
	pi := PremiumIndex{
		Symbol:      symbol,
		MarkPrice:   res.Get("markPrice").Float(),
		FundingRate: res.Get("lastFundingRate").Float(),
	}
	if ms := res.Get("nextFundingTime").Int(); ms > 0 {
		pi.NextFundingTime = time.UnixMilli(ms)
	}
	return pi, nil
}

// OpenInterestHistory returns the chosen open interest column, oldest first.
func (c *Client) OpenInterestHistory(ctx context.Context, symbol, period string, limit int, field OIField) ([]float64, error) {
	rows, err := c.rest.GetArray(ctx, "/futures/data/openInterestHist", historyParams(symbol, period, limit), symbol)
	if err != nil {
		return nil, err
	}
	return column(rows, string(field)), nil
}

// TakerRatioHistory returns the taker buy/sell volume ratio, oldest first.
func (c *Client) TakerRatioHistory(ctx context.Context, symbol, period string, limit int) ([]float64, error) {
	rows, err := c.rest.GetArray(ctx, "/futures/data/takerlongshortRatio", historyParams(symbol, period, limit), symbol)
	if err != nil {
		return nil, err
	}
	return column(rows, "buySellRatio"), nil
}

// Depth fetches an order book snapshot of limit levels per side.
func (c *Client) Depth(ctx context.Context, symbol string, limit int) (Book, error) {
	params := url.Values{"symbol": {symbol}, "limit": {strconv.Itoa(limit)}}
	res, err := c.rest.GetObject(ctx, "/fapi/v1/depth", params, symbol)
	if err != nil {
		return Book{}, err
	}
	return Book{Bids: levels(res.Get("bids")), Asks: levels(res.Get("asks"))}, nil
}

// Tickers24h fetches the 24h statistics of every symbol in one call.
func (c *Client) Tickers24h(ctx context.Context) (map[string]Ticker, error) {
	rows, err := c.rest.GetArray(ctx, "/fapi/v1/ticker/24hr", nil, "")
	if err != nil {
		return nil, err
	}
	out := make(map[string]Ticker, len(rows))
	for _, row := range rows {
		sym := row.Get("symbol").String()
		if sym == "" {
			continue
		}
		out[sym] = Ticker{
			Symbol:             sym,
			LastPrice:          row.Get("lastPrice").Float(),
			PriceChangePercent: row.Get("priceChangePercent").Float(),
			QuoteVolume:        row.Get("quoteVolume").Float(),
		}
	}
	return out, nil
}

// KlineCloses returns the close prices of the last limit candles.
func (c *Client) KlineCloses(ctx context.Context, symbol, interval string, limit int) ([]float64, error) {
	params := url.Values{"symbol": {symbol}, "interval": {interval}, "limit": {strconv.Itoa(limit)}}
	rows, err := c.rest.GetArray(ctx, "/fapi/v1/klines", params, symbol)
	if err != nil {
		return nil, err
	}
	return column(rows, "4"), nil
}

func historyParams(symbol, period string, limit int) url.Values {
	return url.Values{"symbol": {symbol}, "period": {period}, "limit": {strconv.Itoa(limit)}}
}

// column reads path from every row; missing values become 0.
func column(rows []gjson.Result, path string) []float64 {
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.Get(path).Float())
	}
	return out
}

// levels decodes [price, qty] pairs, dropping entries that are not numeric.
func levels(side gjson.Result) []signal.Level {
	rows := side.Array()
	out := make([]signal.Level, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Get("0").String())
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(row.Get("1").String())
		if err != nil {
			continue
		}
		out = append(out, signal.Level{Price: price, Quantity: qty})
	}
	return out
}
