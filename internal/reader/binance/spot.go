package binance

import (
	"context"
	"fmt"
	"strconv"

	"github.com/DIY-6/web3-script/internal/reader"
)

// SpotPrice returns the latest spot price of symbol.
func (c *Client) SpotPrice(ctx context.Context, symbol string) (float64, error) {
	const endpoint = "/api/v3/ticker/price"

	prices, err := c.spot.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, sdkError(endpoint, symbol, err)
	}
	for _, p := range prices {
		if p == nil || p.Symbol != symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, &reader.ParseError{Source: source, Endpoint: endpoint, Symbol: symbol, Err: err}
		}
		return v, nil
	}
	return 0, &reader.ParseError{Source: source, Endpoint: endpoint, Symbol: symbol, Err: fmt.Errorf("symbol missing from response")}
}
